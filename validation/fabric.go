package validation

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cyclicarb/arbengine/adapters"
)

// PriceRequest identifies one sdk-price cross-check: a pair of tokens on a
// chain, the protocol-native ("sdk") price derived from pool reserves, and
// the trade's notional, since the oracle cross-check's TWAP/consensus
// requirement and the double-validation trigger both key off notional.
type PriceRequest struct {
	Chain     uint64
	PoolID    uint64
	Pair      string
	SDKPrice  *big.Float
	NotionalUSD float64
}

// Request identifies a single externally sourced value to fetch.
type Request struct {
	DataType DataType
	Chain    uint64
	PoolID   uint64
	Tokens   []uint64
}

func (r Request) cacheKey() string {
	return fmt.Sprintf("%d:%d:%s", r.Chain, r.PoolID, r.DataType)
}

// staleLimitS bounds how old a cached value may be before the fabric
// refuses to serve it even as a last resort, per spec §4.4. It remains the
// default/pool_data ceiling; dataTypeStaleLimitS overrides it for the
// data types spec §4.4 singles out with a tighter layer-3 TTL.
const staleLimitS = 300

// dataTypeStaleLimitS is the per-DataType layer-3 cache TTL, per spec
// §4.4: price and gas move fast and go stale at 12s, liquidity at 60s;
// anything absent from this table (pool metadata, reserves) falls back to
// staleLimitS.
var dataTypeStaleLimitS = map[DataType]float64{
	DataTypePrice:     12,
	DataTypeGas:       12,
	DataTypeLiquidity: 60,
}

func staleLimitFor(dt DataType) float64 {
	if limit, ok := dataTypeStaleLimitS[dt]; ok {
		return limit
	}
	return staleLimitS
}

// Fabric implements the four-layer fallback fetch: protocol-native call,
// RPC rotation, LRU cache, and a conservative last-known-good fallback.
// Grounded on the teacher streaming client's reconnect/backoff discipline,
// adapted from a push subscription into a pull-with-fallback fetch.
type Fabric struct {
	rpc    adapters.RPCAdapter
	oracle *OracleVerifier // nil: spot/TWAP cross-check is skipped, DataPoints come back OracleNotApplicable
	cache  *lru.Cache[string, DataPoint]

	mu         sync.Mutex
	lastGood   map[string]DataPoint
	nextReqNum uint64
	idPrefix   string
}

// NewFabric constructs a Fabric backed by rpc, with an LRU cache of the
// given size (spec §4.4 suggests a modest per-process cache; callers size
// it to their working set). oracle may be nil in deployments without a
// Chainlink/TWAP adapter wired (spec §6.1's "specified, not implemented"
// scope) — FetchPrice then returns OracleNotApplicable DataPoints rather
// than cross-checking.
func NewFabric(rpc adapters.RPCAdapter, oracle adapters.OracleAdapter, cacheSize int, idPrefix string) (*Fabric, error) {
	c, err := lru.New[string, DataPoint](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("validation: new cache: %w", err)
	}
	var verifier *OracleVerifier
	if oracle != nil {
		verifier = NewOracleVerifier(oracle)
	}
	return &Fabric{
		rpc:      rpc,
		oracle:   verifier,
		cache:    c,
		lastGood: make(map[string]DataPoint),
		idPrefix: idPrefix,
	}, nil
}

func (f *Fabric) nextRequestID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextReqNum++
	return fmt.Sprintf("%s-%d", f.idPrefix, f.nextReqNum)
}

// FetchReserves runs the four-layer fallback for a pool's reserves.
// nowUnix is the caller-supplied wall clock so staleness is deterministic
// and testable.
func (f *Fabric) FetchReserves(ctx context.Context, req Request, nowUnix int64) (DataPoint, error) {
	key := req.cacheKey()
	requestID := f.nextRequestID()

	if reserves, err := f.rpc.GetReserves(ctx, req.Chain, req.PoolID); err == nil {
		dp := DataPoint{
			RequestID:  requestID,
			Value:      reserves,
			DataType:   DataTypeReserves,
			Source:     "rpc",
			Layer:      LayerRPCRotation,
			Chain:      req.Chain,
			Timestamp:  nowUnix,
			Validated:  true,
			StalenessS: 0,
		}
		dp.Confidence = Confidence(dp.Layer, dp.StalenessS, OracleNotApplicable)
		f.remember(key, dp)
		return dp, nil
	}

	limit := staleLimitFor(DataTypeReserves)
	if cached, ok := f.cache.Get(key); ok {
		age := float64(nowUnix - cached.Timestamp)
		if age <= limit {
			dp := cached
			dp.RequestID = requestID
			dp.Layer = LayerCache
			dp.StalenessS = age
			dp.Confidence = Confidence(dp.Layer, dp.StalenessS, dp.Oracle)
			return dp, nil
		}
	}

	f.mu.Lock()
	lastGood, haveLastGood := f.lastGood[key]
	f.mu.Unlock()
	if haveLastGood {
		age := float64(nowUnix - lastGood.Timestamp)
		dp := lastGood
		dp.RequestID = requestID
		dp.Layer = LayerConservative
		dp.StalenessS = age
		dp.Confidence = Confidence(dp.Layer, dp.StalenessS, dp.Oracle)
		dp.Validated = false
		if age > limit {
			return dp, newValidationError(ReasonStaleData, fmt.Sprintf("last-known-good for %s is %.0fs old, exceeds %ds limit", key, age, int(limit)))
		}
		return dp, nil
	}

	return DataPoint{RequestID: requestID}, newValidationError(ReasonFallbackExhausted, fmt.Sprintf("no protocol-native, cached, or last-known-good value for %s", key))
}

// FetchGasPrice runs the same fallback ladder for a chain's gas price.
func (f *Fabric) FetchGasPrice(ctx context.Context, chain uint64, nowUnix int64) (DataPoint, error) {
	key := fmt.Sprintf("%d:gas", chain)
	requestID := f.nextRequestID()

	if price, err := f.rpc.GetGasPrice(ctx, chain); err == nil {
		dp := DataPoint{
			RequestID: requestID,
			Value:     price,
			DataType:  DataTypeGas,
			Source:    "rpc",
			Layer:     LayerRPCRotation,
			Chain:     chain,
			Timestamp: nowUnix,
			Validated: true,
		}
		dp.Confidence = Confidence(dp.Layer, 0, OracleNotApplicable)
		f.remember(key, dp)
		return dp, nil
	}

	if cached, ok := f.cache.Get(key); ok {
		age := float64(nowUnix - cached.Timestamp)
		if age <= staleLimitFor(DataTypeGas) {
			dp := cached
			dp.RequestID = requestID
			dp.Layer = LayerCache
			dp.StalenessS = age
			dp.Confidence = Confidence(dp.Layer, dp.StalenessS, dp.Oracle)
			return dp, nil
		}
	}

	return DataPoint{RequestID: requestID}, newValidationError(ReasonFallbackExhausted, fmt.Sprintf("no protocol-native or cached gas price for chain %d", chain))
}

// FetchPrice runs the protocol-native/cache fallback for a pool's sdk price
// (derived by the caller from the pool's own reserve ratio, since this
// package has no pricing math of its own) and, when an oracle is wired,
// cross-checks it against the Chainlink-style quote per spec §4.4's "safety
// core". req.SDKPrice is the already-computed protocol-native price; the
// fallback ladder below governs only how stale a previously verified value
// may be reused, since there is no independent "protocol-native" source
// for a price beyond the caller-supplied one.
func (f *Fabric) FetchPrice(ctx context.Context, req PriceRequest, nowUnix int64) (DataPoint, error) {
	key := fmt.Sprintf("%d:%s:price", req.Chain, req.Pair)
	requestID := f.nextRequestID()

	if req.SDKPrice != nil {
		value, _ := req.SDKPrice.Float64()
		dp := DataPoint{
			RequestID: requestID,
			Value:     value,
			DataType:  DataTypePrice,
			Source:    "sdk",
			Layer:     LayerProtocolNative,
			Chain:     req.Chain,
			Timestamp: nowUnix,
			Validated: true,
			Oracle:    OracleNotApplicable,
		}

		if f.oracle != nil {
			verification, _, _ := f.oracle.VerifySpot(ctx, req.Pair, req.Chain, req.SDKPrice)
			dp.Oracle = verification
			if verification == OracleFlagged && RequiresTWAP(req.NotionalUSD) {
				if twapVerification, _, twapErr := f.oracle.VerifyTWAP(ctx, req.PoolID, req.SDKPrice); twapErr == nil {
					dp.Oracle = twapVerification
				}
			}
		}

		dp.Confidence = Confidence(dp.Layer, 0, dp.Oracle)
		f.remember(key, dp)
		return dp, nil
	}

	if cached, ok := f.cache.Get(key); ok {
		age := float64(nowUnix - cached.Timestamp)
		if age <= staleLimitFor(DataTypePrice) {
			dp := cached
			dp.RequestID = requestID
			dp.Layer = LayerCache
			dp.StalenessS = age
			dp.Confidence = Confidence(dp.Layer, dp.StalenessS, dp.Oracle)
			return dp, nil
		}
	}

	return DataPoint{RequestID: requestID}, newValidationError(ReasonFallbackExhausted, fmt.Sprintf("no sdk price or cached price for %s", key))
}

func (f *Fabric) remember(key string, dp DataPoint) {
	f.cache.Add(key, dp)
	f.mu.Lock()
	f.lastGood[key] = dp
	f.mu.Unlock()
}

// asBigInt is a small convenience used by callers that know the DataPoint
// wraps a *big.Int (gas price, a single reserve amount).
func asBigInt(v any) (*big.Int, bool) {
	n, ok := v.(*big.Int)
	return n, ok
}
