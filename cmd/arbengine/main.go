// Command arbengine is the cyclic-arbitrage detection and evaluation
// engine's process entrypoint: flag/env/config resolution, structured
// logging, graceful shutdown, and orchestrator wiring, per spec §6.2.
// Grounded directly on cmd/client/main.go's shape (JSON log handler,
// signal.NotifyContext shutdown, DefaultRegisterer-backed metrics).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cyclicarb/arbengine/adapters"
	"github.com/cyclicarb/arbengine/config"
	"github.com/cyclicarb/arbengine/evaluate"
	"github.com/cyclicarb/arbengine/flashloan"
	"github.com/cyclicarb/arbengine/internal/metrics"
	"github.com/cyclicarb/arbengine/orchestrator"
	"github.com/cyclicarb/arbengine/pathfinder"
	"github.com/cyclicarb/arbengine/pool"
	"github.com/cyclicarb/arbengine/token"
	"github.com/cyclicarb/arbengine/validation"
)

// Exit codes, per spec §6.2.
const (
	exitOK              = 0
	exitConfigError     = 64
	exitDataFabricFatal = 65
	exitInternalFault   = 70
)

const (
	defaultEndpointRateLimit = 10.0
	defaultFabricCacheSize   = 4096

	// gasUnitsPerHop and defaultGasPriceWei stand in for a per-tx gas
	// simulator (out of scope, spec §6.1): a flat per-hop unit estimate,
	// priced at whatever the fabric's validated gas DataPoint reports, or
	// this floor when no gas DataPoint is available yet.
	gasUnitsPerHop    = 150_000
	defaultGasPriceWei = 20_000_000_000 // 20 gwei
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		logger.Error("failed to resolve configuration", "error", err)
		return exitConfigError
	}

	tokens := token.NewRegistry()
	resolve, tokenPrices := seedTokens(tokens, cfg.Tokens)
	tokenUSD := makeTokenUSD(tokens, tokenPrices)
	usdToToken := makeUSDToToken(tokens, tokenPrices)

	registry := pool.NewRegistry()
	if stats := registry.ApplyUpdate(seedPools(cfg.Pools, resolve)); len(stats.Rejected) > 0 {
		logger.Warn("some seed pools were rejected", "rejected", len(stats.Rejected), "applied", stats.Applied)
	}

	sourceTokens := make([]uint64, 0, len(cfg.SourceTokens))
	for _, ref := range cfg.SourceTokens {
		if id, ok := resolve(ref); ok {
			sourceTokens = append(sourceTokens, id)
		} else {
			logger.Warn("unresolved source token", "chain_id", ref.ChainID, "symbol", ref.Symbol)
		}
	}

	rpc := adapters.NewMultiEndpointRPCAdapter()
	for chainID, urls := range cfg.ChainEndpoints {
		for _, u := range urls {
			if err := rpc.AddEndpoint(chainID, u, defaultEndpointRateLimit); err != nil {
				logger.Error("failed to register RPC endpoint", "chain_id", chainID, "url", u, "error", err)
				return exitDataFabricFatal
			}
		}
	}

	// No Chainlink/TWAP adapter ships with this engine (spec §6.1's
	// "specified, not implemented" scope, same as the ML and relay
	// adapters); the fabric and oracle verifier tolerate a nil adapter and
	// simply report OracleNotApplicable rather than cross-checking.
	var oracleAdapter adapters.OracleAdapter
	fabric, err := validation.NewFabric(rpc, oracleAdapter, defaultFabricCacheSize, "arbengine")
	if err != nil {
		logger.Error("failed to construct the data-validation fabric", "error", err)
		return exitDataFabricFatal
	}
	accounting := validation.NewAccountingTracker()

	m := metrics.New(prometheus.DefaultRegisterer)

	// priceDataPoints and gasPrices are written wholesale (copy-on-write)
	// by refresh at the end of Phase A and read by evalFn/gasEstimator
	// during Phase C; orchestrator.Orchestrator.tick runs A strictly before
	// C within a tick and never overlaps a tick's C with the next tick's A,
	// so reassigning the map reference needs no additional synchronization
	// (mirrors pool.Registry's own copy-on-write snapshot style).
	var priceDataPoints map[uint64]validation.DataPoint
	var gasPrices map[uint64]*big.Int

	gasEstimator := func(path pathfinder.Path) (*big.Int, error) {
		if len(path.Legs) == 0 {
			return big.NewInt(0), nil
		}
		snap := registry.Snapshot()
		p, ok := snap.PoolByID(path.Legs[0].PoolID)
		if !ok {
			return big.NewInt(0), nil
		}
		gasPriceWei, ok := gasPrices[p.ChainID]
		if !ok || gasPriceWei == nil {
			gasPriceWei = big.NewInt(defaultGasPriceWei)
		}
		gasUnits := big.NewInt(int64(gasUnitsPerHop) * int64(len(path.Legs)))
		gasWei := new(big.Int).Mul(gasPriceWei, gasUnits)

		nativeRef, ok := cfg.NativeGasTokens[p.ChainID]
		if !ok {
			return big.NewInt(0), nil
		}
		nativeTok, ok := resolve(nativeRef)
		if !ok {
			return big.NewInt(0), nil
		}
		gasUSD := tokenUSD(nativeTok, gasWei)
		sourceToken := path.Legs[0].TokenIn
		return usdToToken(gasUSD, sourceToken), nil
	}

	doubleValidate := func(ctx context.Context, o *evaluate.Opportunity) (validation.ValidationResult, error) {
		if len(o.Path.Legs) == 0 {
			return validation.ValidationResult{Passed: true}, nil
		}
		leg := o.Path.Legs[0]
		snap := registry.Snapshot()
		p, ok := snap.PoolByID(leg.PoolID)
		if !ok {
			return validation.ValidationResult{}, fmt.Errorf("arbengine: pool %d not present for double validation", leg.PoolID)
		}
		// Each phase re-fetches directly off the RPC adapter rather than
		// through the fabric, since a cache hit in either phase would
		// silently turn this into a single-fetch replay.
		reFetch := func(ctx context.Context) (validation.DataPoint, error) {
			reserves, err := rpc.GetReserves(ctx, p.ChainID, p.ID)
			if err != nil {
				return validation.DataPoint{}, err
			}
			price := reservePairPrice(reserves.Amounts)
			if price == nil {
				return validation.DataPoint{}, fmt.Errorf("arbengine: no sdk price derivable for pool %d", p.ID)
			}
			v, _ := price.Float64()
			return validation.DataPoint{RequestID: "double-validation", Value: v, DataType: validation.DataTypePrice, Chain: p.ChainID}, nil
		}
		gate := validation.NewDoubleValidationGate()
		return gate.Run(ctx, reFetch, reFetch)
	}

	gates := evaluate.DefaultGates()
	gates.MinProfitUSD = cfg.MinProfitUSD
	gates.MaxSlippageBps = cfg.MaxSlippageBps
	gates.MaxImpactBps = cfg.MaxImpactBps
	gates.StalenessLimitS = cfg.StalenessLimitPriceS
	gates.MaxTradeFractionOfReserveIn = cfg.MaxFlashloanPercentTVL / 100
	evaluator := evaluate.NewEvaluator(nil, gasEstimator, gates, flashloan.DefaultProviders(), doubleValidate)

	queue := orchestrator.NewApprovedQueue(orchestrator.DefaultQueueCapacity)
	confidenceOf := func(o *evaluate.Opportunity) float64 {
		if len(o.DataPoints) == 0 {
			return 0
		}
		min := o.DataPoints[0].Confidence
		for _, dp := range o.DataPoints[1:] {
			if dp.Confidence < min {
				min = dp.Confidence
			}
		}
		return min
	}
	mode := orchestrator.ModeSimulation
	if cfg.Mode == "LIVE" {
		mode = orchestrator.ModeLive
	}
	modeGate := orchestrator.NewModeGate(mode, nil, func(o *evaluate.Opportunity) {
		logger.Info("paper trade recorded", "net_profit_usd", o.NetProfitUSD, "ml_score", o.MLScore)
	}, confidenceOf, time.Duration(cfg.ManualWindowMs)*time.Millisecond)

	refresh := func(ctx context.Context) error {
		now := time.Now().Unix()
		snap := registry.Snapshot()
		updated := make([]pool.Pool, 0, len(snap.ActivePools()))
		newPriceDataPoints := make(map[uint64]validation.DataPoint, len(snap.ActivePools()))
		chains := make(map[uint64]bool)

		for _, p := range snap.ActivePools() {
			req := validation.Request{DataType: validation.DataTypeReserves, Chain: p.ChainID, PoolID: p.ID, Tokens: p.Tokens}
			dp, ferr := fabric.FetchReserves(ctx, req, now)
			accounting.Record(dp, validation.ValidationResult{Passed: ferr == nil})
			if ferr != nil {
				m.AdapterErrorsTotal.WithLabelValues("rpc", "fetch_reserves").Inc()
				continue
			}
			m.ValidationFallbackLayer.WithLabelValues(layerLabel(dp.Layer)).Inc()
			if reserves, ok := dp.Value.(adapters.Reserves); ok {
				p.Reserves = reserves.Amounts
				p.LastUpdateTS = dp.Timestamp
				p.Confidence = dp.Confidence
			}
			updated = append(updated, p)
			chains[p.ChainID] = true

			pair := fmt.Sprintf("%d/%d", tokenSafe(p.Tokens, 0), tokenSafe(p.Tokens, 1))
			priceReq := validation.PriceRequest{
				Chain: p.ChainID, PoolID: p.ID, Pair: pair,
				SDKPrice: reservePairPrice(p.Reserves), NotionalUSD: p.TVLUSD,
			}
			priceDP, perr := fabric.FetchPrice(ctx, priceReq, now)
			accounting.Record(priceDP, validation.ValidationResult{Passed: perr == nil})
			if perr == nil {
				newPriceDataPoints[p.ID] = priceDP
			} else {
				m.AdapterErrorsTotal.WithLabelValues("rpc", "fetch_price").Inc()
			}
		}

		newGasPrices := make(map[uint64]*big.Int, len(chains))
		for chainID := range chains {
			gasDP, gerr := fabric.FetchGasPrice(ctx, chainID, now)
			accounting.Record(gasDP, validation.ValidationResult{Passed: gerr == nil})
			if gerr != nil {
				m.AdapterErrorsTotal.WithLabelValues("rpc", "fetch_gas_price").Inc()
				continue
			}
			if price, ok := gasDP.Value.(*big.Int); ok {
				newGasPrices[chainID] = price
			}
		}

		if len(updated) > 0 {
			registry.ApplyUpdate(updated)
		}
		priceDataPoints = newPriceDataPoints
		gasPrices = newGasPrices
		return nil
	}

	evalFn := func(ctx context.Context, snap *pool.Snapshot, path pathfinder.Path) (*evaluate.Opportunity, error) {
		dataPoints := dataPointsForPath(snap, path, priceDataPoints)
		confidence := confidenceOf(&evaluate.Opportunity{DataPoints: dataPoints})
		opp, err := evaluator.Evaluate(ctx, snap, path, dataPoints, confidence, tokenUSD)
		if err != nil {
			return nil, err
		}
		if opp.State == evaluate.StateApproved {
			m.OpportunitiesApproved.Inc()
		} else {
			m.OpportunitiesRejected.WithLabelValues(string(opp.RejectReason)).Inc()
		}
		return opp, nil
	}

	orchCfg := cfg.OrchestratorConfig()
	orch := orchestrator.New(registry, sourceTokens, pathfinder.Options{MaxHops: cfg.MaxHops}, refresh, evalFn, modeGate, queue, orchCfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Test {
		if err := refresh(ctx); err != nil {
			logger.Error("test-mode refresh failed", "error", err)
			return exitInternalFault
		}
		logger.Info("test-mode run complete", "pools", registry.Len())
		return exitOK
	}

	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("orchestrator exited with error", "error", err)
		return exitInternalFault
	}
	return exitOK
}

// seedTokens admits every configured token into the registry and returns a
// resolver from (chain, symbol) to its interned id, per spec §3's token
// identity/interning layer, plus the configured USD reference price per
// interned id (standing in for the out-of-scope USD-price adapter).
func seedTokens(reg *token.Registry, seeds []config.TokenSeed) (func(config.TokenRef) (uint64, bool), map[uint64]float64) {
	ids := make(map[config.TokenRef]uint64, len(seeds))
	prices := make(map[uint64]float64, len(seeds))
	for _, s := range seeds {
		id := reg.Admit(token.Token{
			ChainID:  s.ChainID,
			Address:  common.HexToAddress(s.Address),
			Symbol:   s.Symbol,
			Decimals: s.Decimals,
		})
		ids[config.TokenRef{ChainID: s.ChainID, Symbol: s.Symbol}] = id
		prices[id] = s.USDPrice
	}
	return func(ref config.TokenRef) (uint64, bool) {
		id, ok := ids[ref]
		return id, ok
	}, prices
}

// makeTokenUSD builds a converter from a token's base-unit amount to USD
// using its registered decimals and configured reference price.
func makeTokenUSD(tokens *token.Registry, prices map[uint64]float64) func(tok uint64, amount *big.Int) float64 {
	return func(tok uint64, amount *big.Int) float64 {
		if amount == nil {
			return 0
		}
		t, ok := tokens.Lookup(tok)
		if !ok {
			return 0
		}
		price, ok := prices[tok]
		if !ok || price <= 0 {
			return 0
		}
		f := new(big.Float).SetInt(amount)
		f.Quo(f, new(big.Float).SetFloat64(math.Pow(10, float64(t.Decimals))))
		v, _ := f.Float64()
		return v * price
	}
}

// makeUSDToToken builds the inverse of makeTokenUSD: a USD amount into a
// token's base units, used to express a native-chain gas cost in the
// units of an arbitrary path's starting token.
func makeUSDToToken(tokens *token.Registry, prices map[uint64]float64) func(usd float64, tok uint64) *big.Int {
	return func(usd float64, tok uint64) *big.Int {
		t, ok := tokens.Lookup(tok)
		if !ok {
			return big.NewInt(0)
		}
		price, ok := prices[tok]
		if !ok || price <= 0 {
			return big.NewInt(0)
		}
		units := usd / price
		f := new(big.Float).SetFloat64(units)
		f.Mul(f, new(big.Float).SetFloat64(math.Pow(10, float64(t.Decimals))))
		i, _ := f.Int(nil)
		if i.Sign() < 0 {
			return big.NewInt(0)
		}
		return i
	}
}

func seedPools(seeds []config.PoolSeed, resolve func(config.TokenRef) (uint64, bool)) []pool.Pool {
	pools := make([]pool.Pool, 0, len(seeds))
	for _, s := range seeds {
		reserves := make([]*big.Int, 0, len(s.Reserves))
		for _, r := range s.Reserves {
			n := new(big.Int)
			if _, ok := n.SetString(r, 10); !ok {
				n = big.NewInt(0)
			}
			reserves = append(reserves, n)
		}
		tokenIDs := make([]uint64, 0, len(s.Tokens))
		for _, symbol := range s.Tokens {
			if id, ok := resolve(config.TokenRef{ChainID: s.ChainID, Symbol: symbol}); ok {
				tokenIDs = append(tokenIDs, id)
			}
		}
		p := pool.Pool{
			ID: s.ID, ChainID: s.ChainID, Kind: pool.Kind(s.Kind), Address: s.Address,
			Tokens: tokenIDs, Reserves: reserves, FeeBps: s.FeeBps,
			Active: true,
		}
		if p.Kind == pool.ConstantProductV2 {
			p.Params = pool.KindParams{V2: &pool.V2Params{}}
		}
		pools = append(pools, p)
	}
	return pools
}

func dataPointsForPath(snap *pool.Snapshot, path pathfinder.Path, priceDataPoints map[uint64]validation.DataPoint) []validation.DataPoint {
	out := make([]validation.DataPoint, 0, len(path.Legs)*2)
	for _, leg := range path.Legs {
		p, ok := snap.PoolByID(leg.PoolID)
		if !ok {
			continue
		}
		out = append(out, validation.DataPoint{
			DataType: validation.DataTypeReserves, Source: p.Address, Layer: validation.Layer(p.SourceLayer),
			Chain: p.ChainID, Timestamp: p.LastUpdateTS, Validated: true, Confidence: p.Confidence,
		})
		if dp, ok := priceDataPoints[p.ID]; ok {
			out = append(out, dp)
		}
	}
	return out
}

// tokenSafe returns tokens[i] or 0 if i is out of range, used to build a
// human-readable pair label without panicking on malformed pool seeds.
func tokenSafe(tokens []uint64, i int) uint64 {
	if i < 0 || i >= len(tokens) {
		return 0
	}
	return tokens[i]
}

// reservePairPrice is the protocol-native ("sdk") spot price of a
// two-token pool: the second reserve per unit of the first. Pools with
// fewer than two reserves have no price to offer.
func reservePairPrice(reserves []*big.Int) *big.Float {
	if len(reserves) < 2 || reserves[0] == nil || reserves[0].Sign() == 0 {
		return nil
	}
	return new(big.Float).Quo(new(big.Float).SetInt(reserves[1]), new(big.Float).SetInt(reserves[0]))
}

func layerLabel(l validation.Layer) string {
	return fmt.Sprintf("layer_%d", l)
}
