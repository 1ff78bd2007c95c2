package adapters

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

// Reserves is the raw on-chain reserve vector for a single pool, as
// returned by the RPC adapter before it is wrapped into a validation
// DataPoint.
type Reserves struct {
	PoolID      uint64
	Tokens      []uint64
	Amounts     []*big.Int
	BlockNumber uint64
}

// RPCAdapter is the capability the data-validation fabric's protocol-native
// and RPC-rotation layers call through, per spec §6.1.
type RPCAdapter interface {
	GetReserves(ctx context.Context, chainID, poolID uint64) (Reserves, error)
	GetGasPrice(ctx context.Context, chainID uint64) (*big.Int, error)
	GetBlockNumber(ctx context.Context, chainID uint64) (uint64, error)
}

// ReserveFetcher resolves a pool id to the on-chain call needed to read its
// reserves; it is supplied by the caller since the call shape is
// DEX-kind-specific and out of this module's scope to template.
type ReserveFetcher func(ctx context.Context, client *ethclient.Client, poolID uint64) (Reserves, error)

// endpointHealth tracks a rotation candidate's recent call outcomes,
// supplementing spec §6.1's "automatic rotation on timeout or HTTP 4xx/5xx"
// with a simple exponentially-decayed health score (spec §11).
type endpointHealth struct {
	mu      sync.Mutex
	score   float64
	lastErr error
}

func newEndpointHealth() *endpointHealth { return &endpointHealth{score: 1.0} }

func (h *endpointHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.score = h.score*0.9 + 0.1
	h.lastErr = nil
}

func (h *endpointHealth) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.score *= 0.5
	h.lastErr = err
}

func (h *endpointHealth) current() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.score
}

type endpoint struct {
	url     string
	client  *ethclient.Client
	limiter *rate.Limiter
	health  *endpointHealth
}

// MultiEndpointRPCAdapter is a concrete RPCAdapter that rotates across
// several go-ethereum endpoints per chain, ordered by health score, with a
// per-endpoint rate limiter. Grounded on the teacher's Dial/functional
// options construction and the reconnect-backoff idiom from the streaming
// JSON-RPC client.
type MultiEndpointRPCAdapter struct {
	mu        sync.RWMutex
	endpoints map[uint64][]*endpoint // chainID -> endpoints
	fetch     ReserveFetcher
	callTimeout time.Duration
}

// Option configures a MultiEndpointRPCAdapter.
type Option interface{ apply(*MultiEndpointRPCAdapter) }

type funcOption func(*MultiEndpointRPCAdapter)

func (f funcOption) apply(a *MultiEndpointRPCAdapter) { f(a) }

// WithReserveFetcher installs the DEX-specific reserve-reading call.
func WithReserveFetcher(fn ReserveFetcher) Option {
	return funcOption(func(a *MultiEndpointRPCAdapter) { a.fetch = fn })
}

// WithCallTimeout overrides the per-call timeout (spec §5 default 2s).
func WithCallTimeout(d time.Duration) Option {
	return funcOption(func(a *MultiEndpointRPCAdapter) { a.callTimeout = d })
}

// NewMultiEndpointRPCAdapter constructs an adapter with no endpoints
// registered; call AddEndpoint per chain before use.
func NewMultiEndpointRPCAdapter(opts ...Option) *MultiEndpointRPCAdapter {
	a := &MultiEndpointRPCAdapter{
		endpoints:   make(map[uint64][]*endpoint),
		callTimeout: 2 * time.Second,
	}
	for _, o := range opts {
		o.apply(a)
	}
	return a
}

// AddEndpoint dials url and registers it as a rotation candidate for
// chainID, rate-limited to ratePerSecond requests/second.
func (a *MultiEndpointRPCAdapter) AddEndpoint(chainID uint64, url string, ratePerSecond float64) error {
	client, err := ethclient.Dial(url)
	if err != nil {
		return &AdapterError{Code: Transport, Adapter: "rpc", Err: fmt.Errorf("dial %s: %w", url, err)}
	}
	ep := &endpoint{
		url:     url,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		health:  newEndpointHealth(),
	}
	a.mu.Lock()
	a.endpoints[chainID] = append(a.endpoints[chainID], ep)
	a.mu.Unlock()
	return nil
}

// orderedEndpoints returns chainID's endpoints sorted by descending health.
func (a *MultiEndpointRPCAdapter) orderedEndpoints(chainID uint64) []*endpoint {
	a.mu.RLock()
	eps := append([]*endpoint(nil), a.endpoints[chainID]...)
	a.mu.RUnlock()
	sort.Slice(eps, func(i, j int) bool { return eps[i].health.current() > eps[j].health.current() })
	return eps
}

// GetReserves calls the registered ReserveFetcher against the healthiest
// available endpoint for chainID, rotating to the next candidate on
// failure.
func (a *MultiEndpointRPCAdapter) GetReserves(ctx context.Context, chainID, poolID uint64) (Reserves, error) {
	if a.fetch == nil {
		return Reserves{}, &AdapterError{Code: Transport, Adapter: "rpc", Err: fmt.Errorf("no reserve fetcher configured")}
	}
	var result Reserves
	err := a.withRotation(ctx, chainID, func(ctx context.Context, ep *endpoint) error {
		r, err := a.fetch(ctx, ep.client, poolID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (a *MultiEndpointRPCAdapter) GetGasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	var price *big.Int
	err := a.withRotation(ctx, chainID, func(ctx context.Context, ep *endpoint) error {
		p, err := ep.client.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	return price, err
}

func (a *MultiEndpointRPCAdapter) GetBlockNumber(ctx context.Context, chainID uint64) (uint64, error) {
	var block uint64
	err := a.withRotation(ctx, chainID, func(ctx context.Context, ep *endpoint) error {
		n, err := ep.client.BlockNumber(ctx)
		if err != nil {
			return err
		}
		block = n
		return nil
	})
	return block, err
}

// withRotation tries each endpoint for chainID in health order, waiting on
// its rate limiter and applying the per-call timeout, advancing to the
// next candidate on timeout or transport error per spec §6.1.
func (a *MultiEndpointRPCAdapter) withRotation(ctx context.Context, chainID uint64, call func(context.Context, *endpoint) error) error {
	eps := a.orderedEndpoints(chainID)
	if len(eps) == 0 {
		return &AdapterError{Code: Transport, Adapter: "rpc", Err: fmt.Errorf("no endpoints registered for chain %d", chainID)}
	}

	var lastErr error
	for _, ep := range eps {
		if err := ep.limiter.Wait(ctx); err != nil {
			return &AdapterError{Code: Timeout, Adapter: "rpc", Err: err}
		}

		callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
		err := call(callCtx, ep)
		cancel()

		if err == nil {
			ep.health.recordSuccess()
			return nil
		}
		ep.health.recordFailure(err)
		lastErr = &AdapterError{Code: Transport, Adapter: "rpc", Err: err}
	}
	return lastErr
}
