package evaluate

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/cyclicarb/arbengine/adapters"
	"github.com/cyclicarb/arbengine/amm"
	"github.com/cyclicarb/arbengine/flashloan"
	"github.com/cyclicarb/arbengine/pathfinder"
	"github.com/cyclicarb/arbengine/pool"
	"github.com/cyclicarb/arbengine/validation"
)

// mlCallTimeout bounds the ML adapter call, per spec §6.3.
const mlCallTimeout = 500 * time.Millisecond

// GasEstimator prices a path's execution cost, denominated in the path's
// starting (source) token base units, since that is the currency the
// flashloan sizer's ternary search and spec §4.1's profit formula operate
// in. Supplied by the orchestrator since it depends on the chain's current
// gas DataPoint and a token/USD rate the evaluator does not itself fetch.
type GasEstimator func(path pathfinder.Path) (*big.Int, error)

// DoubleValidateFunc re-derives a candidate opportunity's key DataPoint
// independently and reports whether the two phases agree, per spec §4.4's
// two-phase gate. Supplied by the caller since it requires live I/O the
// evaluator's own pipeline does not perform.
type DoubleValidateFunc func(ctx context.Context, o *Opportunity) (validation.ValidationResult, error)

// Evaluator runs the per-path pipeline described at spec §4.5: size the
// trade (via C6's flashloan-aware search), compute profitability, score
// it, and apply the safety gates, including the large-notional
// double-validation gate. Grounded on the teacher's fan-out-per-item
// worker idiom (bounded concurrency is the orchestrator's concern;
// Evaluator.Evaluate itself is a single-path, synchronous pipeline the
// orchestrator calls from its own worker pool).
type Evaluator struct {
	ml             adapters.MLAdapter // nil is valid: falls back to FallbackScore
	gas            GasEstimator
	gates          Gates
	providers      []flashloan.Provider
	doubleValidate DoubleValidateFunc // nil disables the gate entirely
	now            func() time.Time
}

// NewEvaluator constructs an Evaluator. ml may be nil to always use the
// deterministic fallback scorer; doubleValidate may be nil in deployments
// that never expect a large-notional opportunity to occur, though any
// Approved opportunity above Gates.LargeNotionalUSD will then skip I3(d)'s
// required double-validation record.
func NewEvaluator(ml adapters.MLAdapter, gas GasEstimator, gates Gates, providers []flashloan.Provider, doubleValidate DoubleValidateFunc) *Evaluator {
	return &Evaluator{ml: ml, gas: gas, gates: gates, providers: providers, doubleValidate: doubleValidate, now: time.Now}
}

// resolveHops converts a pathfinder.Path into the amm package's Hop list
// against a concrete snapshot.
func resolveHops(snap *pool.Snapshot, path pathfinder.Path) ([]amm.Hop, error) {
	hops := make([]amm.Hop, 0, len(path.Legs))
	for _, leg := range path.Legs {
		p, ok := snap.PoolByID(leg.PoolID)
		if !ok {
			return nil, fmt.Errorf("evaluate: pool %d not present in snapshot", leg.PoolID)
		}
		hops = append(hops, amm.Hop{Pool: p, TokenIn: leg.TokenIn, TokenOut: leg.TokenOut})
	}
	return hops, nil
}

// flashloanFeeQuote returns the provider fee on the borrowed principal
// (s.AmountIn), in the path's starting token's base units — not, as a prior
// revision of this package mistakenly computed, a percentage of profit.
func flashloanFeeQuote(s *flashloan.Sizing) *big.Int {
	fee := new(big.Int).Mul(s.AmountIn, big.NewInt(int64(s.Provider.FeeBps)))
	return fee.Div(fee, big.NewInt(10_000))
}

// notionalUSD returns the USD value of the sized trade, the figure the
// large-notional and TWAP/consensus triggers key off of.
func notionalUSD(tokenUSD func(uint64, *big.Int) float64, sourceToken uint64, amount *big.Int) float64 {
	return tokenUSD(sourceToken, amount)
}

// requiresDoubleValidation reports whether any supporting DataPoint, or the
// opportunity's own notional, mandates the two-phase gate before Approved,
// per I3(d) and spec §4.4.
func requiresDoubleValidation(o *Opportunity, gates Gates, notional float64) bool {
	if gates.RequiresDoubleValidation(notional) {
		return true
	}
	for _, dp := range o.DataPoints {
		if _, trigger := validation.RequiresDoubleValidation(dp, notional, gates.StalenessLimitS); trigger {
			return true
		}
	}
	return false
}

// smallestReserveIn returns the smallest input-side reserve across hops,
// for the 30%-of-reserve oversized-trade gate.
func smallestReserveIn(hops []amm.Hop) *big.Int {
	var smallest *big.Int
	for _, h := range hops {
		for i, tok := range h.Pool.Tokens {
			if tok != h.TokenIn {
				continue
			}
			r := h.Pool.Reserves[i]
			if smallest == nil || r.Cmp(smallest) < 0 {
				smallest = r
			}
		}
	}
	return smallest
}

// Evaluate runs one candidate path through Candidate → Validated → Scored
// → Gated → {Approved | Rejected}, per spec §4.5. dataPoints are the
// already-fetched, already-confidence-scored DataPoints backing this
// evaluation (the caller runs the validation fabric beforehand, since it
// is async I/O the evaluator's pure pipeline does not perform itself).
// tokenUSD converts a token's base-unit amount to USD.
func (e *Evaluator) Evaluate(ctx context.Context, snap *pool.Snapshot, path pathfinder.Path, dataPoints []validation.DataPoint, confidence float64, tokenUSD func(token uint64, amount *big.Int) float64) (*Opportunity, error) {
	o := &Opportunity{Path: path, State: StateCandidate, DataPoints: dataPoints}

	hops, err := resolveHops(snap, path)
	if err != nil {
		return nil, err
	}
	o.advance(StateValidated)

	sourceToken := path.Legs[0].TokenIn
	chainID := hops[0].Pool.ChainID

	var gasCostQuote *big.Int
	if e.gas != nil {
		q, err := e.gas(path)
		if err != nil {
			return nil, fmt.Errorf("evaluate: gas estimate: %w", err)
		}
		gasCostQuote = q
	}

	// C6 sizes the trade against the real flashloan-fee-and-gas-aware
	// objective (spec §4.1/§4.5 step 2); this sizing, not a bare AMM
	// optimum, is what gets gated and Approved — provider selection must
	// never change the trade size between here and emission (spec §4.6).
	sizing, err := flashloan.Size(hops, chainID, sourceToken, gasCostQuote, e.providers)
	if err != nil {
		return nil, fmt.Errorf("evaluate: flashloan sizing: %w", err)
	}
	if sizing == nil {
		o.reject(RejectNoProfit)
		return o, nil
	}

	o.InputAmount = sizing.AmountIn
	o.PerLegAmounts = perLegAmounts(sizing.Path)
	o.GrossOut = sizing.GrossOut
	o.SlippageBps = sizing.Path.SlippageBps
	o.MarketImpactBps = sizing.Path.MarketImpactBps
	o.FlashloanProvider = sizing.Provider.Name
	o.FlashloanFeeUSD = tokenUSD(sourceToken, flashloanFeeQuote(sizing))
	o.GasCostUSD = tokenUSD(sourceToken, gasCostQuote)
	o.NetProfitUSD = tokenUSD(sourceToken, sizing.NetProfit)

	inputUSD := notionalUSD(tokenUSD, sourceToken, o.InputAmount)

	features := Features{
		Hops:                float64(len(path.Legs)),
		GrossProfitUSD:       tokenUSD(sourceToken, o.GrossOut),
		GasCostUSD:           o.GasCostUSD,
		EstimatedProfitUSD:   o.NetProfitUSD,
		LiquidityScore:       liquidityScore(hops),
		PriceImpactBps:       o.MarketImpactBps,
		SlippageBps:          o.SlippageBps,
		Confidence:           confidence,
		TimeOfDay:            fractionOfDay(e.now()),
		VolatilityIndicator:  0, // no dedicated volatility feed in this deployment; left at baseline
	}

	score, err := e.score(ctx, features)
	if err != nil {
		return nil, fmt.Errorf("evaluate: scoring: %w", err)
	}
	o.MLScore = score
	o.advance(StateScored)

	o.advance(StateGated)
	if reason := e.gates.Evaluate(o, confidence, smallestReserveIn(hops)); reason != RejectNone {
		o.reject(reason)
		return o, nil
	}

	if requiresDoubleValidation(o, e.gates, inputUSD) && e.doubleValidate != nil {
		result, err := e.doubleValidate(ctx, o)
		if err != nil || !result.Passed {
			o.reject(RejectDoubleValidationMismatch)
			return o, nil
		}
	}

	o.advance(StateApproved)
	return o, nil
}

func (e *Evaluator) score(ctx context.Context, features Features) (float64, error) {
	if e.ml == nil {
		return FallbackScore(features), nil
	}
	callCtx, cancel := context.WithTimeout(ctx, mlCallTimeout)
	defer cancel()
	score, err := e.ml.Score(callCtx, features.ToVector())
	if err != nil {
		return FallbackScore(features), nil
	}
	return score, nil
}

func perLegAmounts(result *amm.PathResult) []*big.Int {
	out := make([]*big.Int, 0, len(result.Hops))
	for _, h := range result.Hops {
		out = append(out, h.AmountIn)
	}
	return out
}

// liquidityScore is a simple [0,1] proxy: the smallest hop's depth, taken
// as the sum of its raw reserve amounts in token base units (not a USD
// value), relative to a reference depth, saturating at 1.
const liquidityScoreReferenceUSD = 1_000_000.0

func liquidityScore(hops []amm.Hop) float64 {
	min := -1.0
	for _, h := range hops {
		tvl := estimateTVL(h.Pool)
		if min < 0 || tvl < min {
			min = tvl
		}
	}
	if min < 0 {
		return 0
	}
	return clamp01(min / liquidityScoreReferenceUSD)
}

func estimateTVL(p pool.Pool) float64 {
	total := new(big.Float)
	for _, r := range p.Reserves {
		total.Add(total, new(big.Float).SetInt(r))
	}
	f, _ := total.Float64()
	return f
}

func fractionOfDay(t time.Time) float64 {
	secondsSinceMidnight := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return float64(secondsSinceMidnight) / 86400.0
}
