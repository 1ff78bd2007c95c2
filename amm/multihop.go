package amm

import (
	"math/big"

	"github.com/cyclicarb/arbengine/pool"
)

// Hop identifies a single swap leg within a multi-hop path: trade tokenIn
// for tokenOut against pool p.
type Hop struct {
	Pool     pool.Pool
	TokenIn  uint64
	TokenOut uint64
}

// HopResult records the outcome of simulating a single hop.
type HopResult struct {
	Hop        Hop
	AmountIn   *big.Int
	AmountOut  *big.Int
	SpotPrice  *big.Rat
	SlippageBp float64
}

// PathResult is the outcome of simulating a full multi-hop path.
type PathResult struct {
	Hops             []HopResult
	AmountIn         *big.Int
	AmountOut        *big.Int
	SlippageBps      float64
	MarketImpactBps  float64
}

// swapOutput dispatches to the per-kind swap-output function.
func swapOutput(p pool.Pool, tokenIn, tokenOut uint64, amountIn *big.Int) (*big.Int, error) {
	switch p.Kind {
	case pool.ConstantProductV2:
		return SwapOutputV2(p, tokenIn, amountIn)
	case pool.ConcentratedV3:
		return SwapOutputV3(p, tokenIn, amountIn)
	case pool.StableCurve:
		return SwapOutputStable(p, tokenIn, tokenOut, amountIn)
	case pool.WeightedBalancer:
		return SwapOutputWeighted(p, tokenIn, tokenOut, amountIn)
	default:
		return nil, newErr(UnsupportedPool, "unrecognized pool kind")
	}
}

// spotPrice dispatches to the per-kind spot-price function, returning
// tokenIn priced in tokenOut. Stable and weighted pools fall back to a
// reserve-ratio approximation since their true marginal price requires a
// local derivative of the invariant.
func spotPrice(p pool.Pool, tokenIn, tokenOut uint64) (*big.Rat, error) {
	switch p.Kind {
	case pool.ConstantProductV2:
		return SpotPriceV2(p, tokenIn)
	case pool.ConcentratedV3:
		return SpotPriceV3(p, tokenIn)
	default:
		inIdx := p.TokenIndex(tokenIn)
		outIdx := p.TokenIndex(tokenOut)
		if inIdx < 0 || outIdx < 0 {
			return nil, newErr(DomainError, "token not a member of pool")
		}
		reserveIn := p.Reserves[inIdx]
		reserveOut := p.Reserves[outIdx]
		if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
			return nil, newErr(InsufficientLiquidity, "pool has non-positive reserve")
		}
		return new(big.Rat).SetFrac(reserveOut, reserveIn), nil
	}
}

// MultiHopOut simulates amountIn through a sequence of hops, feeding each
// hop's output into the next hop's input, and returns the per-hop detail
// plus the aggregated path slippage and market impact.
//
// Aggregated slippage compounds per-hop slippage multiplicatively rather
// than summing it: slippage_total = 1 - prod(1 - slippage_i), per spec §4.1.
func MultiHopOut(hops []Hop, amountIn *big.Int) (*PathResult, error) {
	if len(hops) == 0 {
		return nil, newErr(DomainError, "path must contain at least one hop")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, newErr(DomainError, "amount_in must be positive")
	}

	results := make([]HopResult, 0, len(hops))
	survivalProduct := 1.0
	current := new(big.Int).Set(amountIn)

	for _, h := range hops {
		out, err := swapOutput(h.Pool, h.TokenIn, h.TokenOut, current)
		if err != nil {
			return nil, err
		}

		price, err := spotPrice(h.Pool, h.TokenIn, h.TokenOut)
		if err != nil {
			return nil, err
		}

		slip := hopSlippageBps(current, out, price)
		survivalProduct *= 1 - slip/10_000.0

		results = append(results, HopResult{
			Hop:        h,
			AmountIn:   current,
			AmountOut:  out,
			SpotPrice:  price,
			SlippageBp: slip,
		})

		current = out
	}

	totalSlippage := (1 - survivalProduct) * 10_000.0

	return &PathResult{
		Hops:            results,
		AmountIn:        amountIn,
		AmountOut:       current,
		SlippageBps:     totalSlippage,
		MarketImpactBps: totalSlippage,
	}, nil
}

// hopSlippageBps compares the executed rate against the pre-trade spot
// price, in basis points, clamped to non-negative (a hop cannot improve on
// its own spot price under a constant invariant).
func hopSlippageBps(amountIn, amountOut *big.Int, spot *big.Rat) float64 {
	if amountIn.Sign() == 0 || spot == nil || spot.Sign() == 0 {
		return 0
	}
	executed := new(big.Rat).SetFrac(amountOut, amountIn)
	spotF, _ := spot.Float64()
	executedF, _ := executed.Float64()
	if spotF == 0 {
		return 0
	}
	slip := (spotF - executedF) / spotF * 10_000.0
	if slip < 0 {
		return 0
	}
	return slip
}

// SlippageBps returns the basis-point slippage of a single hop's execution
// against its pre-trade spot price.
func SlippageBps(p pool.Pool, tokenIn, tokenOut uint64, amountIn, amountOut *big.Int) (float64, error) {
	spot, err := spotPrice(p, tokenIn, tokenOut)
	if err != nil {
		return 0, err
	}
	return hopSlippageBps(amountIn, amountOut, spot), nil
}

// MarketImpactBps is an alias for the path-level slippage used by the
// evaluation pipeline's feature vector (spec §4.3's market_impact_bps
// feature), kept as a distinct name since the two concepts diverge once
// oracle-based mid-price references are introduced in validation.
func MarketImpactBps(result *PathResult) float64 {
	if result == nil {
		return 0
	}
	return result.MarketImpactBps
}
