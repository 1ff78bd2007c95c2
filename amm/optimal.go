package amm

import (
	"math/big"
)

// optimalSearchIterations bounds the ternary search used by OptimalInput,
// per spec §4.1.
const optimalSearchIterations = 60

// optimalInputCapFraction caps the search domain at 30% of the first leg's
// reserve_in, per spec §4.1.
const optimalInputCapFraction = 0.30

// OptimalResult is the outcome of an optimal-input search over a path.
type OptimalResult struct {
	AmountIn  *big.Int
	Path      *PathResult
	ProfitOut *big.Int
}

// OptimalInput searches for the amount_in over hops that maximizes
// net output (amount_out - amount_in, both denominated in the path's
// starting token, as is the case for a cyclic path) via a bounded ternary
// search. The search domain is [0, x_cap], where x_cap is
// optimalInputCapFraction of the first hop's reserve_in; profit over an AMM
// path is unimodal in amount_in because marginal output is strictly
// decreasing (diminishing returns) while marginal cost is constant, so
// ternary search converges to the global maximum. The search is
// deterministic: it performs exactly optimalSearchIterations steps
// regardless of convergence, so identical inputs always retrace identical
// floating-point comparisons and return identical results.
func OptimalInput(hops []Hop) (*OptimalResult, error) {
	if len(hops) == 0 {
		return nil, newErr(DomainError, "path must contain at least one hop")
	}

	first := hops[0]
	inIdx := first.Pool.TokenIndex(first.TokenIn)
	if inIdx < 0 {
		return nil, newErr(DomainError, "first hop token_in not a member of its pool")
	}
	reserveIn := first.Pool.Reserves[inIdx]
	if reserveIn.Sign() <= 0 {
		return nil, newErr(InsufficientLiquidity, "first hop has non-positive reserve_in")
	}

	reserveInF := new(big.Float).SetInt(reserveIn)
	capF := new(big.Float).Mul(reserveInF, big.NewFloat(optimalInputCapFraction))
	cap64, _ := capF.Float64()
	if cap64 <= 1 {
		return nil, newErr(InsufficientLiquidity, "first hop reserve_in too small to search")
	}

	profitAt := func(x float64) (float64, *PathResult, *big.Int) {
		amt := floatToBigInt(x)
		if amt.Sign() <= 0 {
			return -1, nil, amt
		}
		result, err := MultiHopOut(hops, amt)
		if err != nil {
			return -1, nil, amt
		}
		profit := new(big.Int).Sub(result.AmountOut, amt)
		profitF := new(big.Float).SetInt(profit)
		f, _ := profitF.Float64()
		return f, result, amt
	}

	lo, hi := 1.0, cap64
	var bestPath *PathResult
	var bestAmount *big.Int
	bestProfit := -1.0

	for i := 0; i < optimalSearchIterations; i++ {
		m1 := lo + (hi-lo)/3
		m2 := hi - (hi-lo)/3

		p1, path1, amt1 := profitAt(m1)
		p2, path2, amt2 := profitAt(m2)

		if p1 > bestProfit {
			bestProfit, bestPath, bestAmount = p1, path1, amt1
		}
		if p2 > bestProfit {
			bestProfit, bestPath, bestAmount = p2, path2, amt2
		}

		if p1 < p2 {
			lo = m1
		} else {
			hi = m2
		}
	}

	if bestPath == nil || bestProfit <= 0 {
		return nil, newErr(DomainError, "no profitable amount_in found within search domain")
	}

	return &OptimalResult{
		AmountIn:  bestAmount,
		Path:      bestPath,
		ProfitOut: new(big.Int).Sub(bestPath.AmountOut, bestAmount),
	}, nil
}

func floatToBigInt(x float64) *big.Int {
	bf := big.NewFloat(x)
	i, _ := bf.Int(nil)
	return i
}
