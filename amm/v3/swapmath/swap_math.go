// Package swapmath computes a single within-tick swap step, ported from
// Uniswap V3's SwapMath library.
package swapmath

import (
	"math/big"

	"github.com/cyclicarb/arbengine/amm/v3/sqrtpricemath"
)

var feeUnit = big.NewInt(1_000_000)

// ComputeSwapStep advances the price from sqrtRatioCurrent towards
// sqrtRatioTarget by at most amountRemaining (exact-in if exactIn is true,
// exact-out otherwise), returning the resulting price, the amount consumed,
// the amount produced, and the fee charged, in that order.
func ComputeSwapStep(
	sqrtRatioCurrent *big.Int,
	sqrtRatioTarget *big.Int,
	liquidity *big.Int,
	amountRemaining *big.Int,
	feePips uint32,
) (sqrtRatioNext, amountIn, amountOut, feeAmount *big.Int) {
	zeroForOne := sqrtRatioCurrent.Cmp(sqrtRatioTarget) >= 0
	exactIn := amountRemaining.Sign() >= 0

	fee := big.NewInt(int64(feePips))

	if exactIn {
		amountRemainingLessFee := new(big.Int).Mul(amountRemaining, new(big.Int).Sub(feeUnit, fee))
		amountRemainingLessFee.Div(amountRemainingLessFee, feeUnit)

		if zeroForOne {
			amountIn = sqrtpricemath.GetAmount0Delta(sqrtRatioTarget, sqrtRatioCurrent, liquidity, true)
		} else {
			amountIn = sqrtpricemath.GetAmount1Delta(sqrtRatioCurrent, sqrtRatioTarget, liquidity, true)
		}

		if amountRemainingLessFee.Cmp(amountIn) >= 0 {
			sqrtRatioNext = new(big.Int).Set(sqrtRatioTarget)
		} else {
			var err error
			if zeroForOne {
				sqrtRatioNext, err = sqrtpricemath.GetNextSqrtPriceFromAmount0(sqrtRatioCurrent, liquidity, amountRemainingLessFee, true)
			} else {
				sqrtRatioNext, err = sqrtpricemath.GetNextSqrtPriceFromAmount1(sqrtRatioCurrent, liquidity, amountRemainingLessFee, true)
			}
			if err != nil {
				sqrtRatioNext = new(big.Int).Set(sqrtRatioTarget)
			}
		}
	} else {
		if zeroForOne {
			amountOut = sqrtpricemath.GetAmount1Delta(sqrtRatioTarget, sqrtRatioCurrent, liquidity, false)
		} else {
			amountOut = sqrtpricemath.GetAmount0Delta(sqrtRatioCurrent, sqrtRatioTarget, liquidity, false)
		}

		negRemaining := new(big.Int).Neg(amountRemaining)
		if negRemaining.Cmp(amountOut) >= 0 {
			sqrtRatioNext = new(big.Int).Set(sqrtRatioTarget)
		} else {
			var err error
			if zeroForOne {
				sqrtRatioNext, err = sqrtpricemath.GetNextSqrtPriceFromAmount1(sqrtRatioCurrent, liquidity, negRemaining, false)
			} else {
				sqrtRatioNext, err = sqrtpricemath.GetNextSqrtPriceFromAmount0(sqrtRatioCurrent, liquidity, negRemaining, false)
			}
			if err != nil {
				sqrtRatioNext = new(big.Int).Set(sqrtRatioTarget)
			}
		}
	}

	reachedTarget := sqrtRatioTarget.Cmp(sqrtRatioNext) == 0

	if zeroForOne {
		if !(reachedTarget && exactIn) {
			amountIn = sqrtpricemath.GetAmount0Delta(sqrtRatioNext, sqrtRatioCurrent, liquidity, true)
		}
		if !(reachedTarget && !exactIn) {
			amountOut = sqrtpricemath.GetAmount1Delta(sqrtRatioNext, sqrtRatioCurrent, liquidity, false)
		}
	} else {
		if !(reachedTarget && exactIn) {
			amountIn = sqrtpricemath.GetAmount1Delta(sqrtRatioCurrent, sqrtRatioNext, liquidity, true)
		}
		if !(reachedTarget && !exactIn) {
			amountOut = sqrtpricemath.GetAmount0Delta(sqrtRatioCurrent, sqrtRatioNext, liquidity, false)
		}
	}

	if !exactIn && amountOut.Cmp(new(big.Int).Neg(amountRemaining)) > 0 {
		amountOut = new(big.Int).Neg(amountRemaining)
	}

	if exactIn && sqrtRatioNext.Cmp(sqrtRatioTarget) != 0 {
		feeAmount = new(big.Int).Sub(amountRemaining, amountIn)
	} else {
		feeAmount = mulDivRoundingUp(amountIn, fee, new(big.Int).Sub(feeUnit, fee))
	}

	return sqrtRatioNext, amountIn, amountOut, feeAmount
}

func mulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	result := new(big.Int)
	rem := new(big.Int)
	result.DivMod(product, denominator, rem)
	if rem.Sign() != 0 {
		result.Add(result, big.NewInt(1))
	}
	return result
}
