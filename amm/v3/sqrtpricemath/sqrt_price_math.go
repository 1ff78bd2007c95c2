// Package sqrtpricemath computes the next sqrt price for a given token
// delta, and the token deltas for a given sqrt price range, ported from
// Uniswap V3's SqrtPriceMath library.
package sqrtpricemath

import (
	"errors"
	"math/big"
)

var (
	ErrInvalidPrice     = errors.New("sqrt price must be positive")
	ErrInvalidLiquidity = errors.New("liquidity must be positive")
	ErrPriceOverflow    = errors.New("sqrt price overflow")

	q96        = new(big.Int).Lsh(big.NewInt(1), 96)
	maxUint160 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))
)

// GetNextSqrtPriceFromAmount0 computes the new sqrt price after adding (or
// removing, if add is false) amount of token0 at the given liquidity.
func GetNextSqrtPriceFromAmount0(sqrtPX96 *big.Int, liquidity *big.Int, amount *big.Int, add bool) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtPX96), nil
	}

	numerator1 := new(big.Int).Lsh(liquidity, 96)

	if add {
		product := new(big.Int).Mul(amount, sqrtPX96)
		denominator := new(big.Int).Add(numerator1, product)
		if denominator.Cmp(numerator1) >= 0 {
			num := new(big.Int).Mul(numerator1, sqrtPX96)
			return mulDivRoundingUp(num, big.NewInt(1), denominator), nil
		}
		denominator = new(big.Int).Add(new(big.Int).Div(numerator1, sqrtPX96), amount)
		return divRoundingUp(numerator1, denominator), nil
	}

	product := new(big.Int).Mul(amount, sqrtPX96)
	if new(big.Int).Div(numerator1, sqrtPX96).Cmp(amount) <= 0 {
		return nil, ErrPriceOverflow
	}
	denominator := new(big.Int).Sub(numerator1, product)
	result := mulDivRoundingUp(numerator1, sqrtPX96, denominator)
	if result.Cmp(maxUint160) > 0 {
		return nil, ErrPriceOverflow
	}
	return result, nil
}

// GetNextSqrtPriceFromAmount1 computes the new sqrt price after adding (or
// removing) amount of token1 at the given liquidity.
func GetNextSqrtPriceFromAmount1(sqrtPX96 *big.Int, liquidity *big.Int, amount *big.Int, add bool) (*big.Int, error) {
	if add {
		var quotient *big.Int
		if amount.Cmp(maxUint160) <= 0 {
			quotient = new(big.Int).Div(new(big.Int).Lsh(amount, 96), liquidity)
		} else {
			quotient = new(big.Int).Div(new(big.Int).Mul(amount, q96), liquidity)
		}
		return new(big.Int).Add(sqrtPX96, quotient), nil
	}

	quotient := divRoundingUp(new(big.Int).Lsh(amount, 96), liquidity)
	if sqrtPX96.Cmp(quotient) <= 0 {
		return nil, ErrPriceOverflow
	}
	return new(big.Int).Sub(sqrtPX96, quotient), nil
}

// GetAmount0Delta returns the amount of token0 required to move the price
// from sqrtPA to sqrtPB at the given liquidity.
func GetAmount0Delta(sqrtPA, sqrtPB *big.Int, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtPA.Cmp(sqrtPB) > 0 {
		sqrtPA, sqrtPB = sqrtPB, sqrtPA
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(sqrtPB, sqrtPA)

	if sqrtPA.Sign() <= 0 {
		return big.NewInt(0)
	}

	if roundUp {
		n := mulDivRoundingUp(numerator1, numerator2, sqrtPB)
		return divRoundingUp(n, sqrtPA)
	}
	n := new(big.Int).Mul(numerator1, numerator2)
	n.Div(n, sqrtPB)
	return n.Div(n, sqrtPA)
}

// GetAmount1Delta returns the amount of token1 required to move the price
// from sqrtPA to sqrtPB at the given liquidity.
func GetAmount1Delta(sqrtPA, sqrtPB *big.Int, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtPA.Cmp(sqrtPB) > 0 {
		sqrtPA, sqrtPB = sqrtPB, sqrtPA
	}
	diff := new(big.Int).Sub(sqrtPB, sqrtPA)
	if roundUp {
		return mulDivRoundingUp(liquidity, diff, q96)
	}
	n := new(big.Int).Mul(liquidity, diff)
	return n.Div(n, q96)
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

func divRoundingUp(a, b *big.Int) *big.Int {
	result := new(big.Int)
	rem := new(big.Int)
	result.DivMod(a, b, rem)
	if rem.Sign() != 0 {
		result.Add(result, big.NewInt(1))
	}
	return result
}
