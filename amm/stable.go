package amm

import (
	"math/big"

	"github.com/cyclicarb/arbengine/pool"
)

// stableNewtonMaxIterations bounds the Newton iterations used to solve the
// StableSwap invariant, per spec §4.1.
const stableNewtonMaxIterations = 255

// getD solves the StableSwap invariant for D given balances and the
// amplification coefficient, via Newton's method:
//
//	A*n^n*sum(x_i) + D = A*D*n^n + D^(n+1) / (n^n * prod(x_i))
func getD(balances []*big.Int, amp *big.Int) (*big.Int, error) {
	n := int64(len(balances))
	nBig := big.NewInt(n)

	sum := new(big.Int)
	for _, b := range balances {
		if b.Sign() < 0 {
			return nil, newErr(DomainError, "stable pool balance must be non-negative")
		}
		sum.Add(sum, b)
	}
	if sum.Sign() == 0 {
		return big.NewInt(0), nil
	}

	ann := new(big.Int).Mul(amp, nBig)
	for i := int64(1); i < n; i++ {
		ann.Mul(ann, nBig)
	}

	d := new(big.Int).Set(sum)
	for i := 0; i < stableNewtonMaxIterations; i++ {
		dP := new(big.Int).Set(d)
		for _, b := range balances {
			if b.Sign() == 0 {
				return nil, newErr(ConvergenceFailure, "stable pool balance is zero, invariant undefined")
			}
			dP.Mul(dP, d)
			dP.Div(dP, new(big.Int).Mul(b, nBig))
		}

		dPrev := new(big.Int).Set(d)

		numerator := new(big.Int).Mul(ann, sum)
		numerator.Add(numerator, new(big.Int).Mul(dP, nBig))
		numerator.Mul(numerator, d)

		denominator := new(big.Int).Sub(ann, big.NewInt(1))
		denominator.Mul(denominator, d)
		denominator.Add(denominator, new(big.Int).Mul(big.NewInt(n+1), dP))

		if denominator.Sign() == 0 {
			return nil, newErr(ConvergenceFailure, "stable invariant denominator collapsed to zero")
		}
		d = numerator.Div(numerator, denominator)

		diff := new(big.Int).Sub(d, dPrev)
		if diff.CmpAbs(big.NewInt(1)) <= 0 {
			return d, nil
		}
	}
	return nil, newErr(ConvergenceFailure, "stable invariant D did not converge within bound")
}

// getY solves for the new balance of tokenOutIdx given the updated balance
// of tokenInIdx and the invariant D, via Newton's method over a single
// variable.
func getY(balances []*big.Int, inIdx, outIdx int, newInBalance *big.Int, amp *big.Int, d *big.Int) (*big.Int, error) {
	n := int64(len(balances))
	nBig := big.NewInt(n)

	ann := new(big.Int).Mul(amp, nBig)
	for i := int64(1); i < n; i++ {
		ann.Mul(ann, nBig)
	}

	c := new(big.Int).Set(d)
	sum := new(big.Int)
	for i, b := range balances {
		if i == outIdx {
			continue
		}
		var x *big.Int
		if i == inIdx {
			x = newInBalance
		} else {
			x = b
		}
		if x.Sign() <= 0 {
			return nil, newErr(DomainError, "stable pool balance must be positive")
		}
		c.Mul(c, d)
		c.Div(c, new(big.Int).Mul(x, nBig))
		sum.Add(sum, x)
	}

	c.Mul(c, d)
	c.Div(c, new(big.Int).Mul(ann, nBig))

	b := new(big.Int).Add(sum, new(big.Int).Div(d, ann))

	y := new(big.Int).Set(d)
	for i := 0; i < stableNewtonMaxIterations; i++ {
		yPrev := new(big.Int).Set(y)

		numerator := new(big.Int).Mul(y, y)
		numerator.Add(numerator, c)
		denominator := new(big.Int).Mul(big.NewInt(2), y)
		denominator.Add(denominator, b)
		denominator.Sub(denominator, d)

		if denominator.Sign() == 0 {
			return nil, newErr(ConvergenceFailure, "stable get_y denominator collapsed to zero")
		}
		y = numerator.Div(numerator, denominator)

		diff := new(big.Int).Sub(y, yPrev)
		if diff.CmpAbs(big.NewInt(1)) <= 0 {
			return y, nil
		}
	}
	return nil, newErr(ConvergenceFailure, "stable get_y did not converge within bound")
}

// SwapOutputStable computes the StableSwap output for a trade between two
// tokens of a multi-asset stable pool, per spec §4.1.
func SwapOutputStable(p pool.Pool, tokenIn, tokenOut uint64, amountIn *big.Int) (*big.Int, error) {
	if p.Kind != pool.StableCurve || p.Params.Stable == nil {
		return nil, newErr(UnsupportedPool, "SwapOutputStable called on non-stable pool")
	}
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, newErr(DomainError, "amount_in must be non-nil and non-negative")
	}
	if amountIn.Sign() == 0 {
		return big.NewInt(0), nil
	}

	inIdx := p.TokenIndex(tokenIn)
	outIdx := p.TokenIndex(tokenOut)
	if inIdx < 0 || outIdx < 0 || inIdx == outIdx {
		return nil, newErr(DomainError, "token_in/token_out not distinct members of pool")
	}

	amp := p.Params.Stable.Amp
	if amp == nil || amp.Sign() <= 0 {
		return nil, newErr(DomainError, "stable pool missing amplification coefficient")
	}
	for _, r := range p.Reserves {
		if r.Sign() <= 0 {
			return nil, newErr(InsufficientLiquidity, "stable pool has non-positive reserve")
		}
	}

	d, err := getD(p.Reserves, amp)
	if err != nil {
		return nil, err
	}

	newInBalance := new(big.Int).Add(p.Reserves[inIdx], amountIn)

	newOutBalance, err := getY(p.Reserves, inIdx, outIdx, newInBalance, amp, d)
	if err != nil {
		return nil, err
	}

	if newOutBalance.Cmp(p.Reserves[outIdx]) >= 0 {
		return nil, newErr(InsufficientLiquidity, "stable swap produced non-positive output")
	}

	feeMultiplier := new(big.Int).Sub(basisPointDivisor, big.NewInt(int64(p.FeeBps)))
	grossOut := new(big.Int).Sub(p.Reserves[outIdx], newOutBalance)
	netOut := new(big.Int).Mul(grossOut, feeMultiplier)
	netOut.Div(netOut, basisPointDivisor)

	return netOut, nil
}
