package amm

import (
	"math"
	"math/big"

	"github.com/cyclicarb/arbengine/pool"
)

// SwapOutputWeighted computes the Balancer-style weighted-pool output per
// spec §4.1:
//
//	out = reserve_out * (1 - (reserve_in/(reserve_in+amount_in*(1-fee)))^(w_in/w_out))
//
// Weights and reserves are converted to float64 for the exponentiation;
// weighted pools are specified at basis-point granularity, so this loses no
// precision that matters at trade scale.
func SwapOutputWeighted(p pool.Pool, tokenIn, tokenOut uint64, amountIn *big.Int) (*big.Int, error) {
	if p.Kind != pool.WeightedBalancer || p.Params.Weighted == nil {
		return nil, newErr(UnsupportedPool, "SwapOutputWeighted called on non-weighted pool")
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

	weights := p.Params.Weighted.WeightsBps
	if len(weights) != len(p.Tokens) {
		return nil, newErr(DomainError, "weighted pool weight count mismatches token count")
	}
	wIn, wOut := float64(weights[inIdx]), float64(weights[outIdx])
	if wIn <= 0 || wOut <= 0 {
		return nil, newErr(DomainError, "weighted pool weights must be positive")
	}

	reserveIn := p.Reserves[inIdx]
	reserveOut := p.Reserves[outIdx]
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, newErr(InsufficientLiquidity, "pool has non-positive reserve")
	}
	if amountIn.Cmp(reserveIn) >= 0 {
		return nil, newErr(InsufficientLiquidity, "amount_in >= reserve_in")
	}

	feeFraction := float64(p.FeeBps) / 10_000.0
	amountInAfterFee := new(big.Float).SetInt(amountIn)
	amountInAfterFee.Mul(amountInAfterFee, big.NewFloat(1-feeFraction))

	reserveInF := new(big.Float).SetInt(reserveIn)
	reserveOutF := new(big.Float).SetInt(reserveOut)

	denominator := new(big.Float).Add(reserveInF, amountInAfterFee)
	base := new(big.Float).Quo(reserveInF, denominator)
	baseF64, _ := base.Float64()
	if baseF64 <= 0 {
		return nil, newErr(DomainError, "weighted pool base ratio out of domain")
	}

	exponent := wIn / wOut
	factor := math.Pow(baseF64, exponent)
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, newErr(DomainError, "weighted pool exponentiation produced a non-finite result")
	}

	outMultiplier := 1 - factor
	if outMultiplier <= 0 {
		return big.NewInt(0), nil
	}

	outF := new(big.Float).Mul(reserveOutF, big.NewFloat(outMultiplier))
	out, _ := outF.Int(nil)
	return out, nil
}
