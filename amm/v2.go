package amm

import (
	"math/big"
	"sync"

	"github.com/cyclicarb/arbengine/pool"
)

var basisPointDivisor = big.NewInt(10_000)

// v2Scratch holds reusable big.Int objects to avoid per-call allocation,
// matching the teacher's uniswapv2 calculator's allocation discipline.
type v2Scratch struct {
	feeMultiplier   *big.Int
	amountInWithFee *big.Int
	numerator       *big.Int
	denominator     *big.Int
}

var v2ScratchPool = sync.Pool{
	New: func() any {
		return &v2Scratch{
			feeMultiplier:   new(big.Int),
			amountInWithFee: new(big.Int),
			numerator:       new(big.Int),
			denominator:     new(big.Int),
		}
	},
}

// SwapOutputV2 computes the constant-product swap output per spec §4.1:
//
//	amount_out = (amount_in * (10000 - fee) * reserve_out) /
//	             (reserve_in * 10000 + amount_in * (10000 - fee))
func SwapOutputV2(p pool.Pool, tokenIn uint64, amountIn *big.Int) (*big.Int, error) {
	if p.Kind != pool.ConstantProductV2 {
		return nil, newErr(UnsupportedPool, "SwapOutputV2 called on non-v2 pool")
	}
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, newErr(DomainError, "amount_in must be non-nil and non-negative")
	}

	inIdx := p.TokenIndex(tokenIn)
	if inIdx < 0 || len(p.Tokens) != 2 {
		return nil, newErr(DomainError, "token_in not a member of pool")
	}
	outIdx := 1 - inIdx

	reserveIn := p.Reserves[inIdx]
	reserveOut := p.Reserves[outIdx]

	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, newErr(InsufficientLiquidity, "pool has non-positive reserve")
	}
	if amountIn.Sign() > 0 && amountIn.Cmp(reserveIn) >= 0 {
		return nil, newErr(InsufficientLiquidity, "amount_in >= reserve_in")
	}

	s := v2ScratchPool.Get().(*v2Scratch)
	defer v2ScratchPool.Put(s)

	s.feeMultiplier.Sub(basisPointDivisor, big.NewInt(int64(p.FeeBps)))
	s.amountInWithFee.Mul(amountIn, s.feeMultiplier)
	s.numerator.Mul(reserveOut, s.amountInWithFee)
	s.denominator.Mul(reserveIn, basisPointDivisor)
	s.denominator.Add(s.denominator, s.amountInWithFee)

	if s.denominator.Sign() == 0 {
		return nil, newErr(DomainError, "zero denominator")
	}

	return new(big.Int).Div(s.numerator, s.denominator), nil
}

// SpotPriceV2 returns the infinitesimal-limit spot price of tokenIn in
// terms of tokenOut, net of fee, as an exact rational.
func SpotPriceV2(p pool.Pool, tokenIn uint64) (*big.Rat, error) {
	if p.Kind != pool.ConstantProductV2 {
		return nil, newErr(UnsupportedPool, "SpotPriceV2 called on non-v2 pool")
	}
	inIdx := p.TokenIndex(tokenIn)
	if inIdx < 0 || len(p.Tokens) != 2 {
		return nil, newErr(DomainError, "token_in not a member of pool")
	}
	outIdx := 1 - inIdx
	reserveIn := p.Reserves[inIdx]
	reserveOut := p.Reserves[outIdx]
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, newErr(InsufficientLiquidity, "pool has non-positive reserve")
	}
	// spot price = reserveOut/reserveIn, net of fee.
	feeMul := new(big.Int).Sub(basisPointDivisor, big.NewInt(int64(p.FeeBps)))
	num := new(big.Int).Mul(reserveOut, feeMul)
	den := new(big.Int).Mul(reserveIn, basisPointDivisor)
	return new(big.Rat).SetFrac(num, den), nil
}
