package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyclicarb/arbengine/amm/v3/tickmath"
	"github.com/cyclicarb/arbengine/pool"
)

func v3TestPool(tick int64, liquidity int64, ticks []pool.TickInfo) pool.Pool {
	sqrtP := new(big.Int)
	_ = tickmath.GetSqrtRatioAtTick(sqrtP, tick)
	return pool.Pool{
		ID:       1,
		ChainID:  1,
		Kind:     pool.ConcentratedV3,
		Tokens:   []uint64{10, 20},
		Reserves: []*big.Int{big.NewInt(1_000_000_000), big.NewInt(1_000_000_000)},
		FeeBps:   30,
		Params: pool.KindParams{
			V3: &pool.V3Params{
				SqrtPriceX96: sqrtP,
				Liquidity:    big.NewInt(liquidity),
				Tick:         tick,
				TickSpacing:  60,
				Ticks:        ticks,
			},
		},
	}
}

func TestSwapOutputV3_WithinSingleTickRange(t *testing.T) {
	ticks := []pool.TickInfo{
		{Index: -600, LiquidityNet: big.NewInt(500_000)},
		{Index: 600, LiquidityNet: big.NewInt(-500_000)},
	}
	p := v3TestPool(0, 500_000, ticks)

	out, err := SwapOutputV3(p, 10, big.NewInt(1_000))
	require.NoError(t, err)
	assert.True(t, out.Sign() > 0)
}

func TestSwapOutputV3_ZeroAmountInIsDomainError(t *testing.T) {
	ticks := []pool.TickInfo{
		{Index: -600, LiquidityNet: big.NewInt(500_000)},
		{Index: 600, LiquidityNet: big.NewInt(-500_000)},
	}
	p := v3TestPool(0, 500_000, ticks)

	_, err := SwapOutputV3(p, 10, big.NewInt(0))
	require.Error(t, err)
	assert.True(t, IsCode(err, DomainError))
}

func TestSwapOutputV3_WrongKindRejected(t *testing.T) {
	p := v3TestPool(0, 500_000, nil)
	p.Kind = pool.ConstantProductV2
	_, err := SwapOutputV3(p, 10, big.NewInt(1_000))
	require.Error(t, err)
	assert.True(t, IsCode(err, UnsupportedPool))
}

func TestSwapOutputV3_ExhaustsLiquidityBeyondInitializedRange(t *testing.T) {
	ticks := []pool.TickInfo{
		{Index: -60, LiquidityNet: big.NewInt(1_000)},
		{Index: 60, LiquidityNet: big.NewInt(-1_000)},
	}
	p := v3TestPool(0, 1_000, ticks)

	_, err := SwapOutputV3(p, 10, big.NewInt(1_000_000_000))
	require.Error(t, err)
	assert.True(t, IsCode(err, InsufficientLiquidity))
}

func TestSpotPriceV3_MatchesDirection(t *testing.T) {
	ticks := []pool.TickInfo{
		{Index: -600, LiquidityNet: big.NewInt(500_000)},
		{Index: 600, LiquidityNet: big.NewInt(-500_000)},
	}
	p := v3TestPool(0, 500_000, ticks)

	priceFwd, err := SpotPriceV3(p, 10)
	require.NoError(t, err)
	priceRev, err := SpotPriceV3(p, 20)
	require.NoError(t, err)

	product := new(big.Rat).Mul(priceFwd, priceRev)
	f, _ := product.Float64()
	assert.InDelta(t, 1.0, f, 1e-6)
}
