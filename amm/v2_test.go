package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyclicarb/arbengine/pool"
)

func v2TestPool(reserveA, reserveB int64, feeBps uint32) pool.Pool {
	return pool.Pool{
		ID:       1,
		ChainID:  1,
		Kind:     pool.ConstantProductV2,
		Tokens:   []uint64{10, 20},
		Reserves: []*big.Int{big.NewInt(reserveA), big.NewInt(reserveB)},
		FeeBps:   feeBps,
		Params:   pool.KindParams{V2: &pool.V2Params{}},
	}
}

func TestSwapOutputV2_BasicQuote(t *testing.T) {
	p := v2TestPool(1_000_000, 1_000_000, 30)
	out, err := SwapOutputV2(p, 10, big.NewInt(1_000))
	require.NoError(t, err)
	assert.True(t, out.Sign() > 0)
	assert.True(t, out.Cmp(big.NewInt(1_000)) < 0)
}

func TestSwapOutputV2_ZeroAmountInYieldsZero(t *testing.T) {
	p := v2TestPool(1_000_000, 1_000_000, 30)
	out, err := SwapOutputV2(p, 10, big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(0), out)
}

func TestSwapOutputV2_AmountInEqualsReserveFails(t *testing.T) {
	p := v2TestPool(1_000_000, 1_000_000, 30)
	_, err := SwapOutputV2(p, 10, big.NewInt(1_000_000))
	require.Error(t, err)
	assert.True(t, IsCode(err, InsufficientLiquidity))
	assert.False(t, IsCode(err, Overflow))
}

func TestSwapOutputV2_WrongKindRejected(t *testing.T) {
	p := v2TestPool(1_000_000, 1_000_000, 30)
	p.Kind = pool.ConcentratedV3
	_, err := SwapOutputV2(p, 10, big.NewInt(1_000))
	require.Error(t, err)
	assert.True(t, IsCode(err, UnsupportedPool))
}

func TestSwapOutputV2_ConstantProductNonDecreasingAfterFee(t *testing.T) {
	p := v2TestPool(5_000_000, 3_000_000, 30)
	kBefore := new(big.Int).Mul(p.Reserves[0], p.Reserves[1])

	amountIn := big.NewInt(10_000)
	out, err := SwapOutputV2(p, 10, amountIn)
	require.NoError(t, err)

	reserveInAfter := new(big.Int).Add(p.Reserves[0], amountIn)
	reserveOutAfter := new(big.Int).Sub(p.Reserves[1], out)
	kAfter := new(big.Int).Mul(reserveInAfter, reserveOutAfter)

	assert.True(t, kAfter.Cmp(kBefore) >= 0, "k must not decrease after a fee-bearing swap")
}

func TestSpotPriceV2_NetOfFee(t *testing.T) {
	p := v2TestPool(1_000_000, 2_000_000, 30)
	price, err := SpotPriceV2(p, 10)
	require.NoError(t, err)
	assert.True(t, price.Sign() > 0)

	f, _ := price.Float64()
	assert.InDelta(t, 2.0*0.997, f, 0.01)
}

func TestSpotPriceV2_InsufficientLiquidity(t *testing.T) {
	p := v2TestPool(0, 2_000_000, 30)
	_, err := SpotPriceV2(p, 10)
	require.Error(t, err)
	assert.True(t, IsCode(err, InsufficientLiquidity))
}
