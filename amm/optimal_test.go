package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cyclicThreeHopPath builds a triangular path A->B->C->A where the C->A leg
// is priced slightly favorably, creating a profitable region for some
// amount_in.
func cyclicThreeHopPath() []Hop {
	poolAB := v2TestPool(10_000_000, 10_000_000, 10)
	poolAB.Tokens = []uint64{1, 2}

	poolBC := v2TestPool(10_000_000, 10_000_000, 10)
	poolBC.Tokens = []uint64{2, 3}

	poolCA := v2TestPool(9_000_000, 10_200_000, 10)
	poolCA.Tokens = []uint64{3, 1}

	return []Hop{
		{Pool: poolAB, TokenIn: 1, TokenOut: 2},
		{Pool: poolBC, TokenIn: 2, TokenOut: 3},
		{Pool: poolCA, TokenIn: 3, TokenOut: 1},
	}
}

func TestOptimalInput_FindsProfitableAmount(t *testing.T) {
	hops := cyclicThreeHopPath()
	result, err := OptimalInput(hops)
	require.NoError(t, err)
	assert.True(t, result.AmountIn.Sign() > 0)
	assert.True(t, result.ProfitOut.Sign() > 0)
}

func TestOptimalInput_Deterministic(t *testing.T) {
	hops1 := cyclicThreeHopPath()
	hops2 := cyclicThreeHopPath()

	r1, err := OptimalInput(hops1)
	require.NoError(t, err)
	r2, err := OptimalInput(hops2)
	require.NoError(t, err)

	assert.Equal(t, r1.AmountIn, r2.AmountIn)
	assert.Equal(t, r1.ProfitOut, r2.ProfitOut)
}

func TestOptimalInput_EmptyPathRejected(t *testing.T) {
	_, err := OptimalInput(nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, DomainError))
}

func TestOptimalInput_RespectsReserveCap(t *testing.T) {
	hops := cyclicThreeHopPath()
	result, err := OptimalInput(hops)
	require.NoError(t, err)

	cap := new(big.Int).Div(new(big.Int).Mul(big.NewInt(3), hops[0].Pool.Reserves[0]), big.NewInt(10))
	assert.True(t, result.AmountIn.Cmp(cap) <= 0)
}
