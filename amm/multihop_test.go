package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyclicarb/arbengine/pool"
)

func TestMultiHopOut_TwoHopPath(t *testing.T) {
	poolAB := v2TestPool(1_000_000, 1_000_000, 30)
	poolAB.Tokens = []uint64{1, 2}

	poolBC := v2TestPool(1_000_000, 1_000_000, 30)
	poolBC.Tokens = []uint64{2, 3}

	hops := []Hop{
		{Pool: poolAB, TokenIn: 1, TokenOut: 2},
		{Pool: poolBC, TokenIn: 2, TokenOut: 3},
	}

	result, err := MultiHopOut(hops, big.NewInt(1_000))
	require.NoError(t, err)
	assert.Len(t, result.Hops, 2)
	assert.True(t, result.AmountOut.Sign() > 0)
	assert.True(t, result.SlippageBps >= 0)
}

func TestMultiHopOut_EmptyPathRejected(t *testing.T) {
	_, err := MultiHopOut(nil, big.NewInt(1_000))
	require.Error(t, err)
	assert.True(t, IsCode(err, DomainError))
}

func TestMultiHopOut_PropagatesHopError(t *testing.T) {
	poolAB := v2TestPool(1_000_000, 1_000_000, 30)
	poolAB.Tokens = []uint64{1, 2}
	poolAB.Kind = pool.ConcentratedV3

	hops := []Hop{{Pool: poolAB, TokenIn: 1, TokenOut: 2}}
	_, err := MultiHopOut(hops, big.NewInt(1_000))
	require.Error(t, err)
	assert.True(t, IsCode(err, UnsupportedPool))
}

func TestSlippageBps_NonNegative(t *testing.T) {
	p := v2TestPool(1_000_000, 1_000_000, 30)
	out, err := SwapOutputV2(p, 10, big.NewInt(10_000))
	require.NoError(t, err)

	slip, err := SlippageBps(p, 10, 20, big.NewInt(10_000), out)
	require.NoError(t, err)
	assert.True(t, slip >= 0)
}
