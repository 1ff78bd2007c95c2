package evaluate

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyclicarb/arbengine/flashloan"
	"github.com/cyclicarb/arbengine/pathfinder"
	"github.com/cyclicarb/arbengine/pool"
)

func twoHopV2Snapshot(t *testing.T) (*pool.Snapshot, pathfinder.Path) {
	t.Helper()
	reg := pool.NewRegistry()
	p1 := pool.Pool{
		ID: 1, ChainID: 1, Kind: pool.ConstantProductV2, Active: true,
		Tokens: []uint64{1, 2}, Reserves: []*big.Int{big.NewInt(1_000_000), big.NewInt(2_000_000)},
		FeeBps: 30, Params: pool.KindParams{V2: &pool.V2Params{}},
	}
	p2 := pool.Pool{
		ID: 2, ChainID: 1, Kind: pool.ConstantProductV2, Active: true,
		Tokens: []uint64{2, 1}, Reserves: []*big.Int{big.NewInt(1_800_000), big.NewInt(1_000_000)},
		FeeBps: 30, Params: pool.KindParams{V2: &pool.V2Params{}},
	}
	stats := reg.ApplyUpdate([]pool.Pool{p1, p2})
	require.Equal(t, 2, stats.Applied)

	path := pathfinder.Path{Legs: []pathfinder.Leg{
		{PoolID: 1, TokenIn: 1, TokenOut: 2},
		{PoolID: 2, TokenIn: 2, TokenOut: 1},
	}}
	return reg.Snapshot(), path
}

func identityTokenUSD(token uint64, amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	out, _ := f.Float64()
	return out
}

func TestEvaluator_ProfitableTwoHopCycleApproves(t *testing.T) {
	snap, path := twoHopV2Snapshot(t)
	eval := NewEvaluator(nil, nil, DefaultGates(), flashloan.DefaultProviders(), nil)

	o, err := eval.Evaluate(context.Background(), snap, path, nil, 0.99, identityTokenUSD)
	require.NoError(t, err)
	assert.Equal(t, StateApproved, o.State)
	assert.True(t, o.NetProfitUSD > 0)
	assert.Less(t, o.SlippageBps, 500.0)
}

func TestEvaluator_UnprofitablePathRejectsNoProfit(t *testing.T) {
	reg := pool.NewRegistry()
	p1 := pool.Pool{
		ID: 1, ChainID: 1, Kind: pool.ConstantProductV2, Active: true,
		Tokens: []uint64{1, 2}, Reserves: []*big.Int{big.NewInt(1_000_000), big.NewInt(1_000_000)},
		FeeBps: 30, Params: pool.KindParams{V2: &pool.V2Params{}},
	}
	p2 := pool.Pool{
		ID: 2, ChainID: 1, Kind: pool.ConstantProductV2, Active: true,
		Tokens: []uint64{2, 1}, Reserves: []*big.Int{big.NewInt(1_000_000), big.NewInt(1_000_000)},
		FeeBps: 30, Params: pool.KindParams{V2: &pool.V2Params{}},
	}
	stats := reg.ApplyUpdate([]pool.Pool{p1, p2})
	require.Equal(t, 2, stats.Applied)

	path := pathfinder.Path{Legs: []pathfinder.Leg{
		{PoolID: 1, TokenIn: 1, TokenOut: 2},
		{PoolID: 2, TokenIn: 2, TokenOut: 1},
	}}

	eval := NewEvaluator(nil, nil, DefaultGates(), flashloan.DefaultProviders(), nil)
	o, err := eval.Evaluate(context.Background(), reg.Snapshot(), path, nil, 0.99, identityTokenUSD)
	require.NoError(t, err)
	assert.Equal(t, StateRejected, o.State)
	assert.Equal(t, RejectNoProfit, o.RejectReason)
}

func TestEvaluator_LowConfidenceRejects(t *testing.T) {
	snap, path := twoHopV2Snapshot(t)
	eval := NewEvaluator(nil, nil, DefaultGates(), flashloan.DefaultProviders(), nil)

	o, err := eval.Evaluate(context.Background(), snap, path, nil, 0.50, identityTokenUSD)
	require.NoError(t, err)
	assert.Equal(t, StateRejected, o.State)
	assert.Equal(t, RejectLowConfidence, o.RejectReason)
}

func TestEvaluator_FallbackScoreUsedWithoutMLAdapter(t *testing.T) {
	snap, path := twoHopV2Snapshot(t)
	eval := NewEvaluator(nil, nil, DefaultGates(), flashloan.DefaultProviders(), nil)

	o, err := eval.Evaluate(context.Background(), snap, path, nil, 0.99, identityTokenUSD)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, o.MLScore, 0.0)
	assert.LessOrEqual(t, o.MLScore, 1.0)
}
