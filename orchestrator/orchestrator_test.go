package orchestrator

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyclicarb/arbengine/evaluate"
	"github.com/cyclicarb/arbengine/pathfinder"
	"github.com/cyclicarb/arbengine/pool"
)

func twoHopRegistry(t *testing.T) *pool.Registry {
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
	return reg
}

func TestOrchestrator_TickApprovesAndRecordsPaperTrade(t *testing.T) {
	reg := twoHopRegistry(t)
	queue := NewApprovedQueue(16)

	var recorded int32
	gate := NewModeGate(ModeSimulation, nil, func(o *evaluate.Opportunity) { atomic.AddInt32(&recorded, 1) }, nil, 0)

	evalFn := func(ctx context.Context, snap *pool.Snapshot, path pathfinder.Path) (*evaluate.Opportunity, error) {
		return &evaluate.Opportunity{State: evaluate.StateApproved, Path: path, MLScore: 0.5, NetProfitUSD: 10}, nil
	}

	refreshCalls := int32(0)
	refresh := func(ctx context.Context) error {
		atomic.AddInt32(&refreshCalls, 1)
		return nil
	}

	cfg := DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	orch := New(reg, []uint64{1}, pathfinder.Options{MaxHops: 3}, refresh, evalFn, gate, queue, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := orch.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.True(t, atomic.LoadInt32(&refreshCalls) > 0)
	assert.True(t, atomic.LoadInt32(&recorded) > 0)
	assert.True(t, queue.Len() > 0)
}

func TestOrchestrator_RefreshErrorDoesNotHaltLoop(t *testing.T) {
	reg := twoHopRegistry(t)
	queue := NewApprovedQueue(16)
	gate := NewModeGate(ModeSimulation, nil, nil, nil, 0)

	calls := int32(0)
	refresh := func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return assertError{}
		}
		return nil
	}
	evalFn := func(ctx context.Context, snap *pool.Snapshot, path pathfinder.Path) (*evaluate.Opportunity, error) {
		return &evaluate.Opportunity{State: evaluate.StateRejected}, nil
	}

	cfg := DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	orch := New(reg, []uint64{1}, pathfinder.Options{MaxHops: 3}, refresh, evalFn, gate, queue, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = orch.Run(ctx)

	assert.True(t, atomic.LoadInt32(&calls) > 1)
}

type assertError struct{}

func (assertError) Error() string { return "injected refresh failure" }
