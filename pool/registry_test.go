package pool

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func v2Pool(id uint64, chainID uint64, a, b uint64, reserveA, reserveB int64, feeBps uint32) Pool {
	return Pool{
		ID:       id,
		ChainID:  chainID,
		Kind:     ConstantProductV2,
		Address:  "0xpool",
		Tokens:   []uint64{a, b},
		Reserves: []*big.Int{big.NewInt(reserveA), big.NewInt(reserveB)},
		FeeBps:   feeBps,
		Params:   KindParams{V2: &V2Params{}},
	}
}

func TestRegistry_ApplyUpdate_AcceptsValidRejectsInvalid(t *testing.T) {
	r := NewRegistry()

	good := v2Pool(1, 1, 10, 20, 1_000_000, 2_000_000, 30)
	bad := v2Pool(2, 1, 10, 30, -1, 500, 30) // negative reserve violates P1

	stats := r.ApplyUpdate([]Pool{good, bad})
	assert.Equal(t, 1, stats.Applied)
	require.Len(t, stats.Rejected, 1)
	assert.Equal(t, uint64(2), stats.Rejected[0].PoolID)

	snap := r.Snapshot()
	p, ok := snap.PoolByID(1)
	require.True(t, ok)
	assert.Equal(t, ConstantProductV2, p.Kind)

	_, ok = snap.PoolByID(2)
	assert.False(t, ok, "invalid row must not be applied")
}

func TestRegistry_ApplyUpdate_Idempotent(t *testing.T) {
	r := NewRegistry()
	p := v2Pool(1, 1, 10, 20, 1_000_000, 2_000_000, 30)

	r.ApplyUpdate([]Pool{p})
	first := r.Snapshot()

	r.ApplyUpdate([]Pool{p})
	second := r.Snapshot()

	assert.Equal(t, len(first.Pools), len(second.Pools))
	fp, _ := first.PoolByID(1)
	sp, _ := second.PoolByID(1)
	assert.Equal(t, fp.Reserves[0].String(), sp.Reserves[0].String())
}

func TestRegistry_SnapshotImmutable(t *testing.T) {
	r := NewRegistry()
	r.ApplyUpdate([]Pool{v2Pool(1, 1, 10, 20, 1_000_000, 2_000_000, 30)})

	snap := r.Snapshot()
	before, _ := snap.PoolByID(1)
	beforeReserve := new(big.Int).Set(before.Reserves[0])

	// A later update must not mutate anything reachable from the earlier
	// snapshot (invariant I5).
	r.ApplyUpdate([]Pool{v2Pool(1, 1, 10, 20, 9_999_999, 2_000_000, 30)})

	after, _ := snap.PoolByID(1)
	assert.Equal(t, beforeReserve.String(), after.Reserves[0].String())
}

func TestRegistry_DeactivateChain_ExcludesFromActivePools(t *testing.T) {
	r := NewRegistry()
	r.ApplyUpdate([]Pool{v2Pool(1, 7, 10, 20, 1_000_000, 2_000_000, 30)})
	r.ActivateChain(7)

	snap := r.Snapshot()
	assert.Len(t, snap.ActivePools(), 1)

	r.DeactivateChain(7)
	snap2 := r.Snapshot()
	assert.Len(t, snap2.ActivePools(), 0)
}

func TestGraph_BuildsBidirectionalAdjacency(t *testing.T) {
	r := NewRegistry()
	r.ApplyUpdate([]Pool{
		v2Pool(1, 1, 10, 20, 1_000_000, 2_000_000, 30),
		v2Pool(2, 1, 20, 30, 1_000_000, 2_000_000, 30),
	})

	g := r.Snapshot().Graph()
	edges := g.EdgesFrom(10)
	require.Len(t, edges, 1)
	assert.Equal(t, uint64(20), edges[0].TokenOut)
	assert.Equal(t, uint64(1), edges[0].PoolID)

	assert.ElementsMatch(t, []uint64{1}, g.PoolsForToken(10))
	assert.ElementsMatch(t, []uint64{1, 2}, g.PoolsForToken(20))
}

func TestSnapshot_Filter_DoesNotCopyPoolBodies(t *testing.T) {
	r := NewRegistry()
	r.ApplyUpdate([]Pool{
		v2Pool(1, 1, 10, 20, 1_000_000, 2_000_000, 30),
		v2Pool(2, 1, 20, 30, 1_000_000, 2_000_000, 5),
	})

	snap := r.Snapshot()
	lowFee := snap.Filter(func(p Pool) bool { return p.FeeBps <= 10 })
	require.Len(t, lowFee.Pools, 1)
	assert.Equal(t, uint64(2), lowFee.Pools[0].ID)
}
