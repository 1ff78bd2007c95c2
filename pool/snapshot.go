package pool

import (
	"encoding/json"
	"sync"
)

// Snapshot is an immutable view of the pool registry valid for one
// orchestrator tick. Readers obtained via Registry.Snapshot never observe a
// torn update (invariant I5): once returned, no later ApplyUpdate mutates
// any Pool reachable from it.
//
// The token-adjacency Graph is derived lazily on first use and cached on
// the snapshot via graphOnce, matching spec §4.2's "built lazily on first
// pathfinder query per snapshot and cached inside the snapshot" — the
// laziness is an internal cache, not a mutation of the published data.
type Snapshot struct {
	Pools        []Pool
	poolIndex    map[uint64]int
	activeChains map[uint64]bool

	graphOnce sync.Once
	graph     *Graph
}

// newSnapshot builds an immutable snapshot from a pool slice and active
// chain mask. The caller must not mutate pools or activeChains afterward.
func newSnapshot(pools []Pool, activeChains map[uint64]bool) *Snapshot {
	idx := make(map[uint64]int, len(pools))
	for i, p := range pools {
		idx[p.ID] = i
	}
	return &Snapshot{
		Pools:        pools,
		poolIndex:    idx,
		activeChains: activeChains,
	}
}

// PoolByID returns a pool by interned id.
func (s *Snapshot) PoolByID(id uint64) (Pool, bool) {
	i, ok := s.poolIndex[id]
	if !ok {
		return Pool{}, false
	}
	return s.Pools[i], true
}

// IsChainActive reports whether chainID is enabled for trading.
func (s *Snapshot) IsChainActive(chainID uint64) bool {
	if s.activeChains == nil {
		return true
	}
	active, ok := s.activeChains[chainID]
	return !ok || active
}

// ActivePools returns the subset of Pools belonging to active chains.
func (s *Snapshot) ActivePools() []Pool {
	out := make([]Pool, 0, len(s.Pools))
	for _, p := range s.Pools {
		if p.Active && s.IsChainActive(p.ChainID) {
			out = append(out, p)
		}
	}
	return out
}

// Graph returns the token-adjacency graph for this snapshot, building it on
// first call and reusing it afterward.
func (s *Snapshot) Graph() *Graph {
	s.graphOnce.Do(func() {
		s.graph = buildGraph(s.ActivePools())
	})
	return s.graph
}

// Filter produces a derived snapshot containing only pools matching pred,
// without copying pool bodies (per spec §4.2).
func (s *Snapshot) Filter(pred func(Pool) bool) *Snapshot {
	filtered := make([]Pool, 0, len(s.Pools))
	for _, p := range s.Pools {
		if pred(p) {
			filtered = append(filtered, p)
		}
	}
	activeCopy := make(map[uint64]bool, len(s.activeChains))
	for k, v := range s.activeChains {
		activeCopy[k] = v
	}
	return newSnapshot(filtered, activeCopy)
}

// persistedSnapshot is the on-disk JSON shape for the pool-registry
// snapshot file named in spec §6.2.
type persistedSnapshot struct {
	Pools        []Pool          `json:"pools"`
	ActiveChains map[uint64]bool `json:"activeChains"`
}

// MarshalJSON implements json.Marshaler with a stable, additive-evolution
// friendly shape.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(persistedSnapshot{Pools: s.Pools, ActiveChains: s.activeChains})
}

// UnmarshalSnapshot restores a Snapshot from its persisted JSON form.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var p persistedSnapshot
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return newSnapshot(p.Pools, p.ActiveChains), nil
}
