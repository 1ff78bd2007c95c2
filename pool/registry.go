package pool

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Registry is the concurrency-safe, copy-on-write canonical pool store
// (C2). Writers serialize through mu; readers call Snapshot and get a
// lock-free, immutable view via an atomic.Pointer cache.
//
// This mirrors the teacher's TokenPoolSystem (see
// protocols/tokenpoolregistry/system.go): a sync.RWMutex for writers and an
// atomic.Pointer[Snapshot] for readers, updated once per write batch rather
// than once per row.
type Registry struct {
	mu      sync.RWMutex
	pools   map[uint64]Pool
	active  map[uint64]bool // chainID -> active
	cached  atomic.Pointer[Snapshot]
}

// NewRegistry creates an empty Registry with an initial empty snapshot
// already cached, so Snapshot() never returns nil.
func NewRegistry() *Registry {
	r := &Registry{
		pools:  make(map[uint64]Pool),
		active: make(map[uint64]bool),
	}
	r.cached.Store(r.buildSnapshot())
	return r
}

// buildSnapshot must be called with mu held (read or write).
func (r *Registry) buildSnapshot() *Snapshot {
	pools := make([]Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	activeCopy := make(map[uint64]bool, len(r.active))
	for k, v := range r.active {
		activeCopy[k] = v
	}
	return newSnapshot(pools, activeCopy)
}

// updateCachedSnapshot refreshes the atomic pointer. Must run under mu.Lock.
func (r *Registry) updateCachedSnapshot() {
	r.cached.Store(r.buildSnapshot())
}

// Snapshot returns the current immutable view. Lock-free.
func (r *Registry) Snapshot() *Snapshot {
	s := r.cached.Load()
	if s == nil {
		return newSnapshot(nil, nil)
	}
	return s
}

// RowRejection records why one row of an ApplyUpdate batch was rejected.
type RowRejection struct {
	PoolID uint64
	Reason string
}

// UpdateStats summarizes the outcome of one ApplyUpdate call.
type UpdateStats struct {
	Applied   int
	Rejected  []RowRejection
}

// ApplyUpdate validates every row's invariants (P1, P2), excludes rows that
// fail with a per-row reason, then publishes the remaining rows as a single
// atomic snapshot swap — the swap itself is all-or-nothing, never torn.
// Applying the same update twice yields the same snapshot, since Pool
// identity determines map placement.
func (r *Registry) ApplyUpdate(updates []Pool) UpdateStats {
	stats := UpdateStats{}

	valid := make([]Pool, 0, len(updates))
	for _, p := range updates {
		if err := p.Validate(); err != nil {
			stats.Rejected = append(stats.Rejected, RowRejection{PoolID: p.ID, Reason: err.Error()})
			continue
		}
		valid = append(valid, p)
	}

	if len(valid) == 0 {
		return stats
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range valid {
		p.Active = true
		r.pools[p.ID] = p
	}
	stats.Applied = len(valid)

	r.updateCachedSnapshot()
	return stats
}

// RemovePools drops pools by id, e.g. on chain deactivation or liveness
// failure.
func (r *Registry) RemovePools(ids []uint64) {
	if len(ids) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.pools, id)
	}
	r.updateCachedSnapshot()
}

// ActivateChain marks chainID tradable.
func (r *Registry) ActivateChain(chainID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[chainID] = true
	r.updateCachedSnapshot()
}

// DeactivateChain marks chainID non-tradable; its pools remain stored but
// are excluded from ActivePools/Graph until reactivated.
func (r *Registry) DeactivateChain(chainID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[chainID] = false
	r.updateCachedSnapshot()
}

// Len reports the number of stored pools (active and inactive).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

// String implements fmt.Stringer for debug logging.
func (r *Registry) String() string {
	return fmt.Sprintf("pool.Registry{pools=%d}", r.Len())
}
