// Package pathfinder enumerates bounded-hop cyclic paths over a pool
// registry snapshot (C3): a depth-first search from a source token back to
// itself, pruned by a visited-token bitset and deduplicated by canonical
// rotation/reversal signature.
package pathfinder

import (
	"context"
	"sort"

	"github.com/cyclicarb/arbengine/bitset"
	"github.com/cyclicarb/arbengine/pool"
)

// Leg is a single (pool, token_in, token_out) step of a path.
type Leg struct {
	PoolID   uint64
	TokenIn  uint64
	TokenOut uint64
}

// Path is an ordered, cyclic sequence of legs: the first leg's TokenIn and
// the last leg's TokenOut are the same source token, per spec §4.3.
type Path struct {
	Legs []Leg
}

// Tokens returns the ordered token sequence visited by the path, including
// the closing return to source.
func (p Path) Tokens() []uint64 {
	tokens := make([]uint64, 0, len(p.Legs)+1)
	for _, l := range p.Legs {
		tokens = append(tokens, l.TokenIn)
	}
	tokens = append(tokens, p.Legs[len(p.Legs)-1].TokenOut)
	return tokens
}

// Options bounds and filters an Enumerate call.
type Options struct {
	// MaxHops is the maximum path length, clamped to [2, 5] per spec §4.3.
	MaxHops int
	// ChainAllowlist, if non-nil, restricts traversal to pools on these chains.
	ChainAllowlist map[uint64]bool
	// KindAllowlist, if non-nil, restricts traversal to these pool kinds.
	KindAllowlist map[pool.Kind]bool
	// TopN bounds the number of canonical paths returned; 0 means unbounded.
	TopN int
}

func (o Options) maxHops() int {
	if o.MaxHops < 2 {
		return 2
	}
	if o.MaxHops > 5 {
		return 5
	}
	return o.MaxHops
}

func (o Options) poolAllowed(p pool.Pool) bool {
	if o.ChainAllowlist != nil && !o.ChainAllowlist[p.ChainID] {
		return false
	}
	if o.KindAllowlist != nil && !o.KindAllowlist[p.Kind] {
		return false
	}
	return true
}

// walker holds the mutable DFS state, kept off the Options value so
// Enumerate can be called concurrently with the same Options.
type walker struct {
	ctx     context.Context
	snap    *pool.Snapshot
	graph   *pool.Graph
	opts    Options
	source  uint64
	visited    bitset.BitSet
	usedPools  map[uint64]bool
	legs       []Leg
	found      map[string]Path
	order      []string
}

// Enumerate returns the canonical cyclic paths from source back to source,
// length in [2, MAX_HOPS], over the active pools of snap. Enumeration is
// cooperatively cancellable via ctx: on cancellation it returns whatever
// canonical paths it has already produced, per spec §4.3's interrupt
// contract.
func Enumerate(ctx context.Context, snap *pool.Snapshot, source uint64, opts Options) []Path {
	opts.MaxHops = opts.maxHops()
	g := snap.Graph()

	w := &walker{
		ctx:     ctx,
		snap:    snap,
		graph:   g,
		opts:    opts,
		source:  source,
		visited:   bitset.NewBitSet(visitedUniverse(g, source)),
		usedPools: make(map[uint64]bool),
		found:     make(map[string]Path),
	}
	w.visited.Set(source)
	w.dfs(source)

	paths := make([]Path, 0, len(w.order))
	for _, key := range w.order {
		paths = append(paths, w.found[key])
	}
	sort.SliceStable(paths, func(i, j int) bool {
		return lessTokenSequence(paths[i].Tokens(), paths[j].Tokens())
	})

	if opts.TopN > 0 && len(paths) > opts.TopN {
		paths = paths[:opts.TopN]
	}
	return paths
}

// visitedUniverse sizes the bitset generously above the largest token id
// reachable in the graph; token ids are dense and registry-assigned, so
// this stays small in practice.
func visitedUniverse(g *pool.Graph, source uint64) uint64 {
	maxID := source
	for _, tok := range g.Tokens() {
		if tok > maxID {
			maxID = tok
		}
	}
	return maxID + 1
}

func (w *walker) dfs(current uint64) {
	select {
	case <-w.ctx.Done():
		return
	default:
	}

	if len(w.legs) >= w.opts.MaxHops {
		return
	}

	edges := append([]pool.Edge(nil), w.graph.EdgesFrom(current)...)
	sort.Slice(edges, func(i, j int) bool { return w.edgeLess(edges[i], edges[j]) })

	for _, e := range edges {
		if w.ctx.Err() != nil {
			return
		}
		p, ok := w.snap.PoolByID(e.PoolID)
		if !ok || !p.Active || !w.opts.poolAllowed(p) {
			continue
		}
		if w.usedPools[e.PoolID] {
			continue
		}

		isReturn := e.TokenOut == w.source
		if !isReturn && w.visited.IsSet(e.TokenOut) {
			continue
		}

		w.legs = append(w.legs, Leg{PoolID: e.PoolID, TokenIn: current, TokenOut: e.TokenOut})
		w.usedPools[e.PoolID] = true

		if isReturn && len(w.legs) >= 2 {
			w.record(Path{Legs: append([]Leg(nil), w.legs...)})
		} else if !isReturn && len(w.legs) < w.opts.MaxHops {
			saved := w.visited.Clone()
			w.visited.Set(e.TokenOut)
			w.dfs(e.TokenOut)
			w.visited.SetFrom(saved)
		}

		delete(w.usedPools, e.PoolID)
		w.legs = w.legs[:len(w.legs)-1]
	}
}

// edgeLess orders candidate edges deterministically: descending pool TVL,
// ascending fee, ascending pool id, per spec §4.3's tie-break rule.
func (w *walker) edgeLess(a, b pool.Edge) bool {
	pa, okA := w.snap.PoolByID(a.PoolID)
	pb, okB := w.snap.PoolByID(b.PoolID)
	if !okA || !okB {
		return a.PoolID < b.PoolID
	}
	if pa.TVLUSD != pb.TVLUSD {
		return pa.TVLUSD > pb.TVLUSD
	}
	if pa.FeeBps != pb.FeeBps {
		return pa.FeeBps < pb.FeeBps
	}
	return pa.ID < pb.ID
}

// record canonicalizes a discovered cycle and keeps it if not already seen.
func (w *walker) record(p Path) {
	key := canonicalKey(legPoolIDs(p.Legs))
	if _, seen := w.found[key]; seen {
		return
	}
	w.found[key] = p
	w.order = append(w.order, key)
}

func legPoolIDs(legs []Leg) []uint64 {
	ids := make([]uint64, len(legs))
	for i, l := range legs {
		ids[i] = l.PoolID
	}
	return ids
}

// canonicalKey produces a rotation- and reversal-invariant signature for a
// cyclic sequence of pool ids, per spec §4.3: emit only the rotation with
// the smallest id vector, and only the lexicographically smaller of
// (forward, reverse). Keying on pool ids (rather than tokens) keeps two
// cycles that trade the same token route through different venues
// distinct, while still collapsing the same venue loop discovered in
// reverse or rotated order.
func canonicalKey(poolIDs []uint64) string {
	forward := smallestRotation(poolIDs)

	reversed := make([]uint64, len(poolIDs))
	for i, t := range poolIDs {
		reversed[len(poolIDs)-1-i] = t
	}
	backward := smallestRotation(reversed)

	best := forward
	if lessTokenSequence(backward, forward) {
		best = backward
	}
	return encodeKey(best)
}

func smallestRotation(seq []uint64) []uint64 {
	n := len(seq)
	best := seq
	for r := 1; r < n; r++ {
		rotated := make([]uint64, n)
		for i := 0; i < n; i++ {
			rotated[i] = seq[(i+r)%n]
		}
		if lessTokenSequence(rotated, best) {
			best = rotated
		}
	}
	return best
}

func lessTokenSequence(a, b []uint64) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func encodeKey(seq []uint64) string {
	b := make([]byte, 0, len(seq)*9)
	for _, t := range seq {
		b = append(b,
			byte(t>>56), byte(t>>48), byte(t>>40), byte(t>>32),
			byte(t>>24), byte(t>>16), byte(t>>8), byte(t), '|',
		)
	}
	return string(b)
}
