package pool

import "sort"

// Edge is a derived (never stored) directed edge from one token to another,
// induced by a pool that holds both. The pool owns the edge; the graph
// only references it by id.
type Edge struct {
	PoolID   uint64
	TokenOut uint64
}

// Graph is the token-adjacency structure derived from the active subset of
// the pool registry. It is built once per Snapshot (see Snapshot.Graph)
// and is itself immutable and safe for concurrent reads.
type Graph struct {
	adjacency map[uint64][]Edge
	poolsOf   map[uint64][]uint64 // tokenID -> pool ids touching it, sorted ascending
}

// buildGraph derives adjacency from the active pool set: for every ordered
// pair (a,b) of a pool's tokens, an edge a->b is appended to a's adjacency
// list, carrying the pool id that induces it.
func buildGraph(activePools []Pool) *Graph {
	g := &Graph{
		adjacency: make(map[uint64][]Edge),
		poolsOf:   make(map[uint64][]uint64),
	}

	for _, p := range activePools {
		for i, a := range p.Tokens {
			g.poolsOf[a] = append(g.poolsOf[a], p.ID)
			for j, b := range p.Tokens {
				if i == j {
					continue
				}
				g.adjacency[a] = append(g.adjacency[a], Edge{PoolID: p.ID, TokenOut: b})
			}
		}
	}

	for tok, ids := range g.poolsOf {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		g.poolsOf[tok] = ids
	}

	return g
}

// EdgesFrom returns the outgoing edges from tokenID.
func (g *Graph) EdgesFrom(tokenID uint64) []Edge {
	return g.adjacency[tokenID]
}

// PoolsForToken returns the ids of pools that trade tokenID, sorted
// ascending.
func (g *Graph) PoolsForToken(tokenID uint64) []uint64 {
	return g.poolsOf[tokenID]
}

// TokenCount returns the number of distinct tokens reachable in the graph.
func (g *Graph) TokenCount() int {
	return len(g.poolsOf)
}

// Tokens returns every token id reachable in the graph, in arbitrary order.
func (g *Graph) Tokens() []uint64 {
	out := make([]uint64, 0, len(g.poolsOf))
	for tok := range g.poolsOf {
		out = append(out, tok)
	}
	return out
}
