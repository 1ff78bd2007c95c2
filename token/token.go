// Package token provides the identity and interning layer for ERC20-style
// tokens across chains: a Token is identified by (chain_id, address) and is
// immutable once admitted to a Registry.
package token

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Key is the natural identity of a Token: (chain_id, address).
type Key struct {
	ChainID uint64
	Address common.Address
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%s", k.ChainID, k.Address.Hex())
}

// Token is the immutable, structured representation of a token's identity
// and attributes.
type Token struct {
	ID       uint64      `json:"id"`
	ChainID  uint64      `json:"chainId"`
	Address  common.Address `json:"address"`
	Symbol   string      `json:"symbol"`
	Decimals uint8       `json:"decimals"`
}

func (t Token) Key() Key {
	return Key{ChainID: t.ChainID, Address: t.Address}
}

// Registry interns Tokens to integer ids and tracks the cross-chain
// equivalence map (e.g. WETH on mainnet == WETH.e on Avalanche). Tokens are
// never mutated after admission; Admit on an already-known key returns the
// existing id.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	byKey    map[Key]uint64
	byID     map[uint64]Token
	nextID   uint64
	equivSet map[uint64]map[uint64]struct{} // id -> set of equivalent ids (symmetric, transitive closure not maintained)
}

// NewRegistry creates an empty token registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:    make(map[Key]uint64),
		byID:     make(map[uint64]Token),
		equivSet: make(map[uint64]map[uint64]struct{}),
	}
}

// Admit interns a token, returning its stable id. If a token with the same
// Key was previously admitted, its existing id is returned and the
// attributes are left unchanged (Token is immutable once admitted).
func (r *Registry) Admit(t Token) uint64 {
	key := t.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[key]; ok {
		return id
	}

	r.nextID++
	id := r.nextID
	t.ID = id
	r.byKey[key] = id
	r.byID[id] = t
	return id
}

// Lookup returns the Token for an id.
func (r *Registry) Lookup(id uint64) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// LookupKey returns the interned id for a Key, if admitted.
func (r *Registry) LookupKey(key Key) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	return id, ok
}

// MarkEquivalent records that tokens a and b are semantically identical
// across chains (e.g. wrapped variants of the same underlying asset). The
// relation is recorded symmetrically but not transitively: callers that
// need the full equivalence class should union-find over repeated calls.
func (r *Registry) MarkEquivalent(a, b uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.equivSet[a] == nil {
		r.equivSet[a] = make(map[uint64]struct{})
	}
	if r.equivSet[b] == nil {
		r.equivSet[b] = make(map[uint64]struct{})
	}
	r.equivSet[a][b] = struct{}{}
	r.equivSet[b][a] = struct{}{}
}

// EquivalentTo returns the ids directly recorded as equivalent to id.
func (r *Registry) EquivalentTo(id uint64) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.equivSet[id]
	if len(set) == 0 {
		return nil
	}
	out := make([]uint64, 0, len(set))
	for other := range set {
		out = append(out, other)
	}
	return out
}

// Len returns the number of admitted tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
