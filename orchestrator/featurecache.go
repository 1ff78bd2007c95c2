package orchestrator

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cyclicarb/arbengine/evaluate"
	"github.com/cyclicarb/arbengine/pathfinder"
	"github.com/cyclicarb/arbengine/pool"
)

// DefaultFeatureCacheSize is the ML feature cache's default capacity, per
// spec §4.7.
const DefaultFeatureCacheSize = 1024

// FeatureCache memoizes a path's Features by its canonical path signature
// {chain, dex-kind sequence, token sequence, hop count}, per spec §4.7,
// with each leg's pool id also part of the key (see Signature). The
// orchestrator's tick loop does not consult it; callers use Get and Put.
type FeatureCache struct {
	cache *lru.Cache[string, evaluate.Features]
}

// NewFeatureCache constructs a cache bounded at size; size <= 0 uses
// DefaultFeatureCacheSize.
func NewFeatureCache(size int) (*FeatureCache, error) {
	if size <= 0 {
		size = DefaultFeatureCacheSize
	}
	c, err := lru.New[string, evaluate.Features](size)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: new feature cache: %w", err)
	}
	return &FeatureCache{cache: c}, nil
}

// Signature derives the canonical key spec §4.7 names, from a resolved
// path and its snapshot.
func Signature(snap *pool.Snapshot, path pathfinder.Path) string {
	sig := ""
	for _, leg := range path.Legs {
		p, ok := snap.PoolByID(leg.PoolID)
		var kind pool.Kind
		var chain uint64
		if ok {
			kind = p.Kind
			chain = p.ChainID
		}
		sig += fmt.Sprintf("%d:%s:%d>%d:%d|", chain, kind, leg.TokenIn, leg.TokenOut, leg.PoolID)
	}
	sig += fmt.Sprintf("#%d", len(path.Legs))
	return sig
}

// Get returns the cached Features for signature, if present.
func (c *FeatureCache) Get(signature string) (evaluate.Features, bool) {
	return c.cache.Get(signature)
}

// Put stores f under signature.
func (c *FeatureCache) Put(signature string, f evaluate.Features) {
	c.cache.Add(signature, f)
}
