// Package pool implements the canonical pool store and token-adjacency
// graph (C2): Pool identity, the per-kind parameter sum type, invariant
// validation, and the copy-on-write Registry.
package pool

import (
	"errors"
	"fmt"
	"math/big"
)

// Kind enumerates the supported AMM pool kinds.
type Kind string

const (
	ConstantProductV2 Kind = "constant_product_v2"
	ConcentratedV3    Kind = "concentrated_v3"
	StableCurve       Kind = "stable_curve"
	WeightedBalancer  Kind = "weighted_balancer"
)

// TickInfo is a single initialized tick on a concentrated-liquidity pool.
type TickInfo struct {
	Index        int64
	LiquidityNet *big.Int
}

// V2Params holds no extra parameters; constant-product pools are fully
// described by reserves and fee_bps.
type V2Params struct{}

// V3Params holds the concentrated-liquidity state needed to simulate a
// swap: the current sqrt price, active liquidity, tick spacing, and the
// sorted set of initialized ticks.
type V3Params struct {
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int64
	TickSpacing  int32
	Ticks        []TickInfo
}

// StableParams holds the StableSwap amplification coefficient.
type StableParams struct {
	Amp *big.Int
}

// WeightedParams holds per-token weights, expressed in basis points and
// summing to 10_000.
type WeightedParams struct {
	WeightsBps []uint32
}

// KindParams is the tagged-union of per-kind parameters. Exactly one field
// is non-nil, matching Pool.Kind; this keeps Pool a plain struct (per the
// redesign note against dynamic attribute dictionaries) while letting each
// kind carry its own shape.
type KindParams struct {
	V2       *V2Params
	V3       *V3Params
	Stable   *StableParams
	Weighted *WeightedParams
}

// Pool is the canonical representation of a single liquidity pool. Identity
// is (ChainID, Kind, Address); Tokens/Reserves are interned token ids and
// base-unit reserve amounts respectively, index-aligned.
type Pool struct {
	ID      uint64 `json:"id"`
	ChainID uint64 `json:"chainId"`
	Kind    Kind   `json:"kind"`
	Address string `json:"address"` // hex address; kept as string to stay chain-agnostic

	Tokens   []uint64   `json:"tokens"`
	Reserves []*big.Int `json:"reserves"`
	FeeBps   uint32     `json:"feeBps"`

	Params KindParams `json:"params"`

	TVLUSD       float64 `json:"tvlUsd"`
	LastUpdateTS int64   `json:"lastUpdateTs"`
	SourceLayer  uint8   `json:"sourceLayer"`
	Confidence   float64 `json:"confidence"`

	Active bool `json:"active"`
}

var (
	// ErrInvariantP1 is returned when a pool has a non-positive reserve on
	// a tradable leg.
	ErrInvariantP1 = errors.New("pool: reserves must be strictly positive on all tradable legs")
	// ErrInvariantP2 is returned when (kind, kind_params) are inconsistent.
	ErrInvariantP2 = errors.New("pool: kind_params inconsistent with kind")
	ErrBadFee      = errors.New("pool: fee_bps out of range [0, 10000]")
	ErrBadTokens   = errors.New("pool: tokens/reserves length mismatch or too few tokens")
)

// Validate enforces invariants P1 and P2 from the data model.
func (p Pool) Validate() error {
	if len(p.Tokens) < 2 || len(p.Tokens) != len(p.Reserves) {
		return fmt.Errorf("%w: pool %d has %d tokens, %d reserves", ErrBadTokens, p.ID, len(p.Tokens), len(p.Reserves))
	}
	if p.FeeBps > 10_000 {
		return fmt.Errorf("%w: pool %d fee_bps=%d", ErrBadFee, p.ID, p.FeeBps)
	}
	for i, r := range p.Reserves {
		if r == nil || r.Sign() <= 0 {
			return fmt.Errorf("%w: pool %d token index %d", ErrInvariantP1, p.ID, i)
		}
	}

	switch p.Kind {
	case ConstantProductV2:
		if len(p.Tokens) != 2 {
			return fmt.Errorf("%w: constant_product_v2 pool %d must have exactly 2 tokens", ErrInvariantP2, p.ID)
		}
	case ConcentratedV3:
		if p.Params.V3 == nil || p.Params.V3.SqrtPriceX96 == nil || p.Params.V3.SqrtPriceX96.Sign() <= 0 {
			return fmt.Errorf("%w: concentrated_v3 pool %d requires sqrt_price > 0", ErrInvariantP2, p.ID)
		}
		if p.Params.V3.Liquidity == nil || p.Params.V3.Liquidity.Sign() < 0 {
			return fmt.Errorf("%w: concentrated_v3 pool %d requires non-negative liquidity", ErrInvariantP2, p.ID)
		}
	case StableCurve:
		if p.Params.Stable == nil || p.Params.Stable.Amp == nil || p.Params.Stable.Amp.Sign() <= 0 {
			return fmt.Errorf("%w: stable_curve pool %d requires amp > 0", ErrInvariantP2, p.ID)
		}
	case WeightedBalancer:
		if p.Params.Weighted == nil || len(p.Params.Weighted.WeightsBps) != len(p.Tokens) {
			return fmt.Errorf("%w: weighted_balancer pool %d requires one weight per token", ErrInvariantP2, p.ID)
		}
		var sum uint32
		for _, w := range p.Params.Weighted.WeightsBps {
			sum += w
		}
		if sum != 10_000 {
			return fmt.Errorf("%w: weighted_balancer pool %d weights sum to %d, want 10000", ErrInvariantP2, p.ID, sum)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvariantP2, p.Kind)
	}
	return nil
}

// TokenIndex returns the position of tokenID within Tokens, or -1.
func (p Pool) TokenIndex(tokenID uint64) int {
	for i, t := range p.Tokens {
		if t == tokenID {
			return i
		}
	}
	return -1
}

// ReserveOf returns the reserve for tokenID, or nil if tokenID is not a
// member of this pool.
func (p Pool) ReserveOf(tokenID uint64) *big.Int {
	i := p.TokenIndex(tokenID)
	if i < 0 {
		return nil
	}
	return p.Reserves[i]
}
