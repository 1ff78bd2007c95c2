package validation

import (
	"context"
	"math"
	"math/big"
	"time"
)

// doubleValidationDeviation is the maximum relative gap tolerated between
// the two independent phases, per spec §4.4.
const doubleValidationDeviation = 0.01

// defaultInterPhaseDelay is the default pause between phase 1 and phase 2,
// long enough that two same-block RPC rotation calls are unlikely to hit
// the identical cached node twice, per spec §4.4.
const defaultInterPhaseDelay = 500 * time.Millisecond

// DoubleValidationTrigger enumerates the conditions that mandate a second,
// independent fetch before a DataPoint may be used, per spec §4.4.
type DoubleValidationTrigger uint8

const (
	TriggerUnaccounted DoubleValidationTrigger = iota
	TriggerFlagged
	TriggerStalenessExceeded
	TriggerHighNotional
)

// RequiresDoubleValidation evaluates the trigger conditions for dp given
// the trade's notional value and a staleness limit.
func RequiresDoubleValidation(dp DataPoint, notionalUSD float64, stalenessLimitS float64) (DoubleValidationTrigger, bool) {
	if dp.RequestID == "" {
		return TriggerUnaccounted, true
	}
	if dp.Oracle == OracleFlagged {
		return TriggerFlagged, true
	}
	if dp.StalenessS > stalenessLimitS {
		return TriggerStalenessExceeded, true
	}
	if notionalUSD > highNotionalThresholdUSD {
		return TriggerHighNotional, true
	}
	return 0, false
}

// Fetcher re-derives a DataPoint for the same request, independent of any
// prior call; phase 2 must not simply replay a cached phase-1 result.
type Fetcher func(ctx context.Context) (DataPoint, error)

// DoubleValidationGate runs the two-phase confirmation: phase 1, a fixed
// delay, then phase 2 via an independently sourced re-fetch, per spec
// §4.4. The gate passes only if the two phases agree within
// doubleValidationDeviation.
type DoubleValidationGate struct {
	delay time.Duration
}

func NewDoubleValidationGate() *DoubleValidationGate {
	return &DoubleValidationGate{delay: defaultInterPhaseDelay}
}

// WithDelay overrides the inter-phase delay (tests use a near-zero delay).
func (g *DoubleValidationGate) WithDelay(d time.Duration) *DoubleValidationGate {
	g.delay = d
	return g
}

// Run executes phase1 immediately, waits g.delay, then runs phase2,
// comparing the two numeric values.
func (g *DoubleValidationGate) Run(ctx context.Context, phase1, phase2 Fetcher) (ValidationResult, error) {
	p1, err := phase1(ctx)
	if err != nil {
		return ValidationResult{}, err
	}

	select {
	case <-time.After(g.delay):
	case <-ctx.Done():
		return ValidationResult{}, ctx.Err()
	}

	p2, err := phase2(ctx)
	if err != nil {
		return ValidationResult{}, err
	}

	v1, ok1 := toFloat(p1.Value)
	v2, ok2 := toFloat(p2.Value)
	if !ok1 || !ok2 {
		return ValidationResult{
			Passed:      false,
			Phase1Value: p1.Value,
			Phase2Value: p2.Value,
			Reason:      string(ReasonDoubleValidationMismatch),
		}, newValidationError(ReasonDoubleValidationMismatch, "phase values are not directly comparable")
	}

	deviation := math.Abs(v1-v2) / math.Max(math.Abs(v2), 1e-18)
	result := ValidationResult{
		Phase1Value: p1.Value,
		Phase2Value: p2.Value,
		Deviation:   deviation,
		Passed:      deviation <= doubleValidationDeviation,
	}
	if !result.Passed {
		result.Reason = string(ReasonDoubleValidationMismatch)
	}
	return result, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	default:
		if bi, ok := asBigInt(v); ok {
			f := new(big.Float).SetInt(bi)
			out, _ := f.Float64()
			return out, true
		}
	}
	return 0, false
}
