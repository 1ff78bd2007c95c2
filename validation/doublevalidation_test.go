package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiresDoubleValidation_Triggers(t *testing.T) {
	_, required := RequiresDoubleValidation(DataPoint{}, 1_000, 60)
	assert.True(t, required, "missing request id is unaccounted")

	trig, required := RequiresDoubleValidation(DataPoint{RequestID: "r", Oracle: OracleFlagged}, 1_000, 60)
	assert.True(t, required)
	assert.Equal(t, TriggerFlagged, trig)

	trig, required = RequiresDoubleValidation(DataPoint{RequestID: "r", StalenessS: 90}, 1_000, 60)
	assert.True(t, required)
	assert.Equal(t, TriggerStalenessExceeded, trig)

	trig, required = RequiresDoubleValidation(DataPoint{RequestID: "r"}, 200_000, 60)
	assert.True(t, required)
	assert.Equal(t, TriggerHighNotional, trig)

	_, required = RequiresDoubleValidation(DataPoint{RequestID: "r", StalenessS: 1}, 1_000, 60)
	assert.False(t, required)
}

func TestDoubleValidationGate_AgreeingPhasesPass(t *testing.T) {
	gate := NewDoubleValidationGate().WithDelay(time.Millisecond)
	phase1 := func(ctx context.Context) (DataPoint, error) { return DataPoint{Value: 100.0}, nil }
	phase2 := func(ctx context.Context) (DataPoint, error) { return DataPoint{Value: 100.5}, nil }

	result, err := gate.Run(context.Background(), phase1, phase2)
	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestDoubleValidationGate_DivergingPhasesFail(t *testing.T) {
	gate := NewDoubleValidationGate().WithDelay(time.Millisecond)
	phase1 := func(ctx context.Context) (DataPoint, error) { return DataPoint{Value: 100.0}, nil }
	phase2 := func(ctx context.Context) (DataPoint, error) { return DataPoint{Value: 120.0}, nil }

	result, err := gate.Run(context.Background(), phase1, phase2)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, string(ReasonDoubleValidationMismatch), result.Reason)
}

func TestDoubleValidationGate_CancelledContextDuringDelay(t *testing.T) {
	gate := NewDoubleValidationGate().WithDelay(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	phase1 := func(ctx context.Context) (DataPoint, error) { return DataPoint{Value: 1.0}, nil }
	phase2 := func(ctx context.Context) (DataPoint, error) { return DataPoint{Value: 1.0}, nil }

	_, err := gate.Run(ctx, phase1, phase2)
	require.Error(t, err)
}
