// Package orchestrator implements the periodic tick loop (C7): bounded
// concurrency across pathfinder enumeration and opportunity evaluation, a
// mode gate deciding SIMULATION vs. LIVE handling, and a backpressured
// approved-opportunity queue, per spec §4.7.
package orchestrator

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/cyclicarb/arbengine/evaluate"
	"github.com/cyclicarb/arbengine/pathfinder"
	"github.com/cyclicarb/arbengine/pool"
)

// Defaults from spec §4.7/§5.
const (
	DefaultTickInterval              = 10 * time.Millisecond
	DefaultEvalBatchSize             = 64
	DefaultMaxConcurrentOpportunities = 256
	DefaultOverrunSkipFactor         = 3
	DefaultPhaseAGracePeriod         = 2 * time.Second
)

// RefreshFunc runs Phase A: refreshing pool data and gas/price DataPoints.
// It is supplied by the caller (cmd/arbengine wires it to the validation
// fabric and the pool registry's ApplyUpdate) so this package stays free
// of adapter wiring.
type RefreshFunc func(ctx context.Context) error

// EvaluateFunc runs one candidate path through the Evaluator, with
// whatever DataPoints/confidence/conversion closures the caller has
// already bound.
type EvaluateFunc func(ctx context.Context, snap *pool.Snapshot, path pathfinder.Path) (*evaluate.Opportunity, error)

// Config holds the tick loop's tunables.
type Config struct {
	TickInterval              time.Duration
	EvalBatchSize             int
	MaxConcurrentOpportunities int64
	OverrunSkipFactor         int
	PhaseAGracePeriod         time.Duration
	WorkerCount               int64 // bounded worker pool size; 0 uses runtime.NumCPU()
}

// DefaultConfig returns the spec's literal tick-loop defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:               DefaultTickInterval,
		EvalBatchSize:              DefaultEvalBatchSize,
		MaxConcurrentOpportunities: DefaultMaxConcurrentOpportunities,
		OverrunSkipFactor:          DefaultOverrunSkipFactor,
		PhaseAGracePeriod:          DefaultPhaseAGracePeriod,
	}
}

// Orchestrator runs the phase A→B→C→D tick loop over a pool registry,
// grounded on the teacher's signal.NotifyContext + select-loop shutdown
// idiom (cmd/client/main.go) generalized from a single streaming
// subscription into a periodic polling loop with an internal worker pool.
type Orchestrator struct {
	registry      *pool.Registry
	sourceTokens  []uint64
	pathOpts      pathfinder.Options
	refresh       RefreshFunc
	evaluate      EvaluateFunc
	modeGate      *ModeGate
	queue         *ApprovedQueue
	cfg           Config
	logger        *slog.Logger
}

// New constructs an Orchestrator. logger may be nil, in which case a
// discard logger is used.
func New(registry *pool.Registry, sourceTokens []uint64, pathOpts pathfinder.Options, refresh RefreshFunc, eval EvaluateFunc, modeGate *ModeGate, queue *ApprovedQueue, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	if cfg.MaxConcurrentOpportunities <= 0 {
		cfg.MaxConcurrentOpportunities = DefaultMaxConcurrentOpportunities
	}
	if cfg.EvalBatchSize <= 0 {
		cfg.EvalBatchSize = DefaultEvalBatchSize
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = int64(runtime.NumCPU())
	}
	return &Orchestrator{
		registry:     registry,
		sourceTokens: sourceTokens,
		pathOpts:     pathOpts,
		refresh:      refresh,
		evaluate:     eval,
		modeGate:     modeGate,
		queue:        queue,
		cfg:          cfg,
		logger:       logger,
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Run executes the tick loop until ctx is cancelled. Each tick is Phase
// A→B→C→D as described at spec §4.7; a tick whose Phase A overran by more
// than OverrunSkipFactor causes the following tick to be skipped.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	var skipNext bool
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if skipNext {
				skipNext = false
				o.logger.Warn("skipping tick after overrun")
				continue
			}
			overran, err := o.tick(ctx)
			if err != nil {
				o.logger.Error("tick failed", "error", err)
				continue
			}
			skipNext = overran
		}
	}
}

// tick runs one full Phase A→D cycle and reports whether Phase A overran
// by more than OverrunSkipFactor ticks.
func (o *Orchestrator) tick(ctx context.Context) (overran bool, err error) {
	phaseStart := time.Now()

	// Phase A: I/O refresh. Allowed to finish even past tick budget.
	refreshCtx, cancel := context.WithTimeout(ctx, o.cfg.PhaseAGracePeriod)
	err = o.refresh(refreshCtx)
	cancel()
	if err != nil {
		return false, err
	}
	phaseAElapsed := time.Since(phaseStart)
	overran = phaseAElapsed > time.Duration(o.cfg.OverrunSkipFactor)*o.cfg.TickInterval

	snap := o.registry.Snapshot()

	// Phase B: pathfinder enumeration, offloaded to the worker pool, one
	// goroutine per source token.
	paths, err := o.enumerate(ctx, snap)
	if err != nil {
		return overran, err
	}

	// Phase C: evaluation in bounded batches.
	opportunities, err := o.evaluatePaths(ctx, snap, paths)
	if err != nil {
		return overran, err
	}

	// Phase D: hand approved opportunities to the mode gate.
	for _, opp := range opportunities {
		if opp.State != evaluate.StateApproved {
			continue
		}
		dropped := o.queue.Push(opp)
		if dropped != nil {
			o.logger.Info("approved queue backpressure dropped an entry", "dropped_net_profit_usd", dropped.NetProfitUSD)
		}
		if err := o.modeGate.Handle(ctx, opp); err != nil {
			o.logger.Error("mode gate handling failed", "error", err)
		}
	}

	return overran, nil
}

func (o *Orchestrator) enumerate(ctx context.Context, snap *pool.Snapshot) ([]pathfinder.Path, error) {
	sem := semaphore.NewWeighted(o.cfg.WorkerCount)
	g, gctx := errgroup.WithContext(ctx)

	results := make([][]pathfinder.Path, len(o.sourceTokens))
	for i, source := range o.sourceTokens {
		i, source := i, source
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = pathfinder.Enumerate(gctx, snap, source, o.pathOpts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []pathfinder.Path
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

func (o *Orchestrator) evaluatePaths(ctx context.Context, snap *pool.Snapshot, paths []pathfinder.Path) ([]*evaluate.Opportunity, error) {
	if len(paths) > int(o.cfg.MaxConcurrentOpportunities) {
		paths = paths[:o.cfg.MaxConcurrentOpportunities]
	}

	out := make([]*evaluate.Opportunity, 0, len(paths))
	for start := 0; start < len(paths); start += o.cfg.EvalBatchSize {
		end := start + o.cfg.EvalBatchSize
		if end > len(paths) {
			end = len(paths)
		}
		batch := paths[start:end]

		g, gctx := errgroup.WithContext(ctx)
		batchResults := make([]*evaluate.Opportunity, len(batch))
		for i, p := range batch {
			i, p := i, p
			g.Go(func() error {
				opp, err := o.evaluate(gctx, snap, p)
				if err != nil {
					return err
				}
				batchResults[i] = opp
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, opp := range batchResults {
			if opp != nil {
				out = append(out, opp)
			}
		}
	}
	return out, nil
}
