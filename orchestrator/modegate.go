package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/cyclicarb/arbengine/adapters"
	"github.com/cyclicarb/arbengine/evaluate"
	"github.com/cyclicarb/arbengine/pathfinder"
)

// Mode selects how Approved opportunities are handled, per spec §4.7.
type Mode string

const (
	ModeSimulation Mode = "SIMULATION"
	ModeLive       Mode = "LIVE"
)

// DefaultManualWindow is the duration a LIVE-mode hot opportunity waits for
// a manual accept/skip decision before auto-submitting, per spec §4.7.
// Configurable via Config.ManualWindowMs; NewModeGate falls back to this
// value when given zero.
const DefaultManualWindow = 5 * time.Second

// PaperTradeRecorder persists a SIMULATION-mode Approved opportunity;
// supplied by the caller (no storage backend is specified in scope).
type PaperTradeRecorder func(o *evaluate.Opportunity)

// ControlSignal is what the mode gate's manual window listens for.
type ControlSignal struct {
	Accept bool // false means skip
}

// ModeGate implements spec §4.7's SIMULATION/LIVE execution modes. The
// manual window's transport is left as a single ControlSignal channel per
// DESIGN.md's Open Question resolution — no concrete terminal/UX binding
// is specified or assumed.
type ModeGate struct {
	mode     Mode
	relay    adapters.RelayAdapter
	recorder PaperTradeRecorder
	control  chan ControlSignal
	confidenceOf func(o *evaluate.Opportunity) float64
	manualWindow time.Duration
}

// NewModeGate constructs a gate starting in mode. confidenceOf recovers
// the confidence figure IsHot needs (the Opportunity itself does not
// store a scalar confidence, only its constituent DataPoints); pass a
// closure that reduces o.DataPoints however the caller's evaluation
// pipeline computed it. manualWindow overrides DefaultManualWindow; zero
// keeps the default.
func NewModeGate(mode Mode, relay adapters.RelayAdapter, recorder PaperTradeRecorder, confidenceOf func(o *evaluate.Opportunity) float64, manualWindow time.Duration) *ModeGate {
	if manualWindow <= 0 {
		manualWindow = DefaultManualWindow
	}
	return &ModeGate{
		mode:         mode,
		relay:        relay,
		recorder:     recorder,
		control:      make(chan ControlSignal, 1),
		confidenceOf: confidenceOf,
		manualWindow: manualWindow,
	}
}

// SetMode switches modes at runtime, per spec §4.7's "switchable at
// runtime via the configuration interface".
func (g *ModeGate) SetMode(m Mode) { g.mode = m }

// Mode returns the gate's current mode.
func (g *ModeGate) Mode() Mode { return g.mode }

// Control returns the channel a caller's control-plane (CLI, RPC, TUI —
// unspecified) sends accept/skip decisions on during a manual window.
func (g *ModeGate) Control() chan<- ControlSignal { return g.control }

// Handle routes an Approved opportunity per the current mode.
func (g *ModeGate) Handle(ctx context.Context, o *evaluate.Opportunity) error {
	if o.State != evaluate.StateApproved {
		return nil
	}

	if g.mode == ModeSimulation {
		if g.recorder != nil {
			g.recorder(o)
		}
		return nil
	}

	confidence := 0.0
	if g.confidenceOf != nil {
		confidence = g.confidenceOf(o)
	}
	if !o.IsHot(confidence) {
		return nil
	}
	return g.awaitManualWindow(ctx, o)
}

// awaitManualWindow opens the control window: accepting submits
// immediately, skipping discards, and a timeout auto-submits, per spec
// §4.7.
func (g *ModeGate) awaitManualWindow(ctx context.Context, o *evaluate.Opportunity) error {
	timer := time.NewTimer(g.manualWindow)
	defer timer.Stop()

	select {
	case sig := <-g.control:
		if !sig.Accept {
			return nil
		}
		return g.submit(ctx, o)
	case <-timer.C:
		return g.submit(ctx, o)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *ModeGate) submit(ctx context.Context, o *evaluate.Opportunity) error {
	if g.relay == nil {
		return fmt.Errorf("orchestrator: LIVE mode requires a relay adapter")
	}
	plan := planFromOpportunity(o)
	_, err := g.relay.Submit(ctx, plan)
	return err
}

func planFromOpportunity(o *evaluate.Opportunity) adapters.OpportunityPlan {
	var inputToken uint64
	if len(o.Path.Legs) > 0 {
		inputToken = o.Path.Legs[0].TokenIn
	}
	return adapters.OpportunityPlan{
		PathSignature: pathSignature(o.Path),
		InputToken:    inputToken,
		InputAmount:   bigIntString(o.InputAmount),
		ExpectedOut:   bigIntString(o.GrossOut),
		NetProfitUSD:  fmt.Sprintf("%.2f", o.NetProfitUSD),
	}
}

func pathSignature(p pathfinder.Path) string {
	sig := ""
	for _, leg := range p.Legs {
		sig += fmt.Sprintf("%d>", leg.PoolID)
	}
	return sig
}

func bigIntString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
