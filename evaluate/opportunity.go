// Package evaluate implements the Opportunity Evaluator (C5): per-path
// sizing and simulation, ML scoring with a deterministic fallback, safety
// gating, and the Opportunity state machine, per spec §4.5.
package evaluate

import (
	"math/big"

	"github.com/cyclicarb/arbengine/pathfinder"
	"github.com/cyclicarb/arbengine/validation"
)

// State enumerates the Opportunity lifecycle, per spec §3/§4.5:
// Candidate → Validated → Scored → Gated → {Approved | Rejected}.
type State string

const (
	StateCandidate State = "Candidate"
	StateValidated State = "Validated"
	StateScored    State = "Scored"
	StateGated     State = "Gated"
	StateApproved  State = "Approved"
	StateRejected  State = "Rejected"
)

// RejectReason enumerates why a Gated opportunity failed to become
// Approved, per spec §4.5 step 5 and scenarios S2-S4.
type RejectReason string

const (
	RejectNone                     RejectReason = ""
	RejectNoProfit                 RejectReason = "NoProfit"
	RejectLowConfidence            RejectReason = "LowConfidence"
	RejectExcessiveSlippage        RejectReason = "ExcessiveSlippage"
	RejectExcessiveImpact          RejectReason = "ExcessiveImpact"
	RejectOversizedTrade           RejectReason = "OversizedTrade"
	RejectGasCapExceeded           RejectReason = "GasCapExceeded"
	RejectDoubleValidationMismatch RejectReason = "DoubleValidationMismatch"
)

// Opportunity is the transient record of one candidate cyclic trade,
// created by the evaluator and discarded after emission or rejection, per
// spec §3.
type Opportunity struct {
	Path              pathfinder.Path
	State             State
	RejectReason      RejectReason
	InputAmount       *big.Int
	PerLegAmounts     []*big.Int
	GrossOut          *big.Int
	FeeCostUSD        float64
	GasCostUSD        float64
	FlashloanProvider string
	FlashloanFeeUSD   float64
	NetProfitUSD      float64
	SlippageBps       float64
	MarketImpactBps   float64
	MLScore           float64
	DataPoints        []validation.DataPoint
}

// IsHot reports whether the opportunity meets the LIVE-mode manual-window
// criteria, per spec §6.3: ml_score > 0.8 AND net_profit > $50 AND
// confidence > 0.85.
func (o *Opportunity) IsHot(confidence float64) bool {
	return o.MLScore > 0.8 && o.NetProfitUSD > 50 && confidence > 0.85
}

// advance moves the opportunity to the next state; it never regresses.
func (o *Opportunity) advance(next State) {
	o.State = next
}

// reject moves the opportunity to Rejected with reason, a terminal state.
func (o *Opportunity) reject(reason RejectReason) {
	o.State = StateRejected
	o.RejectReason = reason
}
