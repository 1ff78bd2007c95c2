package evaluate

import "math/big"

// Gates bundles the hard-reject thresholds applied at evaluator step 5,
// per spec §4.5. A zero MaxGasCostUSD disables the gas cap; every other
// threshold is applied as given, so a zero there is a real bound.
type Gates struct {
	MinConfidence     float64
	MinProfitUSD      float64
	MaxSlippageBps    float64
	MaxImpactBps      float64
	MaxGasCostUSD     float64
	MaxTradeFractionOfReserveIn float64 // spec default 0.30
	LargeNotionalUSD  float64           // above this, double-validation is additionally required
	StalenessLimitS   float64           // per-DataPoint staleness trigger for double-validation, spec §4.4
}

// DefaultGates returns the spec's literal default thresholds; deployments
// override via config.
func DefaultGates() Gates {
	return Gates{
		MinConfidence:               0.85,
		MinProfitUSD:                0,
		MaxSlippageBps:              500,
		MaxImpactBps:                300,
		MaxGasCostUSD:               0, // 0 == no cap
		MaxTradeFractionOfReserveIn: 0.30,
		LargeNotionalUSD:            100_000,
		StalenessLimitS:             12,
	}
}

// Evaluate applies every hard-reject gate to o, given the confidence of
// its supporting data and the smallest leg's input-side reserve. It
// returns the first violated reason, or RejectNone if o clears every gate.
func (g Gates) Evaluate(o *Opportunity, confidence float64, smallestLegReserveIn *big.Int) RejectReason {
	if confidence < g.MinConfidence {
		return RejectLowConfidence
	}
	if o.NetProfitUSD < g.MinProfitUSD {
		return RejectNoProfit
	}
	if o.SlippageBps > g.MaxSlippageBps {
		return RejectExcessiveSlippage
	}
	if o.MarketImpactBps > g.MaxImpactBps {
		return RejectExcessiveImpact
	}
	if g.MaxGasCostUSD > 0 && o.GasCostUSD > g.MaxGasCostUSD {
		return RejectGasCapExceeded
	}
	if smallestLegReserveIn != nil && smallestLegReserveIn.Sign() > 0 && o.InputAmount != nil {
		fraction := new(big.Float).Quo(
			new(big.Float).SetInt(o.InputAmount),
			new(big.Float).SetInt(smallestLegReserveIn),
		)
		if f, _ := fraction.Float64(); f > g.MaxTradeFractionOfReserveIn {
			return RejectOversizedTrade
		}
	}
	return RejectNone
}

// RequiresDoubleValidation reports whether o's notional mandates the
// additional double-validation pass before Approved, per I3(d).
func (g Gates) RequiresDoubleValidation(notionalUSD float64) bool {
	return notionalUSD > g.LargeNotionalUSD
}
