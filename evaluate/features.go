package evaluate

import "github.com/cyclicarb/arbengine/adapters"

// Features is the fixed, 10-field feature vector built for every scored
// opportunity, per spec §4.5 step 4 and §9's fixed-schema redesign note.
// Field order must match adapters.FeatureVector exactly.
type Features struct {
	Hops                float64
	GrossProfitUSD      float64
	GasCostUSD          float64
	EstimatedProfitUSD  float64
	LiquidityScore      float64 // in [0,1]
	PriceImpactBps      float64
	SlippageBps         float64
	Confidence          float64
	TimeOfDay           float64 // fraction of day elapsed, in [0,1)
	VolatilityIndicator float64
}

// ToVector serializes Features into the adapter-facing array, in the
// documented field order.
func (f Features) ToVector() adapters.FeatureVector {
	return adapters.FeatureVector{
		f.Hops,
		f.GrossProfitUSD,
		f.GasCostUSD,
		f.EstimatedProfitUSD,
		f.LiquidityScore,
		f.PriceImpactBps,
		f.SlippageBps,
		f.Confidence,
		f.TimeOfDay,
		f.VolatilityIndicator,
	}
}

// Fallback scoring weights used when no ML adapter is configured or the
// adapter call fails, per spec §4.5 step 4's "deterministic fallback
// score = weighted normalization of the feature vector (documented
// weights)". Profitability and confidence dominate; cost and risk terms
// subtract.
const (
	fallbackWeightEstimatedProfit  = 0.40
	fallbackWeightConfidence       = 0.25
	fallbackWeightLiquidity        = 0.15
	fallbackWeightSlippagePenalty  = 0.10
	fallbackWeightImpactPenalty    = 0.10
	fallbackProfitNormalizationUSD = 500.0 // profit saturating the profit term
	fallbackSlippageCapBps         = 500.0
	fallbackImpactCapBps           = 300.0
)

// FallbackScore computes a deterministic score in [0,1] from f without
// calling the ML adapter, per spec §4.5 step 4.
func FallbackScore(f Features) float64 {
	profitTerm := clamp01(f.EstimatedProfitUSD / fallbackProfitNormalizationUSD)
	slippagePenalty := clamp01(f.SlippageBps / fallbackSlippageCapBps)
	impactPenalty := clamp01(f.PriceImpactBps / fallbackImpactCapBps)

	score := fallbackWeightEstimatedProfit*profitTerm +
		fallbackWeightConfidence*clamp01(f.Confidence) +
		fallbackWeightLiquidity*clamp01(f.LiquidityScore) -
		fallbackWeightSlippagePenalty*slippagePenalty -
		fallbackWeightImpactPenalty*impactPenalty

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
