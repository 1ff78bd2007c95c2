package validation

import (
	"context"
	"fmt"
	"math/big"

	"github.com/cyclicarb/arbengine/adapters"
)

// Oracle deviation thresholds, per spec §4.4: within 2% the protocol-native
// price is accepted as oracle-verified outright; beyond 5% it is flagged
// and a HighDeviationAlert is emitted; the band between is unverified but
// not flagged.
const (
	oracleAcceptDeviation = 0.02
	oracleFlagDeviation   = 0.05
)

// twapNotionalThresholdUSD is the trade size above which a 30-minute TWAP
// cross-check is additionally required, per spec §4.4.
const twapNotionalThresholdUSD = 100_000

// twapWindowSeconds is the required TWAP window.
const twapWindowSeconds = 30 * 60

// consensusOracleMin is the minimum number of independent oracle quotes
// needed to accept consensus pricing in place of a TWAP cross-check.
const consensusOracleMin = 3

// consensusMaxDeviation is the maximum pairwise deviation tolerated between
// consensus oracle quotes.
const consensusMaxDeviation = 0.01

// HighDeviationAlert is emitted (as a returned error, since this module has
// no event bus of its own) when a spot price diverges from its oracle by
// more than oracleFlagDeviation.
type HighDeviationAlert struct {
	Pair      string
	Deviation float64
}

func (a *HighDeviationAlert) Error() string {
	return fmt.Sprintf("oracle: high deviation for %s: %.4f", a.Pair, a.Deviation)
}

// OracleVerifier wraps an adapters.OracleAdapter with the spec's spot
// deviation check, TWAP guard, and multi-oracle consensus rule.
type OracleVerifier struct {
	oracle adapters.OracleAdapter
}

func NewOracleVerifier(oracle adapters.OracleAdapter) *OracleVerifier {
	return &OracleVerifier{oracle: oracle}
}

// VerifySpot compares sdkPrice (the protocol-native quote) against the
// Chainlink-style oracle for pair, returning the classification and the
// relative deviation.
func (v *OracleVerifier) VerifySpot(ctx context.Context, pair string, chainID uint64, sdkPrice *big.Float) (OracleVerification, float64, error) {
	quote, err := v.oracle.ChainlinkPrice(ctx, pair, chainID)
	if err != nil {
		return OracleUnverified, 0, fmt.Errorf("validation: oracle price for %s: %w", pair, err)
	}

	deviation := relativeDeviation(sdkPrice, quote.Price)
	switch {
	case deviation <= oracleAcceptDeviation:
		return OracleVerified, deviation, nil
	case deviation > oracleFlagDeviation:
		return OracleFlagged, deviation, &HighDeviationAlert{Pair: pair, Deviation: deviation}
	default:
		return OracleUnverified, deviation, nil
	}
}

// RequiresTWAP reports whether notionalUSD mandates the additional
// 30-minute TWAP cross-check.
func RequiresTWAP(notionalUSD float64) bool {
	return notionalUSD > twapNotionalThresholdUSD
}

// VerifyTWAP checks sdkPrice against the pool's 30-minute time-weighted
// average, accepting within the same 2%/5% bands as VerifySpot.
func (v *OracleVerifier) VerifyTWAP(ctx context.Context, poolID uint64, sdkPrice *big.Float) (OracleVerification, float64, error) {
	twap, err := v.oracle.UniswapTWAP(ctx, poolID, twapWindowSeconds)
	if err != nil {
		return OracleUnverified, 0, fmt.Errorf("validation: twap for pool %d: %w", poolID, err)
	}
	deviation := relativeDeviation(sdkPrice, twap)
	switch {
	case deviation <= oracleAcceptDeviation:
		return OracleVerified, deviation, nil
	case deviation > oracleFlagDeviation:
		return OracleFlagged, deviation, &HighDeviationAlert{Pair: fmt.Sprintf("pool:%d", poolID), Deviation: deviation}
	default:
		return OracleUnverified, deviation, nil
	}
}

// ConsensusAccepted reports whether quotes (at least consensusOracleMin of
// them) agree within consensusMaxDeviation of each other, letting a large
// trade skip the TWAP requirement per spec §4.4's "N-of-M oracle
// consensus" alternative path.
func ConsensusAccepted(quotes []*big.Float) bool {
	if len(quotes) < consensusOracleMin {
		return false
	}
	for i := range quotes {
		for j := i + 1; j < len(quotes); j++ {
			if relativeDeviation(quotes[i], quotes[j]) > consensusMaxDeviation {
				return false
			}
		}
	}
	return true
}

func relativeDeviation(a, b *big.Float) float64 {
	if a == nil || b == nil {
		return 1
	}
	diff := new(big.Float).Sub(a, b)
	diff.Abs(diff)
	if b.Sign() == 0 {
		if diff.Sign() == 0 {
			return 0
		}
		return 1
	}
	ratio := new(big.Float).Quo(diff, new(big.Float).Abs(b))
	f, _ := ratio.Float64()
	return f
}
