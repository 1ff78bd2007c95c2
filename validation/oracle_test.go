package validation

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyclicarb/arbengine/adapters"
)

type fakeOracle struct {
	price adapters.ChainlinkQuote
	twap  *big.Float
}

func (f *fakeOracle) ChainlinkPrice(ctx context.Context, pair string, chainID uint64) (adapters.ChainlinkQuote, error) {
	return f.price, nil
}

func (f *fakeOracle) UniswapTWAP(ctx context.Context, poolID uint64, windowSeconds int) (*big.Float, error) {
	return f.twap, nil
}

func TestVerifySpot_WithinTwoPercentIsVerified(t *testing.T) {
	oracle := &fakeOracle{price: adapters.ChainlinkQuote{Price: big.NewFloat(100)}}
	v := NewOracleVerifier(oracle)

	verdict, deviation, err := v.VerifySpot(context.Background(), "ETH/USDC", 1, big.NewFloat(101))
	require.NoError(t, err)
	assert.Equal(t, OracleVerified, verdict)
	assert.InDelta(t, 0.01, deviation, 1e-9)
}

func TestVerifySpot_BeyondFivePercentIsFlagged(t *testing.T) {
	oracle := &fakeOracle{price: adapters.ChainlinkQuote{Price: big.NewFloat(100)}}
	v := NewOracleVerifier(oracle)

	verdict, _, err := v.VerifySpot(context.Background(), "ETH/USDC", 1, big.NewFloat(110))
	require.Error(t, err)
	var alert *HighDeviationAlert
	require.ErrorAs(t, err, &alert)
	assert.Equal(t, OracleFlagged, verdict)
}

func TestVerifySpot_BetweenBandsIsUnverifiedNotFlagged(t *testing.T) {
	oracle := &fakeOracle{price: adapters.ChainlinkQuote{Price: big.NewFloat(100)}}
	v := NewOracleVerifier(oracle)

	verdict, _, err := v.VerifySpot(context.Background(), "ETH/USDC", 1, big.NewFloat(103))
	require.NoError(t, err)
	assert.Equal(t, OracleUnverified, verdict)
}

func TestRequiresTWAP_AboveThreshold(t *testing.T) {
	assert.True(t, RequiresTWAP(150_000))
	assert.False(t, RequiresTWAP(50_000))
}

func TestConsensusAccepted_RequiresAtLeastThreeAgreeingQuotes(t *testing.T) {
	agreeing := []*big.Float{big.NewFloat(100), big.NewFloat(100.5), big.NewFloat(99.6)}
	assert.True(t, ConsensusAccepted(agreeing))

	tooFew := []*big.Float{big.NewFloat(100), big.NewFloat(100.5)}
	assert.False(t, ConsensusAccepted(tooFew))

	disagreeing := []*big.Float{big.NewFloat(100), big.NewFloat(110), big.NewFloat(99)}
	assert.False(t, ConsensusAccepted(disagreeing))
}
