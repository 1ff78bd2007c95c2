package validation

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyclicarb/arbengine/adapters"
)

type fakeRPC struct {
	reserves    adapters.Reserves
	reservesErr error
	gasPrice    *big.Int
	gasErr      error
}

func (f *fakeRPC) GetReserves(ctx context.Context, chainID, poolID uint64) (adapters.Reserves, error) {
	if f.reservesErr != nil {
		return adapters.Reserves{}, f.reservesErr
	}
	return f.reserves, nil
}

func (f *fakeRPC) GetGasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	if f.gasErr != nil {
		return nil, f.gasErr
	}
	return f.gasPrice, nil
}

func (f *fakeRPC) GetBlockNumber(ctx context.Context, chainID uint64) (uint64, error) {
	return 100, nil
}

func TestFabric_FetchReserves_ProtocolNativeSucceeds(t *testing.T) {
	rpc := &fakeRPC{reserves: adapters.Reserves{PoolID: 7, Tokens: []uint64{1, 2}, Amounts: []*big.Int{big.NewInt(100), big.NewInt(200)}}}
	f, err := NewFabric(rpc, nil, 16, "test")
	require.NoError(t, err)

	dp, err := f.FetchReserves(context.Background(), Request{DataType: DataTypeReserves, Chain: 1, PoolID: 7}, 1000)
	require.NoError(t, err)
	assert.Equal(t, LayerRPCRotation, dp.Layer)
	assert.True(t, dp.Validated)
	assert.Equal(t, 0.95, dp.Confidence)
}

func TestFabric_FetchReserves_FallsBackToCache(t *testing.T) {
	rpc := &fakeRPC{reserves: adapters.Reserves{PoolID: 7}}
	f, err := NewFabric(rpc, nil, 16, "test")
	require.NoError(t, err)

	req := Request{DataType: DataTypeReserves, Chain: 1, PoolID: 7}
	_, err = f.FetchReserves(context.Background(), req, 1000)
	require.NoError(t, err)

	rpc.reservesErr = errors.New("rpc down")
	dp, err := f.FetchReserves(context.Background(), req, 1010)
	require.NoError(t, err)
	assert.Equal(t, LayerCache, dp.Layer)
	assert.Equal(t, float64(10), dp.StalenessS)
}

func TestFabric_FetchReserves_FallsBackToConservativeWhenCacheEvicted(t *testing.T) {
	rpc := &fakeRPC{reserves: adapters.Reserves{PoolID: 7}}
	f, err := NewFabric(rpc, nil, 16, "test")
	require.NoError(t, err)

	req := Request{DataType: DataTypeReserves, Chain: 1, PoolID: 7}
	_, err = f.FetchReserves(context.Background(), req, 1000)
	require.NoError(t, err)

	// evict the cache entry directly to force the conservative layer while
	// the last-known-good map still holds it.
	f.cache.Remove(req.cacheKey())

	rpc.reservesErr = errors.New("rpc down")
	dp, err := f.FetchReserves(context.Background(), req, 1000+staleLimitS-1)
	require.NoError(t, err)
	assert.Equal(t, LayerConservative, dp.Layer)
	assert.False(t, dp.Validated)
}

func TestFabric_FetchReserves_ExhaustedWhenNothingAvailable(t *testing.T) {
	rpc := &fakeRPC{reservesErr: errors.New("rpc down")}
	f, err := NewFabric(rpc, nil, 16, "test")
	require.NoError(t, err)

	_, err = f.FetchReserves(context.Background(), Request{DataType: DataTypeReserves, Chain: 1, PoolID: 9}, 1000)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ReasonFallbackExhausted, verr.Reason)
}

func TestFabric_FetchReserves_StaleLastKnownGoodIsRejected(t *testing.T) {
	rpc := &fakeRPC{reserves: adapters.Reserves{PoolID: 7}}
	f, err := NewFabric(rpc, nil, 16, "test")
	require.NoError(t, err)

	req := Request{DataType: DataTypeReserves, Chain: 1, PoolID: 7}
	_, err = f.FetchReserves(context.Background(), req, 1000)
	require.NoError(t, err)
	f.cache.Remove(req.cacheKey())

	rpc.reservesErr = errors.New("rpc down")
	_, err = f.FetchReserves(context.Background(), req, 1000+staleLimitS+1)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ReasonStaleData, verr.Reason)
}
