package adapters

import (
	"context"
	"math/big"
)

// ChainlinkQuote is a single oracle round read.
type ChainlinkQuote struct {
	Price     *big.Float
	RoundID   uint64
	Timestamp int64
}

// OracleAdapter is the capability the data-validation fabric's oracle
// verification step calls through, per spec §6.1. Implementations are out
// of scope; only the interface is specified.
type OracleAdapter interface {
	ChainlinkPrice(ctx context.Context, pair string, chainID uint64) (ChainlinkQuote, error)
	UniswapTWAP(ctx context.Context, poolID uint64, windowSeconds int) (*big.Float, error)
}
