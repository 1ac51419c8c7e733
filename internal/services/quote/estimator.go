// Package quote estimates swap outcomes before submission. Estimates are
// advisory: the buy path replicates the pool's fixed mint formula against
// the oracle price read moments earlier, the sell path delegates to the
// pool's own quote entrypoint because it depends on reserve state the
// client cannot see. Both paths fail soft: a read error yields "no
// estimate", never a zero.
//
// The two paths stay split deliberately. The pool exposes no quote
// entrypoint for the buy direction, so the local formula is the only
// option there; if the on-chain formula ever changes, this copy must
// change with it.
package quote

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	"github.com/dobfi/dobswap/internal/domain"
)

// Buy-side constants mirrored from the pool contract.
const (
	dexFeeBps     int64 = 100 // 1% routing fee
	bpsDenom      int64 = 10_000
	operatorShare int64 = 99 // 99% of the post-fee amount reaches the operator
)

// Reads is the slice of the contract bindings the estimator needs.
type Reads interface {
	FairPrice(ctx context.Context) (int64, error)
	QuoteSwapSell(ctx context.Context, tokenIn int64) (domain.SwapQuote, error)
}

// Estimator computes advisory swap quotes.
type Estimator struct {
	reads  Reads
	logger *zap.Logger
}

// NewEstimator creates a quote estimator.
func NewEstimator(reads Reads, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{reads: reads, logger: logger}
}

// BuyQuote estimates the tokens minted for usdcIn. ok is false when no
// estimate is available; callers must treat that as unknown, not zero.
func (e *Estimator) BuyQuote(ctx context.Context, usdcIn int64) (domain.SwapQuote, bool) {
	if usdcIn <= 0 {
		return domain.SwapQuote{}, false
	}

	fairPrice, err := e.reads.FairPrice(ctx)
	if err != nil || fairPrice <= 0 {
		e.logger.Warn("buy quote unavailable", zap.Error(err))
		return domain.SwapQuote{}, false
	}

	out := BuyFormula(usdcIn, fairPrice)
	return domain.SwapQuote{
		In:     usdcIn,
		Out:    out,
		FeeBps: uint32(dexFeeBps),
	}, true
}

// BuyFormula is the pool's mint arithmetic: subtract the 1% routing fee,
// keep the 99% operator allocation, then convert at the fair price. All
// divisions floor, matching the contract's integer math exactly.
func BuyFormula(usdcIn, fairPrice int64) int64 {
	fee := usdcIn * dexFeeBps / bpsDenom
	afterFee := usdcIn - fee
	operatorAmount := afterFee * operatorShare / 100

	// operatorAmount * 10^7 can overflow int64 for large trades, so the
	// final scale-and-divide runs through big.Int.
	scaled := new(big.Int).Mul(big.NewInt(operatorAmount), big.NewInt(domain.StroopsPerUnit))
	return scaled.Div(scaled, big.NewInt(fairPrice)).Int64()
}

// SellQuote asks the pool to price a sell of tokenIn against its reserve
// curve. ok is false when no estimate is available.
func (e *Estimator) SellQuote(ctx context.Context, tokenIn int64) (domain.SwapQuote, bool) {
	if tokenIn <= 0 {
		return domain.SwapQuote{}, false
	}
	q, err := e.reads.QuoteSwapSell(ctx, tokenIn)
	if err != nil {
		e.logger.Warn("sell quote unavailable", zap.Error(err))
		return domain.SwapQuote{}, false
	}
	return q, true
}
