package quote

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dobfi/dobswap/internal/domain"
)

type fakeReads struct {
	fairPrice    int64
	fairPriceErr error
	sellQuote    domain.SwapQuote
	sellErr      error
	priceReads   int
}

func (f *fakeReads) FairPrice(ctx context.Context) (int64, error) {
	f.priceReads++
	return f.fairPrice, f.fairPriceErr
}

func (f *fakeReads) QuoteSwapSell(ctx context.Context, tokenIn int64) (domain.SwapQuote, error) {
	return f.sellQuote, f.sellErr
}

func TestBuyFormula(t *testing.T) {
	tests := []struct {
		name      string
		usdcIn    int64
		fairPrice int64
		want      int64
	}{
		// 100 USDC at fair price 1.0: fee 1%, operator keeps 99% of the rest
		{name: "hundred usdc at parity", usdcIn: 1_000_000_000, fairPrice: 10_000_000, want: 980_100_000},
		{name: "five usdc at parity", usdcIn: 50_000_000, fairPrice: 10_000_000, want: 49_005_000},
		{name: "price above parity", usdcIn: 1_000_000_000, fairPrice: 20_000_000, want: 490_050_000},
		{name: "divisions floor", usdcIn: 101, fairPrice: 10_000_000, want: 99},
		// operatorAmount * 10^7 overflows int64 here; big.Int keeps it exact
		{name: "large trade", usdcIn: 2_000_000_000_000, fairPrice: 10_000_000, want: 1_960_200_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuyFormula(tt.usdcIn, tt.fairPrice))
		})
	}
}

func TestBuyQuote(t *testing.T) {
	reads := &fakeReads{fairPrice: 10_000_000}
	e := NewEstimator(reads, zap.NewNop())

	q, ok := e.BuyQuote(context.Background(), 1_000_000_000)
	require.True(t, ok)
	assert.Equal(t, int64(1_000_000_000), q.In)
	assert.Equal(t, int64(980_100_000), q.Out)
	assert.Equal(t, uint32(100), q.FeeBps)
	assert.Equal(t, 1, reads.priceReads, "the price is read immediately before quoting")
}

func TestBuyQuoteFailsSoft(t *testing.T) {
	t.Run("read error", func(t *testing.T) {
		e := NewEstimator(&fakeReads{fairPriceErr: errors.New("oracle unreachable")}, zap.NewNop())
		_, ok := e.BuyQuote(context.Background(), 1_000_000_000)
		assert.False(t, ok, "no estimate must never look like a zero quote")
	})

	t.Run("nonsense price", func(t *testing.T) {
		e := NewEstimator(&fakeReads{fairPrice: 0}, zap.NewNop())
		_, ok := e.BuyQuote(context.Background(), 1_000_000_000)
		assert.False(t, ok)
	})

	t.Run("non-positive input", func(t *testing.T) {
		e := NewEstimator(&fakeReads{fairPrice: 10_000_000}, zap.NewNop())
		_, ok := e.BuyQuote(context.Background(), 0)
		assert.False(t, ok)
	})
}

func TestSellQuote(t *testing.T) {
	want := domain.SwapQuote{In: 10_000_000, Out: 95_000_000, PoolPart: 60_000_000, NodePart: 35_000_000, FeeBps: 150}
	e := NewEstimator(&fakeReads{sellQuote: want}, zap.NewNop())

	q, ok := e.SellQuote(context.Background(), 10_000_000)
	require.True(t, ok)
	assert.Equal(t, want, q)
}

func TestSellQuoteFailsSoft(t *testing.T) {
	e := NewEstimator(&fakeReads{sellErr: errors.New("pool unreachable")}, zap.NewNop())
	_, ok := e.SellQuote(context.Background(), 10_000_000)
	assert.False(t, ok)

	_, ok = e.SellQuote(context.Background(), -5)
	assert.False(t, ok)
}
