//go:build integration

package trader

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/bfxgate/internal/clients"
	"github.com/vadiminshakov/bfxgate/internal/domain"
	"github.com/vadiminshakov/bfxgate/pkg/retrier"
)

// TestPublicData_Integration calls the real venue APIs without credentials.
// To run this test, use: go test -tags=integration -v ./...
func TestPublicData_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	retry := WithRetryPolicy(retrier.WithMaxRetries(2), retrier.WithInitialInterval(time.Second))

	bfx, err := NewBitfinexTrader(clients.NewBitfinexClient(nil), domain.Pair{From: "BTC", To: "USD"}, retry)
	require.NoError(t, err)
	bnb, err := NewBinanceTrader(clients.NewBinanceClient(nil, ""), domain.Pair{From: "BTC", To: "USDT"}, retry)
	require.NoError(t, err)
	bbt, err := NewBybitTrader(clients.NewBybitClient(nil, ""), domain.Pair{From: "BTC", To: "USDT"}, retry)
	require.NoError(t, err)

	for name, tr := range map[string]Trader{"bitfinex": bfx, "binance": bnb, "bybit": bbt} {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			tick, err := tr.GetTicker(ctx)
			require.NoError(t, err)
			assert.True(t, tick.Bid.GreaterThan(decimal.Zero), "bid %s", tick.Bid)
			assert.True(t, tick.Ask.GreaterThanOrEqual(tick.Bid), "ask %s bid %s", tick.Ask, tick.Bid)
			t.Logf("%s ticker: bid %s ask %s", name, tick.Bid, tick.Ask)

			trades, err := tr.GetTrades(ctx, nil, true)
			require.NoError(t, err)
			require.NotEmpty(t, trades)
			for i := 1; i < len(trades); i++ {
				assert.False(t, trades[i].Date.After(trades[i-1].Date), "trades must be newest first")
			}
		})
	}

	t.Run("bitfinex private call without credentials", func(t *testing.T) {
		_, err := bfx.GetPortfolio(context.Background())
		require.ErrorIs(t, err, ErrMissingCredentials)
	})
}
