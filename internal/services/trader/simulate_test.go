package trader

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/bfxgate/internal/domain"
	"github.com/vadiminshakov/bfxgate/internal/storage/simstate"
	"go.uber.org/zap"
)

// mockMarket market data side of a venue adapter.
type mockMarket struct {
	mock.Mock
}

func (m *mockMarket) GetPortfolio(ctx context.Context) ([]domain.PortfolioEntry, error) {
	panic("paper trading must not read the venue portfolio")
}

func (m *mockMarket) GetTicker(ctx context.Context) (domain.Ticker, error) {
	args := m.Called(ctx)
	tick, _ := args.Get(0).(domain.Ticker)
	return tick, args.Error(1)
}

func (m *mockMarket) GetFee() decimal.Decimal { return decimal.Zero }

func (m *mockMarket) Buy(ctx context.Context, amount, price decimal.Decimal) (domain.OrderID, error) {
	panic("paper trading must not place venue orders")
}

func (m *mockMarket) Sell(ctx context.Context, amount, price decimal.Decimal) (domain.OrderID, error) {
	panic("paper trading must not place venue orders")
}

func (m *mockMarket) CheckOrder(ctx context.Context, id domain.OrderID) (bool, error) {
	panic("paper trading must not query venue orders")
}

func (m *mockMarket) CancelOrder(ctx context.Context, id domain.OrderID) error {
	panic("paper trading must not cancel venue orders")
}

func (m *mockMarket) GetTrades(ctx context.Context, since *time.Time, descending bool) ([]domain.Trade, error) {
	args := m.Called(ctx, since, descending)
	trades, _ := args.Get(0).([]domain.Trade)
	return trades, args.Error(1)
}

func ticker(bid, ask int64) domain.Ticker {
	return domain.Ticker{Bid: decimal.NewFromInt(bid), Ask: decimal.NewFromInt(ask)}
}

func newTestSimulateTrader(t *testing.T, dir string, opts ...Option) (*SimulateTrader, *mockMarket) {
	t.Helper()
	store, err := simstate.NewStore(dir, "bitfinex", btcusd)
	require.NoError(t, err)
	market := &mockMarket{}
	tr, err := NewSimulateTrader(market, store, btcusd, decimal.NewFromInt(10000),
		append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	require.NoError(t, err)
	return tr, market
}

func balances(t *testing.T, tr *SimulateTrader) map[string]string {
	t.Helper()
	portfolio, err := tr.GetPortfolio(context.Background())
	require.NoError(t, err)
	out := make(map[string]string, len(portfolio))
	for _, entry := range portfolio {
		out[entry.Name] = entry.Amount.String()
	}
	return out
}

func TestNewSimulateTrader_Validation(t *testing.T) {
	_, err := NewSimulateTrader(nil, nil, btcusd, decimal.NewFromInt(1))
	require.Error(t, err)
	_, err = NewSimulateTrader(&mockMarket{}, nil, btcusd, decimal.NewFromInt(-1))
	require.Error(t, err)
}

func TestSimulateTrader_BuyHoldsQuoteUntilFilled(t *testing.T) {
	ctx := context.Background()
	journal := &memJournal{}
	tr, market := newTestSimulateTrader(t, t.TempDir(), WithJournal(journal), WithMakerFee(decimal.RequireFromString("0.001")))

	id, err := tr.Buy(ctx, decimal.RequireFromString("0.1"), decimal.NewFromInt(60000))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderID("1"), id)

	// market above the limit: still resting, 6000 USD held
	market.On("GetTicker", ctx).Return(ticker(60500, 60600), nil).Twice()
	live, err := tr.CheckOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, map[string]string{"BTC": "0", "USD": "4000"}, balances(t, tr))

	// ask reaches the limit: filled at 60000 minus the maker fee in BTC
	market.On("GetTicker", ctx).Return(ticker(59900, 60000), nil).Once()
	live, err = tr.CheckOrder(ctx, id)
	require.NoError(t, err)
	assert.False(t, live)
	assert.Equal(t, map[string]string{"BTC": "0.0999", "USD": "4000"}, balances(t, tr))

	assert.Equal(t, []domain.OrderEventType{domain.OrderEventSubmitted, domain.OrderEventFilled}, journal.types())
	market.AssertExpectations(t)
}

func TestSimulateTrader_SellRequiresBase(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestSimulateTrader(t, t.TempDir())

	_, err := tr.Sell(ctx, decimal.NewFromInt(1), decimal.NewFromInt(60000))
	require.ErrorIs(t, err, ErrOrderRejected)

	_, err = tr.Buy(ctx, decimal.NewFromInt(1), decimal.NewFromInt(60000))
	require.ErrorIs(t, err, ErrOrderRejected, "10000 USD cannot cover 60000")
}

func TestSimulateTrader_SellFill(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	tr, market := newTestSimulateTrader(t, dir, WithMakerFee(decimal.Zero))

	buy, err := tr.Buy(ctx, decimal.NewFromInt(1), decimal.NewFromInt(5000))
	require.NoError(t, err)
	market.On("GetTicker", ctx).Return(ticker(4990, 5000), nil).Once()
	live, err := tr.CheckOrder(ctx, buy)
	require.NoError(t, err)
	require.False(t, live)

	sell, err := tr.Sell(ctx, decimal.NewFromInt(1), decimal.NewFromInt(5500))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderID("2"), sell)

	market.On("GetTicker", ctx).Return(ticker(5500, 5510), nil).Once()
	assert.Equal(t, map[string]string{"BTC": "0", "USD": "10500"}, balances(t, tr))
}

func TestSimulateTrader_CancelReleasesHold(t *testing.T) {
	ctx := context.Background()
	journal := &memJournal{}
	tr, _ := newTestSimulateTrader(t, t.TempDir(), WithJournal(journal), WithStrictCancel(true))

	id, err := tr.Buy(ctx, decimal.NewFromInt(1), decimal.NewFromInt(4000))
	require.NoError(t, err)
	require.NoError(t, tr.CancelOrder(ctx, id))

	// nothing rests, so the portfolio needs no ticker
	assert.Equal(t, map[string]string{"BTC": "0", "USD": "10000"}, balances(t, tr))

	err = tr.CancelOrder(ctx, id)
	assert.ErrorIs(t, err, ErrCancelFailed)
	assert.Equal(t, []domain.OrderEventType{
		domain.OrderEventSubmitted,
		domain.OrderEventCancelRequested,
		domain.OrderEventCancelRequested,
		domain.OrderEventCancelFailed,
	}, journal.types())
}

func TestSimulateTrader_StateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tr, _ := newTestSimulateTrader(t, dir)
	id, err := tr.Buy(ctx, decimal.NewFromInt(1), decimal.NewFromInt(3000))
	require.NoError(t, err)

	restored, market := newTestSimulateTrader(t, dir)
	market.On("GetTicker", ctx).Return(ticker(3100, 3200), nil)

	live, err := restored.CheckOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, map[string]string{"BTC": "0", "USD": "7000"}, balances(t, restored))

	next, err := restored.Buy(ctx, decimal.NewFromInt(1), decimal.NewFromInt(3000))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderID("2"), next)
}

func TestSimulateTrader_MarketDataPassThrough(t *testing.T) {
	ctx := context.Background()
	tr, market := newTestSimulateTrader(t, t.TempDir())
	trades := []domain.Trade{{Date: time.Unix(1, 0), Price: decimal.NewFromInt(1), Amount: decimal.NewFromInt(1)}}

	market.On("GetTicker", ctx).Return(ticker(1, 2), nil)
	market.On("GetTrades", ctx, (*time.Time)(nil), true).Return(trades, nil)

	tick, err := tr.GetTicker(ctx)
	require.NoError(t, err)
	assert.True(t, tick.Ask.Equal(decimal.NewFromInt(2)))

	got, err := tr.GetTrades(ctx, nil, true)
	require.NoError(t, err)
	assert.Equal(t, trades, got)
}

func TestSimulateTrader_TickerFailureBlocksCheck(t *testing.T) {
	ctx := context.Background()
	tr, market := newTestSimulateTrader(t, t.TempDir())
	id, err := tr.Buy(ctx, decimal.NewFromInt(1), decimal.NewFromInt(1000))
	require.NoError(t, err)

	market.On("GetTicker", ctx).Return(domain.Ticker{}, &Error{Venue: "bitfinex", Op: "get ticker", Kind: ErrTransport})
	_, err = tr.CheckOrder(ctx, id)
	assert.ErrorIs(t, err, ErrTransport)

	// the portfolio still answers from the wallet
	assert.Equal(t, map[string]string{"BTC": "0", "USD": "9000"}, balances(t, tr))
}
