package trader

import (
	"context"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bfxgate/internal/clients"
	"github.com/vadiminshakov/bfxgate/internal/domain"
)

const (
	hyperliquidVenue = "hyperliquid"
	// hyperliquidCandleInterval resolution of the trade history; the info API has no public trade feed.
	hyperliquidCandleInterval = "1m"
	// hyperliquidTradesWindow history fetched when no since is given.
	hyperliquidTradesWindow = time.Hour
)

// HyperliquidAPI Hyperliquid calls used by the trader. *clients.HyperliquidClient implements it.
type HyperliquidAPI interface {
	SpotBalances(ctx context.Context) ([]clients.HyperliquidBalance, error)
	Mid(ctx context.Context, coin string) (string, error)
	Candles(ctx context.Context, coin, interval string, start, end time.Time) ([]clients.HyperliquidCandle, error)
	PlaceLimitOrder(ctx context.Context, order clients.HyperliquidOrder) error
	OrderState(ctx context.Context, cloid string) (*clients.HyperliquidOrderState, error)
	CancelOrder(ctx context.Context, coin string, oid int64) error
}

// HyperliquidTrader Trader implementation for Hyperliquid spot.
// Orders are identified by their client order id (cloid), which is known before
// the order is sent. The ticker is the venue mid price, so bid equals ask.
type HyperliquidTrader struct {
	base
	api HyperliquidAPI
	now func() time.Time
}

// NewHyperliquidTrader creates a Hyperliquid adapter for pair.
func NewHyperliquidTrader(api HyperliquidAPI, pair domain.Pair, opts ...Option) (*HyperliquidTrader, error) {
	if api == nil {
		return nil, errors.New("hyperliquid client is nil")
	}
	return &HyperliquidTrader{
		base: newBase(hyperliquidVenue, pair, opts),
		api:  api,
		now:  time.Now,
	}, nil
}

// coin Hyperliquid names markets by base coin.
func (t *HyperliquidTrader) coin() string {
	return strings.ToUpper(t.pair.From)
}

func (t *HyperliquidTrader) GetPortfolio(ctx context.Context) ([]domain.PortfolioEntry, error) {
	const op = "get portfolio"

	balances, err := t.api.SpotBalances(ctx)
	if err != nil {
		return nil, t.fail(op, err, ErrRequestRejected)
	}

	portfolio := make([]domain.PortfolioEntry, 0, len(balances))
	for _, balance := range balances {
		entry, err := hyperliquidBalanceToEntry(balance)
		if err != nil {
			return nil, t.malformed(op, err)
		}
		portfolio = append(portfolio, entry)
	}
	return portfolio, nil
}

func (t *HyperliquidTrader) GetTicker(ctx context.Context) (domain.Ticker, error) {
	const op = "get ticker"

	raw, err := t.api.Mid(ctx, t.coin())
	if err != nil {
		return domain.Ticker{}, t.fail(op, err, ErrRequestRejected)
	}
	mid, err := parseDecimal("mid", raw)
	if err != nil {
		return domain.Ticker{}, t.malformed(op, err)
	}
	return domain.Ticker{Bid: mid, Ask: mid}, nil
}

func (t *HyperliquidTrader) Buy(ctx context.Context, amount, price decimal.Decimal) (domain.OrderID, error) {
	return t.submit(ctx, domain.SideBuy, amount, price, t.placeOrder)
}

func (t *HyperliquidTrader) Sell(ctx context.Context, amount, price decimal.Decimal) (domain.OrderID, error) {
	return t.submit(ctx, domain.SideSell, amount, price, t.placeOrder)
}

func (t *HyperliquidTrader) placeOrder(ctx context.Context, side domain.Side, amount, price string) (domain.OrderID, error) {
	op := "submit " + side.String() + " order"

	// the SDK takes floats; 8 decimal places survive the round trip
	size, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return "", newError(t.venue, op, ErrInvalidOrder, err)
	}
	px, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return "", newError(t.venue, op, ErrInvalidOrder, err)
	}

	cloid := newCloid()
	err = t.api.PlaceLimitOrder(ctx, clients.HyperliquidOrder{
		Coin:  t.coin(),
		IsBuy: side == domain.SideBuy,
		Price: px,
		Size:  size,
		Cloid: cloid,
	})
	if err != nil {
		return "", t.fail(op, err, ErrOrderRejected)
	}
	return domain.OrderID(cloid), nil
}

func (t *HyperliquidTrader) CheckOrder(ctx context.Context, id domain.OrderID) (bool, error) {
	const op = "check order"

	if !isCloid(id) {
		return false, newError(t.venue, op, ErrInvalidOrder, errors.Errorf("invalid hyperliquid order id %q", id))
	}

	state, err := t.api.OrderState(ctx, string(id))
	if err != nil {
		return false, t.fail(op, err, ErrRequestRejected)
	}
	if state == nil {
		return false, t.malformed(op, errors.New("empty order status"))
	}
	// an unknown cloid is not live
	return state.Found && state.Open, nil
}

func (t *HyperliquidTrader) CancelOrder(ctx context.Context, id domain.OrderID) error {
	const op = "cancel order"

	return t.cancel(ctx, id, func(ctx context.Context) (bool, error) {
		if !isCloid(id) {
			return false, newError(t.venue, op, ErrInvalidOrder, errors.Errorf("invalid hyperliquid order id %q", id))
		}

		state, err := t.api.OrderState(ctx, string(id))
		if err != nil {
			return false, t.fail(op, err, ErrRequestRejected)
		}
		if state == nil || !state.Found || !state.Open {
			return false, nil
		}

		if err := t.api.CancelOrder(ctx, t.coin(), state.Oid); err != nil {
			return false, t.fail(op, err, ErrRequestRejected)
		}

		// the bulk cancel answer carries no per-order flag, so confirm by status
		after, err := t.api.OrderState(ctx, string(id))
		if err != nil {
			return false, t.fail(op, err, ErrRequestRejected)
		}
		return after != nil && after.Found && !after.Open, nil
	})
}

func (t *HyperliquidTrader) GetTrades(ctx context.Context, since *time.Time, descending bool) ([]domain.Trade, error) {
	return t.trades(ctx, since, descending, func(ctx context.Context) ([]domain.Trade, error) {
		end := t.now()
		start := end.Add(-hyperliquidTradesWindow)
		if since != nil {
			start = *since
		}

		candles, err := t.api.Candles(ctx, t.coin(), hyperliquidCandleInterval, start, end)
		if err != nil {
			return nil, t.fail("get trades", err, ErrRequestRejected)
		}
		trades, err := hyperliquidCandlesToTrades(candles, t.tradesLimit)
		if err != nil {
			return nil, t.malformed("get trades", err)
		}
		return trades, nil
	})
}

func (t *HyperliquidTrader) fail(op string, err error, rejected error) error {
	return newError(t.venue, op, hyperliquidErrorKind(err, rejected), err)
}

func hyperliquidErrorKind(err error, rejected error) error {
	switch {
	case errors.Is(err, clients.ErrNoCredentials):
		return ErrMissingCredentials
	case errors.Is(err, clients.ErrUnexpectedPayload), isDecodeError(err):
		return ErrMalformedResponse
	case isNetworkError(err):
		return ErrTransport
	default:
		return rejected
	}
}

// hyperliquidBalanceToEntry reports the spendable part: total minus what open orders hold.
func hyperliquidBalanceToEntry(balance clients.HyperliquidBalance) (domain.PortfolioEntry, error) {
	total, err := parseDecimal("total", balance.Total)
	if err != nil {
		return domain.PortfolioEntry{}, errors.Wrapf(err, "balance of %s", balance.Coin)
	}
	hold := decimal.Zero
	if balance.Hold != "" {
		hold, err = decimal.NewFromString(balance.Hold)
		if err != nil {
			return domain.PortfolioEntry{}, errors.Wrapf(err, "hold of %s", balance.Coin)
		}
	}
	available := total.Sub(hold)
	if available.IsNegative() {
		available = decimal.Zero
	}
	return domain.PortfolioEntry{Name: strings.ToUpper(balance.Coin), Amount: available}, nil
}

// hyperliquidCandlesToTrades turns traded one-minute candles into one trade each
// at the close price, newest first. limit > 0 keeps only the newest limit trades.
func hyperliquidCandlesToTrades(candles []clients.HyperliquidCandle, limit int) ([]domain.Trade, error) {
	trades := make([]domain.Trade, 0, len(candles))
	for i := len(candles) - 1; i >= 0; i-- {
		c := candles[i]
		volume, err := parseDecimal("volume", c.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "candle at %s", c.OpenTime.Format(time.RFC3339))
		}
		if !volume.IsPositive() {
			continue
		}
		price, err := parseDecimal("close", c.Close)
		if err != nil {
			return nil, errors.Wrapf(err, "candle at %s", c.OpenTime.Format(time.RFC3339))
		}
		trades = append(trades, domain.Trade{Date: c.OpenTime, Price: price, Amount: volume})
		if limit > 0 && len(trades) == limit {
			break
		}
	}
	return trades, nil
}

// newCloid returns a random Hyperliquid client order id: 0x and 32 hex chars.
func newCloid() string {
	id := uuid.New()
	return "0x" + hex.EncodeToString(id[:])
}

func isCloid(id domain.OrderID) bool {
	s := string(id)
	if len(s) != 34 || !strings.HasPrefix(s, "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}
