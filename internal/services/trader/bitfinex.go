package trader

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bfxgate/internal/clients"
	"github.com/vadiminshakov/bfxgate/internal/domain"
)

const (
	bitfinexVenue = "bitfinex"
	// bitfinexOrderType limit order on the exchange (non-margin) wallet.
	bitfinexOrderType = "exchange limit"
	// bitfinexTradingAccount wallet type of the trading account; margin and deposit wallets are skipped.
	bitfinexTradingAccount = "exchange"
)

// BitfinexAPI raw Bitfinex calls used by the trader. *clients.BitfinexClient implements it.
type BitfinexAPI interface {
	WalletBalances(ctx context.Context) ([]clients.BitfinexBalance, error)
	Ticker(ctx context.Context, symbol string) (*clients.BitfinexTicker, error)
	NewOrder(ctx context.Context, order clients.BitfinexNewOrder) (*clients.BitfinexOrder, error)
	OrderStatus(ctx context.Context, orderID int64) (*clients.BitfinexOrder, error)
	CancelOrder(ctx context.Context, orderID int64) (*clients.BitfinexOrder, error)
	Trades(ctx context.Context, symbol string, since *time.Time, limit int) ([]clients.BitfinexTrade, error)
}

// BitfinexTrader Trader implementation for Bitfinex.
type BitfinexTrader struct {
	base
	api BitfinexAPI
}

// NewBitfinexTrader creates a Bitfinex adapter for pair.
func NewBitfinexTrader(api BitfinexAPI, pair domain.Pair, opts ...Option) (*BitfinexTrader, error) {
	if api == nil {
		return nil, errors.New("bitfinex client is nil")
	}
	return &BitfinexTrader{
		base: newBase(bitfinexVenue, pair, opts),
		api:  api,
	}, nil
}

func (t *BitfinexTrader) symbol() string {
	return t.pair.LowerSymbol()
}

func (t *BitfinexTrader) GetPortfolio(ctx context.Context) ([]domain.PortfolioEntry, error) {
	const op = "get portfolio"

	balances, err := t.api.WalletBalances(ctx)
	if err != nil {
		return nil, t.fail(op, err, ErrRequestRejected)
	}

	portfolio := make([]domain.PortfolioEntry, 0, len(balances))
	for _, balance := range balances {
		if balance.Type != bitfinexTradingAccount {
			continue
		}
		// available excludes funds locked in open orders
		amount, err := parseDecimal("available", balance.Available)
		if err != nil {
			return nil, t.malformed(op, errors.Wrapf(err, "balance of %s", balance.Currency))
		}
		portfolio = append(portfolio, domain.PortfolioEntry{
			Name:   strings.ToUpper(balance.Currency),
			Amount: amount,
		})
	}

	return portfolio, nil
}

func (t *BitfinexTrader) GetTicker(ctx context.Context) (domain.Ticker, error) {
	const op = "get ticker"

	tick, err := t.api.Ticker(ctx, t.symbol())
	if err != nil {
		return domain.Ticker{}, t.fail(op, err, ErrRequestRejected)
	}
	if tick == nil {
		return domain.Ticker{}, t.malformed(op, errors.New("empty ticker"))
	}

	bid, err := parseDecimal("bid", tick.Bid)
	if err != nil {
		return domain.Ticker{}, t.malformed(op, err)
	}
	ask, err := parseDecimal("ask", tick.Ask)
	if err != nil {
		return domain.Ticker{}, t.malformed(op, err)
	}

	return domain.Ticker{Bid: bid, Ask: ask}, nil
}

func (t *BitfinexTrader) Buy(ctx context.Context, amount, price decimal.Decimal) (domain.OrderID, error) {
	return t.submit(ctx, domain.SideBuy, amount, price, t.placeOrder)
}

func (t *BitfinexTrader) Sell(ctx context.Context, amount, price decimal.Decimal) (domain.OrderID, error) {
	return t.submit(ctx, domain.SideSell, amount, price, t.placeOrder)
}

func (t *BitfinexTrader) placeOrder(ctx context.Context, side domain.Side, amount, price string) (domain.OrderID, error) {
	op := "submit " + side.String() + " order"

	order, err := t.api.NewOrder(ctx, clients.BitfinexNewOrder{
		Symbol:   t.symbol(),
		Amount:   amount,
		Price:    price,
		Exchange: bitfinexVenue,
		Side:     side.String(),
		Type:     bitfinexOrderType,
	})
	if err != nil {
		return "", t.fail(op, err, ErrOrderRejected)
	}
	if order == nil {
		return "", t.malformed(op, errors.New("empty order response"))
	}

	id := order.OrderID
	if id == 0 {
		id = order.ID
	}
	if id == 0 {
		return "", t.malformed(op, errors.New("order id is missing"))
	}

	return domain.OrderID(strconv.FormatInt(id, 10)), nil
}

func (t *BitfinexTrader) CheckOrder(ctx context.Context, id domain.OrderID) (bool, error) {
	const op = "check order"

	orderID, err := parseBitfinexOrderID(id)
	if err != nil {
		return false, newError(t.venue, op, ErrInvalidOrder, err)
	}

	order, err := t.api.OrderStatus(ctx, orderID)
	if err != nil {
		return false, t.fail(op, err, ErrRequestRejected)
	}
	if order == nil {
		return false, t.malformed(op, errors.New("empty order status"))
	}

	return order.IsLive, nil
}

func (t *BitfinexTrader) CancelOrder(ctx context.Context, id domain.OrderID) error {
	orderID, err := parseBitfinexOrderID(id)
	if err != nil {
		return t.cancel(ctx, id, func(context.Context) (bool, error) {
			return false, newError(t.venue, "cancel order", ErrInvalidOrder, err)
		})
	}

	return t.cancel(ctx, id, func(ctx context.Context) (bool, error) {
		order, err := t.api.CancelOrder(ctx, orderID)
		if err != nil {
			return false, t.fail("cancel order", err, ErrRequestRejected)
		}
		return order != nil && order.IsCancelled, nil
	})
}

func (t *BitfinexTrader) GetTrades(ctx context.Context, since *time.Time, descending bool) ([]domain.Trade, error) {
	return t.trades(ctx, since, descending, func(ctx context.Context) ([]domain.Trade, error) {
		raw, err := t.api.Trades(ctx, t.symbol(), since, t.tradesLimit)
		if err != nil {
			return nil, t.fail("get trades", err, ErrRequestRejected)
		}
		trades, err := bitfinexTradesToDomain(raw)
		if err != nil {
			return nil, t.malformed("get trades", err)
		}
		return trades, nil
	})
}

// fail normalizes a raw client error. rejected is the kind used when the venue refused the request.
func (t *BitfinexTrader) fail(op string, err error, rejected error) error {
	return newError(t.venue, op, bitfinexErrorKind(err, rejected), err)
}

func bitfinexErrorKind(err error, rejected error) error {
	if errors.Is(err, clients.ErrNoCredentials) {
		return ErrMissingCredentials
	}
	// checked before isNetworkError: a bad base URL surfaces as *url.Error too
	if errors.Is(err, clients.ErrInvalidRequest) {
		return ErrRequestRejected
	}
	if errors.Is(err, clients.ErrUnexpectedPayload) {
		return ErrMalformedResponse
	}
	var apiErr *clients.BitfinexAPIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests {
			return ErrTransport
		}
		return rejected
	}
	if isNetworkError(err) {
		return ErrTransport
	}
	return rejected
}

// bitfinexTradesToDomain keeps the feed order, newest first.
func bitfinexTradesToDomain(raw []clients.BitfinexTrade) ([]domain.Trade, error) {
	trades := make([]domain.Trade, 0, len(raw))
	for _, tr := range raw {
		price, err := parseDecimal("price", tr.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "trade %d", tr.TID)
		}
		amount, err := parseDecimal("amount", tr.Amount)
		if err != nil {
			return nil, errors.Wrapf(err, "trade %d", tr.TID)
		}
		trades = append(trades, domain.Trade{
			Date:   time.Unix(tr.Timestamp, 0).UTC(),
			Price:  price,
			Amount: amount,
		})
	}
	return trades, nil
}

func parseBitfinexOrderID(id domain.OrderID) (int64, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid bitfinex order id %q", id)
	}
	return n, nil
}
