package trader

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bfxgate/internal/domain"
)

const (
	bybitVenue = "bybit"
	// bybitTradingAccount unified trading account; the funding account is not tradable.
	bybitTradingAccount = "UNIFIED"

	bybitStatusNew             = "New"
	bybitStatusPartiallyFilled = "PartiallyFilled"
)

// BybitTrader Trader implementation for Bybit spot (v5 API).
// The SDK calls are not context aware, so ctx is only checked before each request.
type BybitTrader struct {
	base
	client *bybit.Client
}

// NewBybitTrader creates a Bybit spot adapter for pair.
func NewBybitTrader(client *bybit.Client, pair domain.Pair, opts ...Option) (*BybitTrader, error) {
	if client == nil {
		return nil, errors.New("bybit client is nil")
	}
	return &BybitTrader{
		base:   newBase(bybitVenue, pair, opts),
		client: client,
	}, nil
}

func (t *BybitTrader) symbol() bybit.SymbolV5 {
	return bybit.SymbolV5(t.pair.Symbol())
}

func (t *BybitTrader) GetPortfolio(ctx context.Context) ([]domain.PortfolioEntry, error) {
	const op = "get portfolio"
	if err := ctx.Err(); err != nil {
		return nil, newError(t.venue, op, ErrTransport, err)
	}

	resp, err := t.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5(bybitTradingAccount), nil)
	if err != nil {
		return nil, t.fail(op, err, ErrRequestRejected)
	}
	if resp == nil {
		return nil, t.malformed(op, errors.New("empty wallet balance"))
	}

	var portfolio []domain.PortfolioEntry
	for _, account := range resp.Result.List {
		for _, coin := range account.Coin {
			entry, err := bybitCoinToEntry(string(coin.Coin), coin.AvailableToWithdraw, coin.WalletBalance)
			if err != nil {
				return nil, t.malformed(op, err)
			}
			portfolio = append(portfolio, entry)
		}
	}
	return portfolio, nil
}

func (t *BybitTrader) GetTicker(ctx context.Context) (domain.Ticker, error) {
	const op = "get ticker"
	if err := ctx.Err(); err != nil {
		return domain.Ticker{}, newError(t.venue, op, ErrTransport, err)
	}

	symbol := t.symbol()
	resp, err := t.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &symbol,
	})
	if err != nil {
		return domain.Ticker{}, t.fail(op, err, ErrRequestRejected)
	}
	if resp == nil || resp.Result.Spot == nil || len(resp.Result.Spot.List) == 0 {
		return domain.Ticker{}, t.malformed(op, errors.Errorf("bybit API returned no spot ticker for %s", t.pair.String()))
	}

	item := resp.Result.Spot.List[0]
	tick, err := bybitTicker(item.Bid1Price, item.Ask1Price)
	if err != nil {
		return domain.Ticker{}, t.malformed(op, err)
	}
	return tick, nil
}

func (t *BybitTrader) Buy(ctx context.Context, amount, price decimal.Decimal) (domain.OrderID, error) {
	return t.submit(ctx, domain.SideBuy, amount, price, t.placeOrder)
}

func (t *BybitTrader) Sell(ctx context.Context, amount, price decimal.Decimal) (domain.OrderID, error) {
	return t.submit(ctx, domain.SideSell, amount, price, t.placeOrder)
}

func (t *BybitTrader) placeOrder(ctx context.Context, side domain.Side, amount, price string) (domain.OrderID, error) {
	op := "submit " + side.String() + " order"
	if err := ctx.Err(); err != nil {
		return "", newError(t.venue, op, ErrTransport, err)
	}

	bybitSide := bybit.SideBuy
	if side == domain.SideSell {
		bybitSide = bybit.SideSell
	}
	linkID := uuid.NewString()

	resp, err := t.client.V5().Order().CreateOrder(bybit.V5CreateOrderParam{
		Category:    bybit.CategoryV5Spot,
		Symbol:      t.symbol(),
		Side:        bybitSide,
		OrderType:   bybit.OrderTypeLimit,
		Qty:         amount,
		Price:       &price,
		OrderLinkID: &linkID,
	})
	if err != nil {
		return "", t.fail(op, err, ErrOrderRejected)
	}
	if resp == nil || resp.Result.OrderID == "" {
		return "", t.malformed(op, errors.New("order id is missing"))
	}

	return domain.OrderID(resp.Result.OrderID), nil
}

func (t *BybitTrader) CheckOrder(ctx context.Context, id domain.OrderID) (bool, error) {
	const op = "check order"
	if id == "" {
		return false, newError(t.venue, op, ErrInvalidOrder, errors.New("empty order id"))
	}
	if err := ctx.Err(); err != nil {
		return false, newError(t.venue, op, ErrTransport, err)
	}

	symbol := t.symbol()
	orderID := id.String()
	resp, err := t.client.V5().Order().GetOpenOrders(bybit.V5GetOpenOrdersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &symbol,
		OrderID:  &orderID,
	})
	if err != nil {
		return false, t.fail(op, err, ErrRequestRejected)
	}
	if resp == nil {
		return false, t.malformed(op, errors.New("empty order status"))
	}

	// open orders only lists live orders; filled and cancelled ones drop out
	for _, order := range resp.Result.List {
		if order.OrderID == orderID {
			return bybitOrderIsLive(string(order.OrderStatus)), nil
		}
	}
	return false, nil
}

func (t *BybitTrader) CancelOrder(ctx context.Context, id domain.OrderID) error {
	return t.cancel(ctx, id, func(ctx context.Context) (bool, error) {
		if id == "" {
			return false, newError(t.venue, "cancel order", ErrInvalidOrder, errors.New("empty order id"))
		}
		if err := ctx.Err(); err != nil {
			return false, newError(t.venue, "cancel order", ErrTransport, err)
		}

		orderID := id.String()
		resp, err := t.client.V5().Order().CancelOrder(bybit.V5CancelOrderParam{
			Category: bybit.CategoryV5Spot,
			Symbol:   t.symbol(),
			OrderID:  &orderID,
		})
		if err != nil {
			return false, t.fail("cancel order", err, ErrRequestRejected)
		}
		return resp != nil && resp.Result.OrderID == orderID, nil
	})
}

func (t *BybitTrader) GetTrades(ctx context.Context, since *time.Time, descending bool) ([]domain.Trade, error) {
	return t.trades(ctx, since, descending, func(ctx context.Context) ([]domain.Trade, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		param := bybit.V5GetPublicTradingHistoryParam{
			Category: bybit.CategoryV5Spot,
			Symbol:   t.symbol(),
		}
		if t.tradesLimit > 0 {
			limit := t.tradesLimit
			param.Limit = &limit
		}

		resp, err := t.client.V5().Market().GetPublicTradingHistory(param)
		if err != nil {
			return nil, t.fail("get trades", err, ErrRequestRejected)
		}
		if resp == nil {
			return nil, t.malformed("get trades", errors.New("empty trading history"))
		}

		trades := make([]domain.Trade, 0, len(resp.Result.List))
		for _, item := range resp.Result.List {
			tr, err := bybitTrade(item.Time, item.Price, item.Size)
			if err != nil {
				return nil, t.malformed("get trades", errors.Wrapf(err, "trade %s", item.ExecID))
			}
			trades = append(trades, tr)
		}
		return trades, nil
	})
}

func (t *BybitTrader) fail(op string, err error, rejected error) error {
	return newError(t.venue, op, bybitErrorKind(err, rejected), err)
}

// bybitErrorKind the SDK surfaces API refusals as plain errors, so only
// network and decode failures can be told apart.
func bybitErrorKind(err error, rejected error) error {
	switch {
	case isNetworkError(err):
		return ErrTransport
	case isDecodeError(err):
		return ErrMalformedResponse
	default:
		return rejected
	}
}

// bybitCoinToEntry falls back to the wallet balance when the venue omits the withdrawable amount.
func bybitCoinToEntry(coin, available, wallet string) (domain.PortfolioEntry, error) {
	if available == "" {
		available = wallet
	}
	amount, err := parseDecimal("availableToWithdraw", available)
	if err != nil {
		return domain.PortfolioEntry{}, errors.Wrapf(err, "balance of %s", coin)
	}
	return domain.PortfolioEntry{Name: coin, Amount: amount}, nil
}

func bybitTicker(bid, ask string) (domain.Ticker, error) {
	b, err := parseDecimal("bid1Price", bid)
	if err != nil {
		return domain.Ticker{}, err
	}
	a, err := parseDecimal("ask1Price", ask)
	if err != nil {
		return domain.Ticker{}, err
	}
	return domain.Ticker{Bid: b, Ask: a}, nil
}

// bybitTrade maps one public trade; ts is in milliseconds.
func bybitTrade(ts, price, size string) (domain.Trade, error) {
	if ts == "" {
		return domain.Trade{}, errors.New(`field "time" is missing`)
	}
	ms, err := decimal.NewFromString(ts)
	if err != nil {
		return domain.Trade{}, errors.Wrap(err, `field "time"`)
	}
	p, err := parseDecimal("price", price)
	if err != nil {
		return domain.Trade{}, err
	}
	s, err := parseDecimal("size", size)
	if err != nil {
		return domain.Trade{}, err
	}
	return domain.Trade{
		Date:   time.UnixMilli(ms.IntPart()).UTC(),
		Price:  p,
		Amount: s,
	}, nil
}

func bybitOrderIsLive(status string) bool {
	return status == bybitStatusNew || status == bybitStatusPartiallyFilled
}
