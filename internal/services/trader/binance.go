package trader

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bfxgate/internal/domain"
)

const (
	binanceVenue = "binance"

	binanceCodeDisconnected    = -1001
	binanceCodeTooManyRequests = -1003
	binanceCodeTimeout         = -1007
	binanceCodeOrderNotFound   = -2013

	binanceClientOrderPrefix = "bfxgate-"
)

// BinanceTrader Trader implementation for Binance spot.
type BinanceTrader struct {
	base
	client *binance.Client
}

// NewBinanceTrader creates a Binance spot adapter for pair.
func NewBinanceTrader(client *binance.Client, pair domain.Pair, opts ...Option) (*BinanceTrader, error) {
	if client == nil {
		return nil, errors.New("binance client is nil")
	}
	return &BinanceTrader{
		base:   newBase(binanceVenue, pair, opts),
		client: client,
	}, nil
}

func (t *BinanceTrader) GetPortfolio(ctx context.Context) ([]domain.PortfolioEntry, error) {
	const op = "get portfolio"

	// the spot account is the trading account; margin balances live behind a different endpoint
	account, err := t.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, t.fail(op, err, ErrRequestRejected)
	}

	portfolio, err := binanceBalancesToPortfolio(account.Balances)
	if err != nil {
		return nil, t.malformed(op, err)
	}
	return portfolio, nil
}

func (t *BinanceTrader) GetTicker(ctx context.Context) (domain.Ticker, error) {
	const op = "get ticker"

	tickers, err := t.client.NewListBookTickersService().Symbol(t.pair.Symbol()).Do(ctx)
	if err != nil {
		return domain.Ticker{}, t.fail(op, err, ErrRequestRejected)
	}
	if len(tickers) == 0 || tickers[0] == nil {
		return domain.Ticker{}, t.malformed(op, fmt.Errorf("binance API returned empty book ticker for %s", t.pair.String()))
	}

	tick, err := binanceBookTickerToDomain(tickers[0])
	if err != nil {
		return domain.Ticker{}, t.malformed(op, err)
	}
	return tick, nil
}

func (t *BinanceTrader) Buy(ctx context.Context, amount, price decimal.Decimal) (domain.OrderID, error) {
	return t.submit(ctx, domain.SideBuy, amount, price, t.placeOrder)
}

func (t *BinanceTrader) Sell(ctx context.Context, amount, price decimal.Decimal) (domain.OrderID, error) {
	return t.submit(ctx, domain.SideSell, amount, price, t.placeOrder)
}

func (t *BinanceTrader) placeOrder(ctx context.Context, side domain.Side, amount, price string) (domain.OrderID, error) {
	op := "submit " + side.String() + " order"

	sideType := binance.SideTypeBuy
	if side == domain.SideSell {
		sideType = binance.SideTypeSell
	}

	resp, err := t.client.NewCreateOrderService().Symbol(t.pair.Symbol()).
		Side(sideType).Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(amount).
		Price(price).
		NewClientOrderID(binanceClientOrderPrefix + uuid.NewString()).
		Do(ctx)
	if err != nil {
		return "", t.fail(op, err, ErrOrderRejected)
	}
	if resp == nil || resp.OrderID == 0 {
		return "", t.malformed(op, errors.New("order id is missing"))
	}

	return domain.OrderID(strconv.FormatInt(resp.OrderID, 10)), nil
}

func (t *BinanceTrader) CheckOrder(ctx context.Context, id domain.OrderID) (bool, error) {
	const op = "check order"

	orderID, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return false, newError(t.venue, op, ErrInvalidOrder, err)
	}

	order, err := t.client.NewGetOrderService().Symbol(t.pair.Symbol()).OrderID(orderID).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == binanceCodeOrderNotFound {
			return false, nil
		}
		return false, t.fail(op, err, ErrRequestRejected)
	}
	if order == nil {
		return false, t.malformed(op, errors.New("empty order status"))
	}

	return binanceOrderIsLive(order.Status), nil
}

func (t *BinanceTrader) CancelOrder(ctx context.Context, id domain.OrderID) error {
	return t.cancel(ctx, id, func(ctx context.Context) (bool, error) {
		orderID, err := strconv.ParseInt(string(id), 10, 64)
		if err != nil {
			return false, newError(t.venue, "cancel order", ErrInvalidOrder, err)
		}

		resp, err := t.client.NewCancelOrderService().Symbol(t.pair.Symbol()).OrderID(orderID).Do(ctx)
		if err != nil {
			return false, t.fail("cancel order", err, ErrRequestRejected)
		}
		return resp != nil && resp.Status == binance.OrderStatusTypeCanceled, nil
	})
}

func (t *BinanceTrader) GetTrades(ctx context.Context, since *time.Time, descending bool) ([]domain.Trade, error) {
	return t.trades(ctx, since, descending, func(ctx context.Context) ([]domain.Trade, error) {
		svc := t.client.NewRecentTradesService().Symbol(t.pair.Symbol())
		if t.tradesLimit > 0 {
			svc = svc.Limit(t.tradesLimit)
		}
		raw, err := svc.Do(ctx)
		if err != nil {
			return nil, t.fail("get trades", err, ErrRequestRejected)
		}
		trades, err := binanceTradesToDomain(raw)
		if err != nil {
			return nil, t.malformed("get trades", err)
		}
		return trades, nil
	})
}

func (t *BinanceTrader) fail(op string, err error, rejected error) error {
	return newError(t.venue, op, binanceErrorKind(err, rejected), err)
}

func binanceErrorKind(err error, rejected error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		// the SDK returns an empty APIError with the raw body when an HTTP
		// error body is not JSON, e.g. an HTML page from a gateway in front of the API
		if !apiErr.IsValid() {
			return ErrTransport
		}
		switch apiErr.Code {
		case binanceCodeDisconnected, binanceCodeTooManyRequests, binanceCodeTimeout:
			return ErrTransport
		}
		return rejected
	}
	if isDecodeError(err) {
		return ErrMalformedResponse
	}
	return ErrTransport
}

// binanceBalancesToPortfolio maps free balances; assets with nothing free or locked are skipped.
func binanceBalancesToPortfolio(balances []binance.Balance) ([]domain.PortfolioEntry, error) {
	portfolio := make([]domain.PortfolioEntry, 0, len(balances))
	for _, balance := range balances {
		free, err := parseDecimal("free", balance.Free)
		if err != nil {
			return nil, errors.Wrapf(err, "balance of %s", balance.Asset)
		}
		locked, err := parseDecimal("locked", balance.Locked)
		if err != nil {
			return nil, errors.Wrapf(err, "balance of %s", balance.Asset)
		}
		if free.IsZero() && locked.IsZero() {
			continue
		}
		portfolio = append(portfolio, domain.PortfolioEntry{Name: balance.Asset, Amount: free})
	}
	return portfolio, nil
}

func binanceBookTickerToDomain(tick *binance.BookTicker) (domain.Ticker, error) {
	bid, err := parseDecimal("bidPrice", tick.BidPrice)
	if err != nil {
		return domain.Ticker{}, err
	}
	ask, err := parseDecimal("askPrice", tick.AskPrice)
	if err != nil {
		return domain.Ticker{}, err
	}
	return domain.Ticker{Bid: bid, Ask: ask}, nil
}

// binanceTradesToDomain converts the oldest-first Binance feed to newest first.
func binanceTradesToDomain(raw []*binance.Trade) ([]domain.Trade, error) {
	trades := make([]domain.Trade, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		tr := raw[i]
		if tr == nil {
			continue
		}
		price, err := parseDecimal("price", tr.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "trade %d", tr.ID)
		}
		amount, err := parseDecimal("qty", tr.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "trade %d", tr.ID)
		}
		trades = append(trades, domain.Trade{
			Date:   time.UnixMilli(tr.Time).UTC(),
			Price:  price,
			Amount: amount,
		})
	}
	return trades, nil
}

func binanceOrderIsLive(status binance.OrderStatusType) bool {
	return status == binance.OrderStatusTypeNew || status == binance.OrderStatusTypePartiallyFilled
}
