package trader

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bfxgate/internal/domain"
	"github.com/vadiminshakov/bfxgate/internal/storage/simstate"
	"go.uber.org/zap"
)

const simulateVenue = "simulate"

// SimulateTrader paper trading Trader. Tickers and trades come from a real
// venue adapter; balances and resting limit orders live in memory and are
// persisted through a simstate store. An order fills at its limit price once
// the market ticker crosses it, paying the maker fee.
type SimulateTrader struct {
	base
	market Trader
	store  *simstate.Store

	mu     sync.Mutex
	wallet map[string]decimal.Decimal
	orders map[domain.OrderID]paperOrder
	nextID uint64
	now    func() time.Time
}

type paperOrder struct {
	side   domain.Side
	amount decimal.Decimal
	price  decimal.Decimal
	placed time.Time
}

// held funds the order locks: quote for a buy, base for a sell.
func (o paperOrder) held() decimal.Decimal {
	if o.side == domain.SideBuy {
		return o.amount.Mul(o.price)
	}
	return o.amount
}

// NewSimulateTrader creates a paper trading adapter. The wallet starts with
// balance of the quote currency unless store holds a previous state.
func NewSimulateTrader(market Trader, store *simstate.Store, pair domain.Pair, balance decimal.Decimal, opts ...Option) (*SimulateTrader, error) {
	if market == nil {
		return nil, errors.New("market data trader is nil")
	}
	if balance.IsNegative() {
		return nil, errors.Errorf("initial balance must not be negative, got %s", balance)
	}

	t := &SimulateTrader{
		base:   newBase(simulateVenue, pair, opts),
		market: market,
		store:  store,
		wallet: map[string]decimal.Decimal{pair.From: decimal.Zero, pair.To: balance},
		orders: make(map[domain.OrderID]paperOrder),
		nextID: 1,
		now:    time.Now,
	}
	if err := t.restoreState(); err != nil {
		return nil, errors.Wrap(err, "restore simulate state")
	}

	t.logger.Info("simulate init",
		zap.String("pair", pair.String()),
		zap.String("base", t.wallet[pair.From].String()),
		zap.String("quote", t.wallet[pair.To].String()),
		zap.Int("open_orders", len(t.orders)))
	return t, nil
}

func (t *SimulateTrader) GetPortfolio(ctx context.Context) ([]domain.PortfolioEntry, error) {
	if err := t.match(ctx); err != nil {
		// fills are only delayed, balances stay consistent
		t.logger.Warn("unable to match paper orders", zap.Error(err))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	portfolio := make([]domain.PortfolioEntry, 0, len(t.wallet))
	for currency, total := range t.wallet {
		portfolio = append(portfolio, domain.PortfolioEntry{Name: currency, Amount: total.Sub(t.heldLocked(currency))})
	}
	sort.Slice(portfolio, func(i, j int) bool { return portfolio[i].Name < portfolio[j].Name })
	return portfolio, nil
}

func (t *SimulateTrader) GetTicker(ctx context.Context) (domain.Ticker, error) {
	return t.market.GetTicker(ctx)
}

func (t *SimulateTrader) Buy(ctx context.Context, amount, price decimal.Decimal) (domain.OrderID, error) {
	return t.submit(ctx, domain.SideBuy, amount, price, t.placeOrder)
}

func (t *SimulateTrader) Sell(ctx context.Context, amount, price decimal.Decimal) (domain.OrderID, error) {
	return t.submit(ctx, domain.SideSell, amount, price, t.placeOrder)
}

func (t *SimulateTrader) placeOrder(ctx context.Context, side domain.Side, amount, price string) (domain.OrderID, error) {
	op := "submit " + side.String() + " order"

	if err := ctx.Err(); err != nil {
		return "", newError(t.venue, op, ErrTransport, err)
	}
	qty, err := decimal.NewFromString(amount)
	if err != nil {
		return "", newError(t.venue, op, ErrInvalidOrder, err)
	}
	px, err := decimal.NewFromString(price)
	if err != nil {
		return "", newError(t.venue, op, ErrInvalidOrder, err)
	}

	order := paperOrder{side: side, amount: qty, price: px, placed: t.now().UTC()}
	currency := t.pair.To
	if side == domain.SideSell {
		currency = t.pair.From
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	available := t.wallet[currency].Sub(t.heldLocked(currency))
	if order.held().GreaterThan(available) {
		return "", newError(t.venue, op, ErrOrderRejected,
			errors.Errorf("insufficient %s balance: need %s, available %s", currency, order.held(), available))
	}

	id := domain.OrderID(strconv.FormatUint(t.nextID, 10))
	t.nextID++
	t.orders[id] = order
	if err := t.persistLocked(); err != nil {
		delete(t.orders, id)
		return "", newError(t.venue, op, ErrOrderRejected, err)
	}
	return id, nil
}

// CheckOrder fills crossed orders first. Unknown ids are not live.
func (t *SimulateTrader) CheckOrder(ctx context.Context, id domain.OrderID) (bool, error) {
	if err := t.match(ctx); err != nil {
		return false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, open := t.orders[id]
	return open, nil
}

func (t *SimulateTrader) CancelOrder(ctx context.Context, id domain.OrderID) error {
	return t.cancel(ctx, id, func(ctx context.Context) (bool, error) {
		t.mu.Lock()
		defer t.mu.Unlock()

		order, open := t.orders[id]
		if !open {
			return false, nil
		}
		delete(t.orders, id)
		if err := t.persistLocked(); err != nil {
			t.orders[id] = order
			return false, newError(t.venue, "cancel order", ErrRequestRejected, err)
		}
		return true, nil
	})
}

func (t *SimulateTrader) GetTrades(ctx context.Context, since *time.Time, descending bool) ([]domain.Trade, error) {
	return t.market.GetTrades(ctx, since, descending)
}

// match fills every resting order the current market ticker crosses.
func (t *SimulateTrader) match(ctx context.Context) error {
	t.mu.Lock()
	pending := len(t.orders)
	t.mu.Unlock()
	if pending == 0 {
		return nil
	}

	tick, err := t.market.GetTicker(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	var filled []domain.OrderEvent
	for id, order := range t.orders {
		if !crosses(order, tick) {
			continue
		}
		t.fillLocked(order)
		delete(t.orders, id)
		filled = append(filled, domain.OrderEvent{
			Type:    domain.OrderEventFilled,
			OrderID: id,
			Side:    order.side,
			Amount:  order.amount,
			Price:   order.price,
		})
	}
	var persistErr error
	if len(filled) > 0 {
		persistErr = t.persistLocked()
	}
	t.mu.Unlock()

	for _, event := range filled {
		t.logger.Info("paper order filled",
			zap.String("order_id", event.OrderID.String()),
			zap.String("side", event.Side.String()),
			zap.String("amount", event.Amount.String()),
			zap.String("price", event.Price.String()))
		t.record(event)
	}
	return persistErr
}

func crosses(order paperOrder, tick domain.Ticker) bool {
	if order.side == domain.SideBuy {
		return tick.Ask.IsPositive() && tick.Ask.LessThanOrEqual(order.price)
	}
	return tick.Bid.IsPositive() && tick.Bid.GreaterThanOrEqual(order.price)
}

// fillLocked settles a fill at the limit price; the fee is taken from what is received.
func (t *SimulateTrader) fillLocked(order paperOrder) {
	keep := decimal.NewFromInt(1).Sub(t.fee)
	quote := order.amount.Mul(order.price)
	if order.side == domain.SideBuy {
		t.wallet[t.pair.To] = t.wallet[t.pair.To].Sub(quote)
		t.wallet[t.pair.From] = t.wallet[t.pair.From].Add(order.amount.Mul(keep))
		return
	}
	t.wallet[t.pair.From] = t.wallet[t.pair.From].Sub(order.amount)
	t.wallet[t.pair.To] = t.wallet[t.pair.To].Add(quote.Mul(keep))
}

func (t *SimulateTrader) heldLocked(currency string) decimal.Decimal {
	held := decimal.Zero
	for _, order := range t.orders {
		if (order.side == domain.SideBuy && currency == t.pair.To) || (order.side == domain.SideSell && currency == t.pair.From) {
			held = held.Add(order.held())
		}
	}
	return held
}

func (t *SimulateTrader) persistLocked() error {
	if t.store == nil {
		return nil
	}
	state := simstate.State{
		Pair:   t.pair.String(),
		Wallet: make(map[string]string, len(t.wallet)),
		Orders: make(map[string]simstate.StoredOrder, len(t.orders)),
		NextID: t.nextID,
	}
	for currency, amount := range t.wallet {
		state.Wallet[currency] = amount.String()
	}
	for id, order := range t.orders {
		state.Orders[id.String()] = simstate.NewStoredOrder(order.side, order.amount, order.price, order.placed)
	}
	return t.store.Save(state)
}

func (t *SimulateTrader) restoreState() error {
	if t.store == nil {
		return nil
	}
	state, err := t.store.Load()
	if err != nil || state == nil {
		return err
	}
	if state.Pair != "" && state.Pair != t.pair.String() {
		return errors.Errorf("state belongs to pair %s", state.Pair)
	}

	wallet := make(map[string]decimal.Decimal, len(state.Wallet))
	for currency, raw := range state.Wallet {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return errors.Wrapf(err, "decode %s balance", currency)
		}
		wallet[currency] = amount
	}
	orders := make(map[domain.OrderID]paperOrder, len(state.Orders))
	for id, stored := range state.Orders {
		amount, price, err := stored.Decode()
		if err != nil {
			return errors.Wrapf(err, "order %s", id)
		}
		orders[domain.OrderID(id)] = paperOrder{side: stored.Side, amount: amount, price: price, placed: stored.Placed}
	}

	t.wallet = wallet
	t.orders = orders
	if state.NextID > t.nextID {
		t.nextID = state.NextID
	}
	return nil
}
