// Package trader maps the bot's venue-neutral trading operations onto concrete
// exchanges. Every adapter implements Trader and routes its calls through the
// shared base, so order submission, cancellation and trade-history retries
// behave the same on every venue.
package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bfxgate/internal/domain"
	"github.com/vadiminshakov/bfxgate/pkg/retrier"
	"go.uber.org/zap"
)

// Trader normalized trading interface of one venue and one pair.
type Trader interface {
	// GetPortfolio returns the available balance of every currency held in the trading account.
	GetPortfolio(ctx context.Context) ([]domain.PortfolioEntry, error)
	// GetTicker returns the best bid and ask of the adapter's pair.
	GetTicker(ctx context.Context) (domain.Ticker, error)
	// GetFee returns the maker fee fraction. It never touches the network.
	GetFee() decimal.Decimal
	// Buy places a limit buy order and returns the venue order id.
	Buy(ctx context.Context, amount, price decimal.Decimal) (domain.OrderID, error)
	// Sell places a limit sell order and returns the venue order id.
	Sell(ctx context.Context, amount, price decimal.Decimal) (domain.OrderID, error)
	// CheckOrder reports whether the order is still open.
	CheckOrder(ctx context.Context, id domain.OrderID) (bool, error)
	// CancelOrder requests cancellation. Failures are logged; they are returned
	// only when the adapter runs with strict cancel enabled.
	CancelOrder(ctx context.Context, id domain.OrderID) error
	// GetTrades returns recent public trades, newest first when descending is set.
	// Transport failures are retried until success or ctx is done.
	GetTrades(ctx context.Context, since *time.Time, descending bool) ([]domain.Trade, error)
}

// OrderJournal receives order lifecycle events.
type OrderJournal interface {
	Record(event domain.OrderEvent) error
}

const (
	// DefaultMakerFee 0.1% maker fee; volume discounts are not taken into account.
	DefaultMakerFee = "0.001"
	// AmountPrecision decimal places kept when an order amount is sent to a venue.
	AmountPrecision = 8
)

// Option configures an adapter.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	fee          decimal.Decimal
	retryOpts    []retrier.Option
	journal      OrderJournal
	strictCancel bool
	tradesLimit  int
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMakerFee overrides the maker fee fraction.
func WithMakerFee(fee decimal.Decimal) Option {
	return func(o *options) {
		o.fee = fee
	}
}

// WithRetryPolicy tunes the trade-history retrier. The defaults are a fixed
// 10s delay and no attempt cap.
func WithRetryPolicy(opts ...retrier.Option) Option {
	return func(o *options) {
		o.retryOpts = append(o.retryOpts, opts...)
	}
}

// WithJournal records order lifecycle events.
func WithJournal(j OrderJournal) Option {
	return func(o *options) {
		o.journal = j
	}
}

// WithStrictCancel makes CancelOrder return ErrCancelFailed instead of only logging it.
func WithStrictCancel(strict bool) Option {
	return func(o *options) {
		o.strictCancel = strict
	}
}

// WithTradesLimit caps the number of trades requested per call. Zero keeps the venue default.
func WithTradesLimit(n int) Option {
	return func(o *options) {
		o.tradesLimit = n
	}
}

// base holds the state and procedures every venue adapter shares.
type base struct {
	venue        string
	pair         domain.Pair
	fee          decimal.Decimal
	logger       *zap.Logger
	retrier      *retrier.Retrier
	journal      OrderJournal
	strictCancel bool
	tradesLimit  int
}

func newBase(venue string, pair domain.Pair, opts []Option) base {
	o := options{
		logger: zap.NewNop(),
		fee:    decimal.RequireFromString(DefaultMakerFee),
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.With(zap.String("venue", venue), zap.String("pair", pair.String()))

	retryOpts := []retrier.Option{
		retrier.WithRetryIf(IsRetryable),
		retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			logger.Debug(venue+" returned an error, retrying..",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	}
	retryOpts = append(retryOpts, o.retryOpts...)

	return base{
		venue:        venue,
		pair:         pair,
		fee:          o.fee,
		logger:       logger,
		retrier:      retrier.New(retryOpts...),
		journal:      o.journal,
		strictCancel: o.strictCancel,
		tradesLimit:  o.tradesLimit,
	}
}

// GetFee returns the maker fee fraction.
func (b *base) GetFee() decimal.Decimal {
	return b.fee
}

// placeFunc sends one limit order with venue-formatted amount and price.
type placeFunc func(ctx context.Context, side domain.Side, amount, price string) (domain.OrderID, error)

// FormatAmount truncates amount toward zero to AmountPrecision places. It never rounds up.
func FormatAmount(amount decimal.Decimal) string {
	return amount.Truncate(AmountPrecision).String()
}

// FormatPrice renders price canonically.
func FormatPrice(price decimal.Decimal) string {
	return price.String()
}

// submit is the order-submission procedure shared by Buy and Sell.
func (b *base) submit(ctx context.Context, side domain.Side, amount, price decimal.Decimal, place placeFunc) (domain.OrderID, error) {
	op := "submit " + side.String() + " order"

	if !amount.IsPositive() || !price.IsPositive() {
		err := newError(b.venue, op, ErrInvalidOrder,
			fmt.Errorf("amount and price must be positive, got amount %s price %s", amount, price))
		b.logger.Error("unable to "+side.String(), zap.Error(err))
		return "", err
	}
	truncated := amount.Truncate(AmountPrecision)
	if truncated.IsZero() {
		err := newError(b.venue, op, ErrInvalidOrder,
			fmt.Errorf("amount %s is zero at %d decimal places", amount, AmountPrecision))
		b.logger.Error("unable to "+side.String(), zap.Error(err))
		return "", err
	}

	id, err := place(ctx, side, FormatAmount(amount), FormatPrice(price))
	if err != nil {
		b.logger.Error("unable to "+side.String(),
			zap.String("amount", truncated.String()),
			zap.String("price", price.String()),
			zap.Error(err))
		b.record(domain.OrderEvent{Type: domain.OrderEventRejected, Side: side, Amount: truncated, Price: price, Error: err.Error()})
		return "", err
	}

	b.logger.Info("order submitted",
		zap.String("order_id", id.String()),
		zap.String("side", side.String()),
		zap.String("amount", truncated.String()),
		zap.String("price", price.String()))
	b.record(domain.OrderEvent{Type: domain.OrderEventSubmitted, OrderID: id, Side: side, Amount: truncated, Price: price})

	return id, nil
}

// cancelFunc asks the venue to cancel and reports whether it confirmed.
type cancelFunc func(ctx context.Context) (bool, error)

// cancel is the fire-and-forget cancellation procedure.
func (b *base) cancel(ctx context.Context, id domain.OrderID, do cancelFunc) error {
	b.record(domain.OrderEvent{Type: domain.OrderEventCancelRequested, OrderID: id})

	cancelled, err := do(ctx)
	if err == nil && cancelled {
		b.logger.Info("order cancelled", zap.String("order_id", id.String()))
		return nil
	}

	reason := "venue did not confirm cancellation"
	if err != nil {
		reason = err.Error()
	}
	b.logger.Warn("unable to cancel order",
		zap.String("order_id", id.String()),
		zap.Bool("cancelled", cancelled),
		zap.Error(err))
	b.record(domain.OrderEvent{Type: domain.OrderEventCancelFailed, OrderID: id, Error: reason})

	if !b.strictCancel {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("order %s: %s", id, reason)
	}
	return &Error{Venue: b.venue, Op: "cancel order", Kind: ErrCancelFailed, Err: err}
}

// fetchFunc fetches trades newest first.
type fetchFunc func(ctx context.Context) ([]domain.Trade, error)

// trades runs fetch through the retrier, then applies the since filter and the requested order.
func (b *base) trades(ctx context.Context, since *time.Time, descending bool, fetch fetchFunc) ([]domain.Trade, error) {
	trades, err := retrier.DoWithData(b.retrier, ctx, fetch)
	if err != nil {
		b.logger.Error("unable to get trades", zap.Error(err))
		return nil, err
	}

	trades = domain.TradesSince(trades, since)
	if descending {
		return trades, nil
	}
	return domain.ReverseTrades(trades), nil
}

func (b *base) record(event domain.OrderEvent) {
	if b.journal == nil {
		return
	}
	event.ID = uuid.New().String()
	event.Venue = b.venue
	event.Pair = b.pair.String()
	event.Time = time.Now().UTC()
	if err := b.journal.Record(event); err != nil {
		b.logger.Warn("failed to record order event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func (b *base) malformed(op string, err error) error {
	return &Error{Venue: b.venue, Op: op, Kind: ErrMalformedResponse, Err: err}
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, fmt.Errorf("field %q is missing", field)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("field %q: %w", field, err)
	}
	return d, nil
}
