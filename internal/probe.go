package internal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/bfxgate/internal/domain"
	"github.com/vadiminshakov/bfxgate/internal/services/trader"
	"github.com/vadiminshakov/bfxgate/internal/storage/orderjournal"
)

// journalReader read side of the order journal.
type journalReader interface {
	EventsAfter(index uint64) ([]orderjournal.Entry, error)
	CurrentIndex() uint64
}

// Probe periodically exercises the read side of one adapter and logs what it sees.
type Probe struct {
	trader   trader.Trader
	interval time.Duration
	private  bool
	logger   *zap.Logger
	// lastTrade time of the newest trade already reported.
	lastTrade *time.Time
	// journal is nil when journaling is disabled.
	journal      journalReader
	journalIndex uint64
}

// NewProbe creates a probe over the adapter's trader. Portfolio polling is
// skipped when the adapter has no credentials.
func NewProbe(a *Adapter, logger *zap.Logger) *Probe {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Probe{
		trader:   a.Trader,
		interval: a.Config.PollInterval,
		private:  a.HasPrivateAccess(),
		logger: logger.With(
			zap.String("platform", a.Config.Platform),
			zap.String("pair", a.Config.Pair.String())),
	}
	// only events written while the probe runs are reported
	if j := a.Journal(); j != nil {
		p.journal = j
		p.journalIndex = j.CurrentIndex()
	}
	return p
}

// Run probes once immediately and then every interval until ctx is done.
func (p *Probe) Run(ctx context.Context) error {
	if p.interval <= 0 {
		return errors.Errorf("invalid poll interval %s", p.interval)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Starting venue probe",
		zap.Duration("poll_interval", p.interval),
		zap.String("maker_fee", p.trader.GetFee().String()))

	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Context done, stopping venue probe.")
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs a single probe round. Failures are logged, never returned.
func (p *Probe) Tick(ctx context.Context) {
	tick, err := p.trader.GetTicker(ctx)
	if err != nil {
		p.logger.Error("Failed to get ticker", zap.Error(err))
	} else {
		p.logger.Info("Ticker",
			zap.String("bid", tick.Bid.String()),
			zap.String("ask", tick.Ask.String()),
			zap.String("spread", tick.Spread().String()))
	}

	if p.private {
		portfolio, err := p.trader.GetPortfolio(ctx)
		if err != nil {
			p.logger.Error("Failed to get portfolio", zap.Error(err))
		} else {
			for _, entry := range portfolio {
				p.logger.Info("Balance", zap.String("currency", entry.Name), zap.String("available", entry.Amount.String()))
			}
		}
	}

	p.reportJournal()

	trades, err := p.trader.GetTrades(ctx, p.lastTrade, false)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Error("Failed to get trades", zap.Error(err))
		}
		return
	}
	p.reportTrades(trades)
}

// reportTrades logs trades newer than the last reported one; trades are oldest first.
func (p *Probe) reportTrades(trades []domain.Trade) {
	fresh := 0
	for _, tr := range trades {
		if p.lastTrade != nil && !tr.Date.After(*p.lastTrade) {
			continue
		}
		fresh++
		p.logger.Debug("Trade", zap.Time("date", tr.Date), zap.String("price", tr.Price.String()), zap.String("amount", tr.Amount.String()))
	}
	if len(trades) > 0 {
		newest := trades[len(trades)-1].Date
		if p.lastTrade == nil || newest.After(*p.lastTrade) {
			p.lastTrade = &newest
		}
	}
	p.logger.Info("Trades polled", zap.Int("received", len(trades)), zap.Int("new", fresh))
}

// reportJournal logs order events journaled since the previous round.
func (p *Probe) reportJournal() {
	if p.journal == nil {
		return
	}
	entries, err := p.journal.EventsAfter(p.journalIndex)
	if err != nil {
		p.logger.Error("Failed to read order journal", zap.Error(err))
		return
	}
	for _, entry := range entries {
		e := entry.Event
		p.logger.Info("Order event",
			zap.Uint64("index", entry.Index),
			zap.String("type", string(e.Type)),
			zap.String("order_id", e.OrderID.String()),
			zap.String("side", e.Side.String()),
			zap.String("amount", e.Amount.String()),
			zap.String("price", e.Price.String()),
			zap.String("error", e.Error))
		p.journalIndex = entry.Index
	}
}
