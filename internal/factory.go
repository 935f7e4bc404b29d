package internal

import (
	"fmt"

	binance "github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/bfxgate/config"
	"github.com/vadiminshakov/bfxgate/internal/clients"
	"github.com/vadiminshakov/bfxgate/internal/domain"
	"github.com/vadiminshakov/bfxgate/internal/services/trader"
	"github.com/vadiminshakov/bfxgate/internal/storage/orderjournal"
	"github.com/vadiminshakov/bfxgate/internal/storage/simstate"
)

// NewClient creates the venue client for conf.Platform.
func NewClient(conf config.Config) (any, error) {
	switch conf.Platform {
	case config.PlatformBitfinex:
		var opts []clients.BitfinexOption
		if conf.BaseURL != "" {
			opts = append(opts, clients.WithBitfinexBaseURL(conf.BaseURL))
		}
		return clients.NewBitfinexClient(conf.Credentials, opts...), nil
	case config.PlatformBinance:
		return clients.NewBinanceClient(conf.Credentials, conf.BaseURL), nil
	case config.PlatformBybit:
		return clients.NewBybitClient(conf.Credentials, conf.BaseURL), nil
	case config.PlatformHyperliquid:
		return clients.NewHyperliquidClient(conf.Credentials, conf.BaseURL)
	case config.PlatformSimulate:
		// paper trading reads the market of a real venue without keys
		market := conf
		market.Platform = conf.Simulate.Venue
		market.Credentials = nil
		return NewClient(market)
	default:
		return nil, fmt.Errorf("unsupported platform: %s", conf.Platform)
	}
}

// NewTrader creates the adapter matching the client type.
// This is the single point of truth for dispatching to venue-specific implementations.
func NewTrader(client any, pair domain.Pair, opts ...trader.Option) (trader.Trader, error) {
	switch c := client.(type) {
	case trader.BitfinexAPI:
		return trader.NewBitfinexTrader(c, pair, opts...)
	case *binance.Client:
		return trader.NewBinanceTrader(c, pair, opts...)
	case *bybit.Client:
		return trader.NewBybitTrader(c, pair, opts...)
	case trader.HyperliquidAPI:
		return trader.NewHyperliquidTrader(c, pair, opts...)
	default:
		return nil, fmt.Errorf("unsupported client type: %T", client)
	}
}

// Adapter a configured trader together with the resources it owns.
type Adapter struct {
	Trader  trader.Trader
	Config  config.Config
	journal *orderjournal.WALStore
}

// NewAdapter builds the client, the optional order journal and the trader for conf.
func NewAdapter(conf config.Config, logger *zap.Logger) (*Adapter, error) {
	client, err := NewClient(conf)
	if err != nil {
		return nil, err
	}
	return newAdapter(conf, client, logger)
}

func newAdapter(conf config.Config, client any, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []trader.Option{
		trader.WithLogger(logger),
		trader.WithMakerFee(conf.MakerFee),
		trader.WithStrictCancel(conf.StrictCancel),
		trader.WithTradesLimit(conf.TradesLimit),
		trader.WithRetryPolicy(conf.Retry.Options()...),
	}

	var journal *orderjournal.WALStore
	if conf.JournalDir != "" {
		var err error
		journal, err = orderjournal.NewWALStore(conf.JournalDir)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open order journal")
		}
	}

	t, err := buildTrader(conf, client, journal, opts)
	if err != nil {
		if journal != nil {
			_ = journal.Close()
		}
		return nil, errors.Wrap(err, "failed to create trader")
	}

	return &Adapter{Trader: t, Config: conf, journal: journal}, nil
}

// buildTrader creates the trader for conf. For the simulate platform client
// serves market data and the journal records paper orders only.
func buildTrader(conf config.Config, client any, journal *orderjournal.WALStore, opts []trader.Option) (trader.Trader, error) {
	withJournal := opts
	if journal != nil {
		withJournal = append(opts[:len(opts):len(opts)], trader.WithJournal(journal))
	}

	if conf.Platform != config.PlatformSimulate {
		return NewTrader(client, conf.Pair, withJournal...)
	}

	market, err := NewTrader(client, conf.Pair, opts...)
	if err != nil {
		return nil, err
	}
	store, err := simstate.NewStore(conf.Simulate.StateDir, conf.Simulate.Venue, conf.Pair)
	if err != nil {
		return nil, err
	}
	return trader.NewSimulateTrader(market, store, conf.Pair, conf.Simulate.Balance, withJournal...)
}

// HasPrivateAccess reports whether portfolio and order calls can succeed.
func (a *Adapter) HasPrivateAccess() bool {
	return a.Config.Platform == config.PlatformSimulate || a.Config.Credentials.Valid()
}

// Journal returns the order journal, nil when journaling is disabled.
func (a *Adapter) Journal() *orderjournal.WALStore {
	return a.journal
}

// OrderHistory returns the journaled events of one order on the adapter's venue.
func (a *Adapter) OrderHistory(id domain.OrderID) ([]domain.OrderEvent, error) {
	if a.journal == nil {
		return nil, errors.Errorf("order journal is disabled for %s", a.Config.Platform)
	}
	return a.journal.History(a.Config.Platform, id)
}

// Close releases the order journal.
func (a *Adapter) Close() error {
	if a.journal == nil {
		return nil
	}
	return a.journal.Close()
}
