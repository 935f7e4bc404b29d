// Command bfxgate runs venue probes over the normalized trading adapters
// (Bitfinex, Binance, Bybit, Hyperliquid and a paper trading venue). It can be configured via a YAML configuration
// file, command-line arguments or the interactive setup wizard.
//
// Usage:
//
//	bfxgate --config config.yaml
//	bfxgate --setup
//	bfxgate --platform bitfinex --pair BTC_USD (uses CLI arguments)
//	bfxgate --config config.yaml --history 42 (prints the journaled events of order 42)
//
// Credentials are optional and read from the environment:
//
//	For Bitfinex: BITFINEX_API_KEY, BITFINEX_API_SECRET
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
//	For Hyperliquid: HYPERLIQUID_ACCOUNT_ADDRESS, HYPERLIQUID_PRIVATE_KEY
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/bfxgate/config"
	"github.com/vadiminshakov/bfxgate/internal"
	"github.com/vadiminshakov/bfxgate/internal/domain"
	"github.com/vadiminshakov/bfxgate/internal/setup"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	if flags.Setup {
		path, err := setup.RunTUI()
		if err != nil {
			logger.Fatal("setup failed", zap.Error(err))
		}
		flags.ConfigPath = path
	}

	configs, err := flags.Load(os.Getenv)
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	if flags.History != "" {
		printHistory(configs, domain.OrderID(flags.History), logger)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for _, conf := range configs {
		adapter, err := internal.NewAdapter(conf, logger)
		if err != nil {
			logger.Fatal("failed to create adapter",
				zap.String("platform", conf.Platform),
				zap.String("pair", conf.Pair.String()),
				zap.Error(err))
		}
		defer adapter.Close()

		if !adapter.HasPrivateAccess() {
			logger.Warn("credentials are not set, private calls are disabled",
				zap.String("platform", conf.Platform))
		}

		probe := internal.NewProbe(adapter, logger)
		g.Go(func() error {
			return probe.Run(ctx)
		})
		logger.Info("started", zap.String("platform", conf.Platform), zap.String("pair", conf.Pair.String()))
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("probe stopped", zap.Error(err))
	}
	logger.Info("shutting down")
}

func printHistory(configs []config.Config, id domain.OrderID, logger *zap.Logger) {
	for _, conf := range configs {
		adapter, err := internal.NewAdapter(conf, logger)
		if err != nil {
			logger.Fatal("failed to create adapter", zap.String("platform", conf.Platform), zap.Error(err))
		}

		events, err := adapter.OrderHistory(id)
		_ = adapter.Close()
		if err != nil {
			logger.Error("failed to read order history", zap.String("platform", conf.Platform), zap.Error(err))
			continue
		}

		logger.Info("order history",
			zap.String("platform", conf.Platform),
			zap.String("order_id", id.String()),
			zap.Int("events", len(events)))
		for _, e := range events {
			logger.Info(e.String(),
				zap.Time("time", e.Time),
				zap.String("side", e.Side.String()),
				zap.String("amount", e.Amount.String()),
				zap.String("price", e.Price.String()),
				zap.String("error", e.Error))
		}
	}
}
