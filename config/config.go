// Package config loads gateway configuration from a YAML file or from command
// line flags. API credentials are never stored in the file; they come from the
// environment.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bfxgate/internal/domain"
	"github.com/vadiminshakov/bfxgate/pkg/retrier"
	"gopkg.in/yaml.v3"
)

const (
	PlatformBitfinex = "bitfinex"
	PlatformBinance  = "binance"
	PlatformBybit       = "bybit"
	PlatformHyperliquid = "hyperliquid"
	// PlatformSimulate paper trading against the market data of a real venue.
	PlatformSimulate = "simulate"

	DefaultPair         = "BTC_USD"
	DefaultMakerFee     = "0.001"
	DefaultPollInterval = time.Minute

	DefaultSimulateBalance  = "10000"
	DefaultSimulateStateDir = "./wal/simulate"
)

// Platforms lists the supported venues.
var Platforms = []string{PlatformBitfinex, PlatformBinance, PlatformBybit, PlatformHyperliquid, PlatformSimulate}

type Config struct {
	Platform     string
	Pair         domain.Pair
	MakerFee     decimal.Decimal
	BaseURL      string
	StrictCancel bool
	// JournalDir empty disables the order journal.
	JournalDir   string
	PollInterval time.Duration
	TradesLimit  int
	Retry        RetryConfig
	// Credentials nil means public data only.
	Credentials *domain.Credentials
	// Simulate is used only by the simulate platform.
	Simulate SimulateConfig
}

// SimulateConfig paper trading settings.
type SimulateConfig struct {
	// Venue real platform that supplies tickers and trades.
	Venue string
	// Balance initial quote currency balance.
	Balance  decimal.Decimal
	StateDir string
}

// RetryConfig policy of the trade-history retrier. Zero values keep the retrier defaults.
type RetryConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
	MaxRetries  int
	Multiplier  float64
	Jitter      float64
}

// Options converts the policy into retrier options.
func (r RetryConfig) Options() []retrier.Option {
	opts := []retrier.Option{retrier.WithMaxRetries(r.MaxRetries)}
	if r.Interval > 0 {
		opts = append(opts, retrier.WithInitialInterval(r.Interval))
	}
	if r.MaxInterval > 0 {
		opts = append(opts, retrier.WithMaxInterval(r.MaxInterval))
	}
	if r.Multiplier > 0 {
		opts = append(opts, retrier.WithMultiplier(r.Multiplier))
	}
	if r.Jitter > 0 {
		opts = append(opts, retrier.WithJitter(r.Jitter))
	}
	return opts
}

type ConfigTmp struct {
	Platform     string        `yaml:"platform"`
	Pair         string        `yaml:"pair"`
	MakerFee     string        `yaml:"maker_fee,omitempty"`
	BaseURL      string        `yaml:"base_url,omitempty"`
	StrictCancel bool          `yaml:"strict_cancel,omitempty"`
	JournalDir   string        `yaml:"journal_dir,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	TradesLimit  int           `yaml:"trades_limit,omitempty"`
	Retry        RetryTmp      `yaml:"retry,omitempty"`
	Simulate     SimulateTmp   `yaml:"simulate,omitempty"`
}

type SimulateTmp struct {
	Venue    string `yaml:"venue,omitempty"`
	Balance  string `yaml:"balance,omitempty"`
	StateDir string `yaml:"state_dir,omitempty"`
}

type RetryTmp struct {
	Interval    time.Duration `yaml:"interval,omitempty"`
	MaxInterval time.Duration `yaml:"max_interval,omitempty"`
	// MaxRetries nil means unlimited.
	MaxRetries *int    `yaml:"max_retries,omitempty"`
	Multiplier float64 `yaml:"multiplier,omitempty"`
	Jitter     float64 `yaml:"jitter,omitempty"`
}

// Flags parsed command line.
type Flags struct {
	ConfigPath string
	Setup      bool
	// History order id whose journaled events are printed instead of running probes.
	History string
	cli     ConfigTmp
}

// ParseFlags parses args (without the program name).
func ParseFlags(args []string) (Flags, error) {
	var (
		f          Flags
		makerFee   string
		maxRetries int
	)

	fs := flag.NewFlagSet("bfxgate", flag.ContinueOnError)
	fs.StringVar(&f.ConfigPath, "config", "", "path to yaml config")
	fs.BoolVar(&f.Setup, "setup", false, "run the interactive config wizard")
	fs.StringVar(&f.History, "history", "", "print the journaled events of an order id and exit")
	fs.StringVar(&f.cli.Platform, "platform", PlatformBitfinex, "venue: "+strings.Join(Platforms, ", "))
	fs.StringVar(&f.cli.Pair, "pair", DefaultPair, "trade pair, example: BTC_USD")
	fs.StringVar(&makerFee, "makerfee", DefaultMakerFee, "maker fee fraction, example: 0.001")
	fs.StringVar(&f.cli.BaseURL, "baseurl", "", "override venue REST endpoint")
	fs.BoolVar(&f.cli.StrictCancel, "strictcancel", false, "return cancel failures instead of only logging them")
	fs.StringVar(&f.cli.JournalDir, "journal", "", "order journal directory, empty disables journaling")
	fs.DurationVar(&f.cli.PollInterval, "pollinterval", DefaultPollInterval, "venue probe interval")
	fs.IntVar(&f.cli.TradesLimit, "tradeslimit", 0, "max trades per request, 0 keeps the venue default")
	fs.DurationVar(&f.cli.Retry.Interval, "retryinterval", 0, "trade history retry delay (default 10s)")
	fs.IntVar(&maxRetries, "maxretries", retrier.Unlimited, "trade history retry cap, -1 is unlimited")
	fs.StringVar(&f.cli.Simulate.Venue, "simvenue", "", "market data venue of the simulate platform (default bitfinex)")
	fs.StringVar(&f.cli.Simulate.Balance, "simbalance", "", "initial quote balance of the simulate platform (default "+DefaultSimulateBalance+")")
	fs.StringVar(&f.cli.Simulate.StateDir, "simstate", "", "paper trading state directory (default "+DefaultSimulateStateDir+")")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	f.cli.MakerFee = makerFee
	f.cli.Retry.MaxRetries = &maxRetries

	return f, nil
}

// Load reads the YAML file when one was given, otherwise builds one config from the flags.
func (f Flags) Load(getenv func(string) string) ([]Config, error) {
	if f.ConfigPath != "" {
		return LoadFile(f.ConfigPath, getenv)
	}

	cfg, err := f.cli.Parse(getenv)
	if err != nil {
		return nil, errors.Wrap(err, "invalid command line")
	}
	return []Config{cfg}, nil
}

// Get parses os.Args and loads the configuration.
func Get() ([]Config, error) {
	f, err := ParseFlags(os.Args[1:])
	if err != nil {
		return nil, err
	}
	return f.Load(os.Getenv)
}

// LoadFile reads a YAML list of configs.
func LoadFile(path string, getenv func(string) string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return parseYaml(data, getenv)
}

func parseYaml(data []byte, getenv func(string) string) ([]Config, error) {
	var configsTmp []ConfigTmp
	if err := yaml.Unmarshal(data, &configsTmp); err != nil {
		return nil, errors.Wrap(err, "decode yaml config")
	}
	if len(configsTmp) == 0 {
		return nil, errors.New("yaml config contains no entries")
	}

	configs := make([]Config, 0, len(configsTmp))
	for i, c := range configsTmp {
		cfg, err := c.Parse(getenv)
		if err != nil {
			return nil, errors.Wrapf(err, "config entry %d", i)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Parse validates the raw values and resolves credentials through getenv.
func (c ConfigTmp) Parse(getenv func(string) string) (Config, error) {
	platform := strings.ToLower(strings.TrimSpace(c.Platform))
	if platform == "" {
		platform = PlatformBitfinex
	}
	if !isPlatform(platform) {
		return Config{}, fmt.Errorf("unsupported 'platform' %q, expected one of %s", c.Platform, strings.Join(Platforms, ", "))
	}

	pairStr := c.Pair
	if pairStr == "" {
		pairStr = DefaultPair
	}
	pair, err := domain.ParsePair(pairStr)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'pair' param: %s, error: %w", c.Pair, err)
	}

	feeStr := c.MakerFee
	if feeStr == "" {
		feeStr = DefaultMakerFee
	}
	fee, err := decimal.NewFromString(feeStr)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'maker_fee' param (correct format is 0.001), error: %w", err)
	}
	if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("'maker_fee' must be in [0, 1), got %s", fee)
	}

	pollInterval := c.PollInterval
	if pollInterval == 0 {
		pollInterval = DefaultPollInterval
	}
	if pollInterval < 0 {
		return Config{}, fmt.Errorf("'poll_interval' must be positive, got %s", c.PollInterval)
	}

	if c.TradesLimit < 0 {
		return Config{}, fmt.Errorf("'trades_limit' must not be negative, got %d", c.TradesLimit)
	}

	retry, err := c.Retry.parse()
	if err != nil {
		return Config{}, err
	}

	var simulate SimulateConfig
	if platform == PlatformSimulate {
		simulate, err = c.Simulate.parse()
		if err != nil {
			return Config{}, err
		}
	}

	return Config{
		Platform:     platform,
		Pair:         pair,
		MakerFee:     fee,
		BaseURL:      strings.TrimSpace(c.BaseURL),
		StrictCancel: c.StrictCancel,
		JournalDir:   c.JournalDir,
		PollInterval: pollInterval,
		TradesLimit:  c.TradesLimit,
		Retry:        retry,
		Credentials:  credentialsFromEnv(platform, getenv),
		Simulate:     simulate,
	}, nil
}

func (s SimulateTmp) parse() (SimulateConfig, error) {
	venue := strings.ToLower(strings.TrimSpace(s.Venue))
	if venue == "" {
		venue = PlatformBitfinex
	}
	if venue == PlatformSimulate || !isPlatform(venue) {
		return SimulateConfig{}, fmt.Errorf("unsupported 'simulate.venue' %q", s.Venue)
	}

	balanceStr := s.Balance
	if balanceStr == "" {
		balanceStr = DefaultSimulateBalance
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return SimulateConfig{}, fmt.Errorf("incorrect 'simulate.balance' param: %s, error: %w", s.Balance, err)
	}
	if !balance.IsPositive() {
		return SimulateConfig{}, fmt.Errorf("'simulate.balance' must be positive, got %s", balance)
	}

	stateDir := s.StateDir
	if stateDir == "" {
		stateDir = DefaultSimulateStateDir
	}

	return SimulateConfig{Venue: venue, Balance: balance, StateDir: stateDir}, nil
}

func (r RetryTmp) parse() (RetryConfig, error) {
	cfg := RetryConfig{
		Interval:    r.Interval,
		MaxInterval: r.MaxInterval,
		MaxRetries:  retrier.Unlimited,
		Multiplier:  r.Multiplier,
		Jitter:      r.Jitter,
	}
	if r.MaxRetries != nil {
		cfg.MaxRetries = *r.MaxRetries
	}

	switch {
	case r.Interval < 0 || r.MaxInterval < 0:
		return RetryConfig{}, errors.New("'retry' intervals must not be negative")
	case cfg.MaxRetries < retrier.Unlimited:
		return RetryConfig{}, fmt.Errorf("'retry.max_retries' must be -1 (unlimited) or more, got %d", cfg.MaxRetries)
	case r.Multiplier != 0 && r.Multiplier < 1:
		return RetryConfig{}, fmt.Errorf("'retry.multiplier' must be at least 1, got %v", r.Multiplier)
	case r.Jitter < 0 || r.Jitter > 1:
		return RetryConfig{}, fmt.Errorf("'retry.jitter' must be in [0, 1], got %v", r.Jitter)
	}

	return cfg, nil
}

// EnvKeys returns the environment variable names holding the API key and secret of platform.
// Hyperliquid signs with a wallet: the key is the account address, the secret its private key.
func EnvKeys(platform string) (key, secret string) {
	if platform == PlatformHyperliquid {
		return "HYPERLIQUID_ACCOUNT_ADDRESS", "HYPERLIQUID_PRIVATE_KEY"
	}
	prefix := strings.ToUpper(platform)
	return prefix + "_API_KEY", prefix + "_API_SECRET"
}

func credentialsFromEnv(platform string, getenv func(string) string) *domain.Credentials {
	// paper trading needs no keys
	if getenv == nil || platform == PlatformSimulate {
		return nil
	}
	keyVar, secretVar := EnvKeys(platform)
	creds := &domain.Credentials{Key: getenv(keyVar), Secret: getenv(secretVar)}
	if !creds.Valid() {
		return nil
	}
	return creds
}

func isPlatform(p string) bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}
