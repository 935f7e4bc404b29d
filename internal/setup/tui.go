package setup

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/bfxgate/config"
	"github.com/vadiminshakov/bfxgate/internal/domain"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile file written by the wizard.
const DefaultConfigFile = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// answers raw wizard input.
type answers struct {
	platform      string
	pair          string
	makerFee      string
	pollInterval  string
	tradesLimit   string
	strictCancel  bool
	journalDir    string
	retryInterval string
	maxRetries    string
	simVenue      string
	simBalance    string
}

func defaultAnswers() answers {
	return answers{
		platform:      config.PlatformBitfinex,
		pair:          config.DefaultPair,
		makerFee:      config.DefaultMakerFee,
		pollInterval:  config.DefaultPollInterval.String(),
		tradesLimit:   "0",
		journalDir:    "./wal/orders",
		retryInterval: "10s",
		maxRetries:    "-1",
		simVenue:      config.PlatformBitfinex,
		simBalance:    config.DefaultSimulateBalance,
	}
}

func screen(step string) {
	fmt.Print("\033[H\033[2J") // clear screen
	fmt.Println(headerStyle.Render("BFXGATE CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and returns the path of the written config.
func RunTUI() (string, error) {
	a := defaultAnswers()
	var confirm bool

	screen("STEP 1: VENUE")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("API keys are read from <VENUE>_API_KEY and <VENUE>_API_SECRET.\n" +
		"Hyperliquid uses HYPERLIQUID_ACCOUNT_ADDRESS and HYPERLIQUID_PRIVATE_KEY.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Exchange Platform").
				Options(
					huh.NewOption("Bitfinex", config.PlatformBitfinex),
					huh.NewOption("Binance", config.PlatformBinance),
					huh.NewOption("Bybit", config.PlatformBybit),
					huh.NewOption("Hyperliquid", config.PlatformHyperliquid),
					huh.NewOption("Simulate (paper trading)", config.PlatformSimulate),
				).
				Value(&a.platform),
			huh.NewInput().
				Title("Trading Pair").
				Description("BASE_QUOTE (e.g. BTC_USD)").
				Value(&a.pair).
				Validate(validatePair),
		),
	).Run()
	if err != nil {
		return "", err
	}

	if a.platform == config.PlatformSimulate {
		screen("STEP 1b: PAPER TRADING")
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("Market data venue").
					Options(
						huh.NewOption("Bitfinex", config.PlatformBitfinex),
						huh.NewOption("Binance", config.PlatformBinance),
						huh.NewOption("Bybit", config.PlatformBybit),
						huh.NewOption("Hyperliquid", config.PlatformHyperliquid),
					).
					Value(&a.simVenue),
				huh.NewInput().
					Title("Starting quote balance").
					Value(&a.simBalance).
					Validate(validateBalance),
			),
		).Run()
		if err != nil {
			return "", err
		}
	}

	screen("STEP 2: ORDERS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Maker Fee").
				Description("Fraction, 0.001 means 0.1%").
				Value(&a.makerFee).
				Validate(validateFee),
			huh.NewConfirm().
				Title("Strict cancel?").
				Description("Return cancel failures to the caller instead of only logging them").
				Value(&a.strictCancel),
			huh.NewInput().
				Title("Order Journal Directory").
				Description("Leave empty to disable journaling").
				Value(&a.journalDir),
		),
	).Run()
	if err != nil {
		return "", err
	}

	screen("STEP 3: TIMING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Poll Interval").
				Description("Duration string (e.g. 30s, 1m, 5m)").
				Value(&a.pollInterval).
				Validate(validatePositiveDuration),
			huh.NewInput().
				Title("Trades per request").
				Description("0 keeps the venue default").
				Value(&a.tradesLimit).
				Validate(validateTradesLimit),
			huh.NewInput().
				Title("Trade history retry delay").
				Value(&a.retryInterval).
				Validate(validatePositiveDuration),
			huh.NewInput().
				Title("Max retries").
				Description("-1 retries until the venue answers").
				Value(&a.maxRetries).
				Validate(validateMaxRetries),
		),
	).Run()
	if err != nil {
		return "", err
	}

	screen("FINAL CONFIRMATION")
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(a.summary()))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return "", err
	}
	if !confirm {
		return "", errors.New("setup cancelled by user")
	}

	if err := writeConfig(DefaultConfigFile, a); err != nil {
		return "", err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", DefaultConfigFile)))
	return DefaultConfigFile, nil
}

func (a answers) summary() string {
	return fmt.Sprintf(
		"Platform: %s\nPair: %s\nMaker fee: %s\nStrict cancel: %t\nJournal: %s\nInterval: %s\n",
		a.platform, a.pair, a.makerFee, a.strictCancel, a.journalDir, a.pollInterval,
	)
}

// toConfig converts validated answers into the YAML config entry.
func (a answers) toConfig() (config.ConfigTmp, error) {
	pollInterval, err := time.ParseDuration(a.pollInterval)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "poll interval")
	}
	retryInterval, err := time.ParseDuration(a.retryInterval)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "retry interval")
	}
	tradesLimit, err := strconv.Atoi(a.tradesLimit)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "trades limit")
	}
	maxRetries, err := strconv.Atoi(a.maxRetries)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "max retries")
	}

	var simulate config.SimulateTmp
	if a.platform == config.PlatformSimulate {
		simulate = config.SimulateTmp{Venue: a.simVenue, Balance: a.simBalance}
	}

	return config.ConfigTmp{
		Platform:     a.platform,
		Pair:         a.pair,
		MakerFee:     a.makerFee,
		StrictCancel: a.strictCancel,
		JournalDir:   a.journalDir,
		PollInterval: pollInterval,
		TradesLimit:  tradesLimit,
		Retry: config.RetryTmp{
			Interval:   retryInterval,
			MaxRetries: &maxRetries,
		},
		Simulate: simulate,
	}, nil
}

func writeConfig(path string, a answers) error {
	cfgTmp, err := a.toConfig()
	if err != nil {
		return err
	}
	// validate with the same rules the loader applies
	if _, err := cfgTmp.Parse(nil); err != nil {
		return err
	}

	data, err := yaml.Marshal([]config.ConfigTmp{cfgTmp})
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func validatePair(s string) error {
	if s == "" {
		return errors.New("pair cannot be empty")
	}
	_, err := domain.ParsePair(s)
	return err
}

func validateFee(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return errors.New("must be a valid number")
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("must be between 0 and 1")
	}
	return nil
}

func validateBalance(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return errors.New("must be a valid number")
	}
	if !d.IsPositive() {
		return errors.New("must be positive")
	}
	return nil
}

func validatePositiveDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

func validateTradesLimit(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("must be an integer")
	}
	if n < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

func validateMaxRetries(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("must be an integer")
	}
	if n < -1 {
		return errors.New("must be -1 or more")
	}
	return nil
}
