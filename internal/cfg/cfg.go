package cfg

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// Config holds the application flags. It follows the common
// cfg.Registerable and cfg.Validatable pattern of the go-core packages.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	TelegramToken  string
	TelegramAPIURL string
	LongPollSeconds int

	WBAPIURL              string
	PollIntervalSeconds   int
	FirstPollDelaySeconds int
	MaxCabinets           int
	RearmOnStart          bool

	DataFile    string
	DatabaseURL string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 5, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 30, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "status API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token for /api/v1 (empty = no auth)")
	fs.StringVar(&c.TelegramToken, "telegram-token", "", "Telegram bot token (required)")
	fs.StringVar(&c.TelegramAPIURL, "telegram-api-url", "https://api.telegram.org", "Telegram Bot API base URL")
	fs.IntVar(&c.LongPollSeconds, "long-poll-seconds", 30, "getUpdates long-poll timeout (1..50)")
	fs.StringVar(&c.WBAPIURL, "wb-api-url", "https://advert-api.wildberries.ru", "Wildberries advert API base URL")
	fs.IntVar(&c.PollIntervalSeconds, "poll-interval-seconds", 60, "seconds between status polls of a tracked cabinet")
	fs.IntVar(&c.FirstPollDelaySeconds, "first-poll-delay-seconds", 5, "seconds before the first poll after tracking is enabled")
	fs.IntVar(&c.MaxCabinets, "max-cabinets", 3, "maximum cabinets per owner")
	fs.BoolVar(&c.RearmOnStart, "rearm-on-start", true, "restart polling for cabinets that were tracked before a restart (false = clear their flags)")
	fs.StringVar(&c.DataFile, "data-file", "data.json", "JSON file for owner records when no database is configured")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = JSON data file)")
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// FirstPollDelay returns the first poll delay as a duration.
func (c *Config) FirstPollDelay() time.Duration {
	return time.Duration(c.FirstPollDelaySeconds) * time.Second
}

// LongPoll returns the getUpdates timeout as a duration.
func (c *Config) LongPoll() time.Duration {
	return time.Duration(c.LongPollSeconds) * time.Second
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// the bot cannot run without its token
	if c.TelegramToken == "" {
		errs = append(errs, errors.New("TELEGRAM_TOKEN is required"))
	}
	if c.TelegramAPIURL == "" {
		errs = append(errs, errors.New("TELEGRAM_API_URL is required"))
	}
	if c.LongPollSeconds <= 0 || c.LongPollSeconds > 50 {
		errs = append(errs, fmt.Errorf("invalid LONG_POLL_SECONDS %d (must be 1..50)", c.LongPollSeconds))
	}

	if c.WBAPIURL == "" {
		errs = append(errs, errors.New("WB_API_URL is required"))
	}
	if c.PollIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("invalid POLL_INTERVAL_SECONDS %d (must be > 0)", c.PollIntervalSeconds))
	}
	if c.FirstPollDelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("invalid FIRST_POLL_DELAY_SECONDS %d (must be >= 0)", c.FirstPollDelaySeconds))
	}
	if c.MaxCabinets <= 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_CABINETS %d (must be > 0)", c.MaxCabinets))
	}

	if c.DatabaseURL == "" && c.DataFile == "" {
		errs = append(errs, errors.New("one of DATA_FILE or DATABASE_URL is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
