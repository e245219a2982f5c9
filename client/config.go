package client

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Default policy values applied by NewConfig / Config.withDefaults.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 3 // total attempts, including the first
	DefaultRetryDelay   = 1 * time.Second
	DefaultMaxRetryWait = 30 * time.Second
	DefaultPollInterval = 1 * time.Second
)

// Config holds the immutable settings of a Client. A Config is snapshotted
// at New() and never mutated afterwards; in-flight requests always observe
// the values the client was built with.
type Config struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`

	// Timeout is the per-request deadline. Each retry attempt gets its own
	// deadline of this length.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the total attempt budget per logical request,
	// including the first attempt.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the base backoff delay. The wait before attempt n
	// (n >= 2) is RetryDelay * 2^(n-2), capped at MaxRetryWait.
	RetryDelay   time.Duration `yaml:"retry_delay"`
	MaxRetryWait time.Duration `yaml:"max_retry_wait"`

	// RateLimit is an optional client-side request budget in requests per
	// second. Zero disables the limiter. The budget is per client
	// instance, never shared.
	RateLimit float64 `yaml:"rate_limit"`

	// OrderPollInterval controls WaitForOrder's polling cadence.
	OrderPollInterval time.Duration `yaml:"order_poll_interval"`

	// CacheTTL enables client-side memoization of idempotent reads
	// (market analysis, AI signals) for the given duration. Zero
	// disables it.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	EnableLogging bool `yaml:"enable_logging"`
}

// NewConfig returns a Config with defaults for everything but the endpoint.
func NewConfig(apiURL string) Config {
	cfg := Config{APIURL: apiURL, EnableLogging: true}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxRetryWait <= 0 {
		c.MaxRetryWait = DefaultMaxRetryWait
	}
	if c.OrderPollInterval <= 0 {
		c.OrderPollInterval = DefaultPollInterval
	}
	return c
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config file")
	}

	// EnableLogging defaults to true; a yaml zero value would silence the
	// client for anyone who omits the key.
	cfg := Config{EnableLogging: true}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config file %s", path)
	}
	if cfg.APIURL == "" {
		return Config{}, errors.New("config: api_url is required")
	}
	return cfg.withDefaults(), nil
}

// ConfigFromEnv builds a Config from GOTRADE_* environment variables,
// loading a .env file first when one is present.
//
//	GOTRADE_API_URL        endpoint base URL (required)
//	GOTRADE_API_KEY        credential (optional)
//	GOTRADE_TIMEOUT        per-request timeout, e.g. "30s"
//	GOTRADE_MAX_RETRIES    total attempts per request
//	GOTRADE_RETRY_DELAY    base backoff delay, e.g. "1s"
//	GOTRADE_CACHE_TTL      read-response cache TTL, e.g. "5s" (off by default)
//	GOTRADE_ENABLE_LOGGING "false" to silence the client
func ConfigFromEnv() (Config, error) {
	_ = godotenv.Load()

	apiURL := os.Getenv("GOTRADE_API_URL")
	if apiURL == "" {
		return Config{}, errors.New("config: GOTRADE_API_URL is not set")
	}

	cfg := NewConfig(apiURL)
	cfg.APIKey = os.Getenv("GOTRADE_API_KEY")

	if v := os.Getenv("GOTRADE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, errors.Wrap(err, "config: GOTRADE_TIMEOUT")
		}
		cfg.Timeout = d
	}
	if v := os.Getenv("GOTRADE_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errors.Wrap(err, "config: GOTRADE_MAX_RETRIES")
		}
		cfg.MaxRetries = n
	}
	if v := os.Getenv("GOTRADE_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, errors.Wrap(err, "config: GOTRADE_RETRY_DELAY")
		}
		cfg.RetryDelay = d
	}
	if v := os.Getenv("GOTRADE_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, errors.Wrap(err, "config: GOTRADE_CACHE_TTL")
		}
		cfg.CacheTTL = d
	}
	if v := os.Getenv("GOTRADE_ENABLE_LOGGING"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, errors.Wrap(err, "config: GOTRADE_ENABLE_LOGGING")
		}
		cfg.EnableLogging = enabled
	}

	return cfg.withDefaults(), nil
}
