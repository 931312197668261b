package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/arcmetric/contactctl/internal/poller"
)

const (
	// EnvConfigPath names the config file when --config is not given.
	EnvConfigPath = "CONTACTCTL_CONFIG"
	// EnvAPIURL overrides backend.base_url.
	EnvAPIURL = "CONTACTCTL_API_URL"
	// EnvPollInterval overrides enrichment.poll_interval.
	EnvPollInterval = "CONTACTCTL_POLL_INTERVAL"
	// EnvMaxAttempts overrides enrichment.max_attempts.
	EnvMaxAttempts = "CONTACTCTL_MAX_ATTEMPTS"
	// EnvSlackWebhook overrides notification.webhook_url.
	EnvSlackWebhook = "CONTACTCTL_SLACK_WEBHOOK_URL"

	// DefaultPath is tried when neither the flag nor the env var is set.
	DefaultPath = "config.yaml"

	defaultBaseURL      = "http://localhost:5000/api/v2"
	defaultTimeout      = 10 * time.Second
	defaultPollInterval = 2 * time.Second
	defaultMaxAttempts  = 45
	defaultMaxRetries   = 2
	defaultBaseDelay    = 500 * time.Millisecond
	defaultRPS          = 5
	defaultBurst        = 5
	defaultMockAddr     = "127.0.0.1:5000"
	defaultMockDBPath   = "contacts.db"
	defaultEnrichDelay  = 6 * time.Second
)

// Config is the root configuration for contactctl.
type Config struct {
	Backend      BackendConfig
	Enrichment   EnrichmentConfig
	Retry        RetryConfig
	RateLimit    RateLimitConfig
	Notification NotificationConfig
	Metrics      MetricsConfig
	MockBackend  MockBackendConfig
}

// BackendConfig locates the contact backend. BaseURL includes any API prefix.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration // per-request HTTP timeout
}

// EnrichmentConfig bounds every poll session.
type EnrichmentConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
}

// RetryConfig controls retries of one-shot reads (show, list, browse).
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// RateLimitConfig caps the request rate to the backend across all callers.
// RequestsPerSecond <= 0 disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// NotificationConfig controls which notifier reports finished enrichments.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "", "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// MockBackendConfig configures the development backend.
type MockBackendConfig struct {
	Addr        string
	DBPath      string
	EnrichDelay time.Duration
	FailureRate float64
}

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Backend      rawBackendConfig     `yaml:"backend"`
	Enrichment   rawEnrichmentConfig  `yaml:"enrichment"`
	Retry        rawRetryConfig       `yaml:"retry"`
	RateLimit    *RateLimitConfig     `yaml:"rate_limit"`
	Notification NotificationConfig   `yaml:"notification"`
	Metrics      MetricsConfig        `yaml:"metrics"`
	MockBackend  rawMockBackendConfig `yaml:"mock_backend"`
}

type rawBackendConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

type rawEnrichmentConfig struct {
	PollInterval string `yaml:"poll_interval"`
	MaxAttempts  int    `yaml:"max_attempts"`
}

type rawRetryConfig struct {
	MaxRetries *int   `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
}

type rawMockBackendConfig struct {
	Addr        string  `yaml:"addr"`
	DBPath      string  `yaml:"db_path"`
	EnrichDelay string  `yaml:"enrich_delay"`
	FailureRate float64 `yaml:"failure_rate"`
}

// envOverrides holds settings taken from the environment after the file is
// read. Zero values mean unset.
type envOverrides struct {
	APIURL       string        `env:"CONTACTCTL_API_URL"`
	PollInterval time.Duration `env:"CONTACTCTL_POLL_INTERVAL"`
	MaxAttempts  int           `env:"CONTACTCTL_MAX_ATTEMPTS"`
	WebhookURL   string        `env:"CONTACTCTL_SLACK_WEBHOOK_URL"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{
		Backend:    BackendConfig{BaseURL: defaultBaseURL, Timeout: defaultTimeout},
		Enrichment: EnrichmentConfig{PollInterval: defaultPollInterval, MaxAttempts: defaultMaxAttempts},
		Retry:      RetryConfig{MaxRetries: defaultMaxRetries, BaseDelay: defaultBaseDelay},
		RateLimit:  RateLimitConfig{RequestsPerSecond: defaultRPS, Burst: defaultBurst},
		MockBackend: MockBackendConfig{
			Addr:        defaultMockAddr,
			DBPath:      defaultMockDBPath,
			EnrichDelay: defaultEnrichDelay,
		},
	}
	return cfg
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
// Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()

	if raw.Backend.BaseURL != "" {
		cfg.Backend.BaseURL = raw.Backend.BaseURL
	}
	if err := parseDuration("backend.timeout", raw.Backend.Timeout, &cfg.Backend.Timeout); err != nil {
		return nil, err
	}

	if err := parseDuration("enrichment.poll_interval", raw.Enrichment.PollInterval, &cfg.Enrichment.PollInterval); err != nil {
		return nil, err
	}
	if raw.Enrichment.MaxAttempts != 0 {
		cfg.Enrichment.MaxAttempts = raw.Enrichment.MaxAttempts
	}

	if raw.Retry.MaxRetries != nil {
		cfg.Retry.MaxRetries = *raw.Retry.MaxRetries
	}
	if err := parseDuration("retry.base_delay", raw.Retry.BaseDelay, &cfg.Retry.BaseDelay); err != nil {
		return nil, err
	}

	if raw.RateLimit != nil {
		cfg.RateLimit = *raw.RateLimit
	}
	cfg.Notification = raw.Notification
	cfg.Metrics = raw.Metrics

	if raw.MockBackend.Addr != "" {
		cfg.MockBackend.Addr = raw.MockBackend.Addr
	}
	if raw.MockBackend.DBPath != "" {
		cfg.MockBackend.DBPath = raw.MockBackend.DBPath
	}
	if err := parseDuration("mock_backend.enrich_delay", raw.MockBackend.EnrichDelay, &cfg.MockBackend.EnrichDelay); err != nil {
		return nil, err
	}
	cfg.MockBackend.FailureRate = raw.MockBackend.FailureRate

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists. A missing file at an implicit path
// yields Default(); a missing file that was asked for explicitly is an error.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		if err := applyEnv(cfg); err != nil {
			return nil, err
		}
		if err := validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return nil, err
}

func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if u := strings.TrimSpace(o.APIURL); u != "" {
		cfg.Backend.BaseURL = u
	}
	if o.PollInterval != 0 {
		cfg.Enrichment.PollInterval = o.PollInterval
	}
	if o.MaxAttempts != 0 {
		cfg.Enrichment.MaxAttempts = o.MaxAttempts
	}
	if o.WebhookURL != "" {
		cfg.Notification.WebhookURL = o.WebhookURL
	}
	return nil
}

func parseDuration(field, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

func validate(cfg *Config) error {
	if !strings.HasPrefix(cfg.Backend.BaseURL, "http://") && !strings.HasPrefix(cfg.Backend.BaseURL, "https://") {
		return fmt.Errorf("backend.base_url must be an http(s) URL, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive, got %v", cfg.Backend.Timeout)
	}

	if cfg.Enrichment.PollInterval <= 0 {
		return fmt.Errorf("enrichment.poll_interval must be positive, got %v", cfg.Enrichment.PollInterval)
	}
	if cfg.Enrichment.MaxAttempts < 1 || cfg.Enrichment.MaxAttempts > poller.MaxAttemptsLimit {
		return fmt.Errorf("enrichment.max_attempts must be between 1 and %d, got %d", poller.MaxAttemptsLimit, cfg.Enrichment.MaxAttempts)
	}

	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.MaxRetries > 0 && cfg.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be positive, got %v", cfg.Retry.BaseDelay)
	}

	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be at least 1, got %d", cfg.RateLimit.Burst)
	}

	switch cfg.Notification.Type {
	case "", "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	default:
		return fmt.Errorf("notification.type must be \"log\" or \"slack\", got %q", cfg.Notification.Type)
	}

	if cfg.MockBackend.EnrichDelay < 0 {
		return fmt.Errorf("mock_backend.enrich_delay must not be negative, got %v", cfg.MockBackend.EnrichDelay)
	}
	if cfg.MockBackend.FailureRate < 0 || cfg.MockBackend.FailureRate > 1 {
		return fmt.Errorf("mock_backend.failure_rate must be between 0 and 1, got %v", cfg.MockBackend.FailureRate)
	}

	return nil
}
