package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/arcmetric/contactctl/internal/backend"
	"github.com/arcmetric/contactctl/internal/config"
	"github.com/arcmetric/contactctl/internal/enrichment"
	"github.com/arcmetric/contactctl/internal/metrics"
	"github.com/arcmetric/contactctl/internal/model"
	"github.com/arcmetric/contactctl/internal/notifier"
	"github.com/arcmetric/contactctl/internal/poller"
	"github.com/arcmetric/contactctl/internal/ratelimit"
	"github.com/arcmetric/contactctl/internal/retry"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:          "contactctl",
	Short:        "Browse contacts and run enrichment jobs",
	Long:         "contactctl reads contacts from the contact backend, starts enrichment jobs and follows them until they finish.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: "+config.EnvConfigPath+" env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > CONTACTCTL_CONFIG env var > "./config.yaml".
// Without any file the defaults apply.
func loadConfig(path string) (*config.Config, error) {
	explicit := path != ""
	if !explicit {
		if env := os.Getenv(config.EnvConfigPath); env != "" {
			path = env
			explicit = true
		} else {
			path = config.DefaultPath
		}
	}
	return config.LoadOrDefault(path, explicit)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	case "log":
		return notifier.NewLogNotifier(logger)
	default:
		return nil
	}
}

// backendStack is the backend client with its decorators. One-shot reads
// retry; poll reads do not, since a failed tick already counts against the
// session budget. Every path shares one rate limiter.
type backendStack struct {
	reader     model.ContactFetcher
	lister     model.ContactLister
	pollReader model.ContactFetcher
	trigger    model.EnrichmentTrigger
}

func newBackendStack(cfg *config.Config, logger *slog.Logger) *backendStack {
	httpClient := &http.Client{Timeout: cfg.Backend.Timeout}
	client := backend.NewClient(cfg.Backend.BaseURL, httpClient)
	limiter := ratelimit.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	policy := retry.Policy{MaxRetries: cfg.Retry.MaxRetries, BaseDelay: cfg.Retry.BaseDelay}

	limitedFetcher := ratelimit.NewLimitedFetcher(client, limiter)
	return &backendStack{
		reader:     retry.NewRetryFetcher(limitedFetcher, policy, logger),
		lister:     retry.NewRetryLister(ratelimit.NewLimitedLister(client, limiter), policy, logger),
		pollReader: limitedFetcher,
		trigger:    ratelimit.NewLimitedTrigger(client, limiter),
	}
}

// newController wires the enrichment controller to the backend stack.
// reg may be nil to skip metrics.
func newController(stack *backendStack, pollCfg poller.Config, n model.Notifier, reg prometheus.Registerer, logger *slog.Logger) (*enrichment.Controller, error) {
	opts := []enrichment.Option{}
	if n != nil {
		opts = append(opts, enrichment.WithNotifier(n))
	}
	if reg != nil {
		opts = append(opts, enrichment.WithMetrics(metrics.New(reg)))
	}
	return enrichment.NewController(stack.trigger, stack.pollReader, pollCfg, logger, opts...)
}

func pollConfig(cfg *config.Config) poller.Config {
	return poller.Config{
		Interval:    cfg.Enrichment.PollInterval,
		MaxAttempts: cfg.Enrichment.MaxAttempts,
	}
}
