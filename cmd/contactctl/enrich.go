package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/arcmetric/contactctl/internal/enrichment"
	"github.com/arcmetric/contactctl/internal/metrics"
	"github.com/arcmetric/contactctl/internal/poller"
	"github.com/arcmetric/contactctl/internal/tui"
)

var (
	enrichInterval    time.Duration
	enrichMaxAttempts int
	enrichMetricsAddr string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <id>...",
	Short: "Start enrichment and follow it to the end",
	Long: `Starts an enrichment job for each contact and polls until every job
completes, fails, or runs out of attempts. Exits 1 if any job did not
complete. SIGINT cancels the outstanding jobs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnrich,
}

func init() {
	enrichCmd.Flags().DurationVar(&enrichInterval, "interval", 0, "poll interval (default from config)")
	enrichCmd.Flags().IntVar(&enrichMaxAttempts, "max-attempts", 0, "poll attempts before giving up (default from config)")
	enrichCmd.Flags().StringVar(&enrichMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running (default from config)")
	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	pollCfg := pollConfig(cfg)
	if enrichInterval > 0 {
		pollCfg.Interval = enrichInterval
	}
	if enrichMaxAttempts > 0 {
		pollCfg.MaxAttempts = enrichMaxAttempts
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	addr := enrichMetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		serveMetrics(ctx, addr, reg, logger)
	}

	stack := newBackendStack(cfg, logger)
	n := setupNotifier(cfg, &http.Client{Timeout: 30 * time.Second}, logger)
	ctrl, err := newController(stack, pollCfg, n, reg, logger)
	if err != nil {
		logger.Error("failed to create enrichment controller", "error", err)
		os.Exit(1)
	}
	defer ctrl.Close()

	logger.Info("enriching contacts",
		"count", len(args),
		"interval", pollCfg.Interval.String(),
		"max_attempts", pollCfg.MaxAttempts,
	)

	var requests []*enrichment.Enrichment
	for _, id := range args {
		e, err := ctrl.Request(ctx, id)
		if err != nil {
			logger.Error("failed to request enrichment", "id", id, "error", err)
			os.Exit(1)
		}
		requests = append(requests, e)
	}

	// Cancel on SIGINT; the Cancelled updates then end the streams below.
	go func() {
		<-ctx.Done()
		for _, e := range requests {
			e.Cancel()
		}
	}()

	ok := true
	for _, e := range requests {
		final := follow(e)
		if final.State != poller.Completed {
			ok = false
		}
		if final.Contact != nil && final.State == poller.Completed {
			fmt.Println()
			printContact(*final.Contact)
		}
	}

	// Flush notifications before deciding the exit code.
	ctrl.Close()
	if !ok {
		os.Exit(1)
	}
	return nil
}

// follow prints every update of e and returns the terminal one.
func follow(e *enrichment.Enrichment) enrichment.Update {
	var last enrichment.Update
	for u := range e.Updates() {
		last = u
		fmt.Printf("[%s] %s: %s\n", u.At.Format("15:04:05"), e.ContactID(), tui.StatusLine(u))
	}
	return last
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	srv := &http.Server{Addr: addr, Handler: metrics.Handler(reg), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("serving metrics", "addr", addr)
}
