package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/arcmetric/contactctl/internal/mockbackend"
	"github.com/arcmetric/contactctl/internal/store"
)

var (
	mockAddr   string
	mockDBPath string
	mockNoSeed bool
)

var mockBackendCmd = &cobra.Command{
	Use:   "mock-backend",
	Short: "Serve a local contact backend for development",
	Long: `Serves the contact API (list, read, enrich) backed by SQLite. Enrichment
jobs complete after mock_backend.enrich_delay, or fail at
mock_backend.failure_rate. Blocks until SIGINT/SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runMockBackend,
}

func init() {
	mockBackendCmd.Flags().StringVar(&mockAddr, "addr", "", "listen address (default from config)")
	mockBackendCmd.Flags().StringVar(&mockDBPath, "db", "", "SQLite database path, \":memory:\" for a throwaway store (default from config)")
	mockBackendCmd.Flags().BoolVar(&mockNoSeed, "no-seed", false, "do not insert sample contacts into an empty store")
	rootCmd.AddCommand(mockBackendCmd)
}

func runMockBackend(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	addr := cfg.MockBackend.Addr
	if mockAddr != "" {
		addr = mockAddr
	}
	dbPath := cfg.MockBackend.DBPath
	if mockDBPath != "" {
		dbPath = mockDBPath
	}

	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Error("failed to open store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := mockbackend.New(st, mockbackend.Config{
		EnrichDelay: cfg.MockBackend.EnrichDelay,
		FailureRate: cfg.MockBackend.FailureRate,
	}, reg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !mockNoSeed {
		if _, err := srv.Seed(ctx); err != nil {
			logger.Error("failed to seed contacts", "error", err)
			os.Exit(1)
		}
	}

	if err := srv.Start(ctx, addr); err != nil {
		logger.Error("failed to start mock backend", "error", err)
		os.Exit(1)
	}

	<-srv.Stopped()
	logger.Info("goodbye")
	return nil
}
