package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcmetric/contactctl/internal/tui"
)

var (
	browseLimit  int
	browseOffset int
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse contacts interactively (TUI)",
	Long:  "Loads a page of contacts and opens the interactive browser. Press e on a contact to enrich it.",
	Args:  cobra.NoArgs,
	RunE:  runBrowse,
}

func init() {
	browseCmd.Flags().IntVar(&browseLimit, "limit", 100, "number of contacts to load")
	browseCmd.Flags().IntVar(&browseOffset, "offset", 0, "number of contacts to skip")
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// The TUI owns the terminal: any log output corrupts the alt-screen.
	silentLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stack := newBackendStack(cfg, silentLogger)
	n := setupNotifier(cfg, &http.Client{Timeout: 30 * time.Second}, silentLogger)
	ctrl, err := newController(stack, pollConfig(cfg), n, nil, silentLogger)
	if err != nil {
		logger.Error("failed to create enrichment controller", "error", err)
		os.Exit(1)
	}
	defer ctrl.Close()

	page, err := tui.RunLoader(stack.lister, tui.PageRequest{
		Source: cfg.Backend.BaseURL,
		Limit:  browseLimit,
		Offset: browseOffset,
	})
	if errors.Is(err, tui.ErrCancelled) {
		return nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load contacts: %v\n", err)
		os.Exit(1)
	}

	if err := tui.RunBrowser(page, stack.reader, ctrl); err != nil {
		fmt.Fprintf(os.Stderr, "browser error: %v\n", err)
		os.Exit(1)
	}
	return nil
}
