package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	listLimit  int
	listOffset int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List contacts",
	Long:  "Prints one page of contacts with their enrichment status.",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 100, "page size")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "number of contacts to skip")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack := newBackendStack(cfg, logger)
	page, err := stack.lister.ListContacts(ctx, listLimit, listOffset)
	if err != nil {
		logger.Error("failed to list contacts", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%-38s %-24s %-28s %s\n", "ID", "Name", "Email", "Enrichment")
	fmt.Println(strings.Repeat("─", 104))
	for _, c := range page.Contacts {
		fmt.Printf("%-38s %-24s %-28s %s\n", c.ID, truncate(c.Name, 24), truncate(c.Email, 28), c.Status)
	}

	fmt.Printf("\nShowing %d of %d contacts (offset %d)\n", len(page.Contacts), page.Total, page.Offset)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
