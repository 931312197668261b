package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcmetric/contactctl/internal/model"
	"github.com/arcmetric/contactctl/internal/tui"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one contact",
	Long:  "Fetches a contact and prints its fields and, once enriched, the enrichment data.",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack := newBackendStack(cfg, logger)
	c, err := stack.reader.FetchContact(ctx, args[0])
	if errors.Is(err, model.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "contact %s not found\n", args[0])
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to fetch contact", "id", args[0], "error", err)
		os.Exit(1)
	}

	printContact(c)
	return nil
}

func printContact(c model.Contact) {
	field := func(label, value string) {
		if value != "" {
			fmt.Printf("%-14s %s\n", label+":", value)
		}
	}

	field("ID", c.ID)
	field("Name", c.Name)
	field("Email", c.Email)
	field("Title", c.Title)
	field("Company", c.Company)
	field("Phone", c.Phone)
	field("LinkedIn", c.LinkedInURL)
	if c.CreatedAt != nil {
		field("Created", c.CreatedAt.Local().Format(time.RFC1123))
	}
	field("Enrichment", string(c.Status))
	field("Apex score", c.ApexScore)

	if c.Enriched() {
		fmt.Println("\nEnrichment data:")
		fmt.Println(tui.FormatPayload(c.Enrichment))
	}
}
