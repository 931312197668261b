package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcmetric/contactctl/internal/notifier"
)

var (
	notifyType    string
	notifyWebhook string
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a sample enrichment outcome through a notifier",
	Long: `Sends a completed enrichment for a made-up contact through the notifier
from the config file. --type and --webhook-url override the configured values,
so a Slack hook can be checked before it is written to config.yaml.`,
	Args: cobra.NoArgs,
	RunE: runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
	notifyTestCmd.Flags().StringVar(&notifyType, "type", "", `notifier to use, "log" or "slack" (default from config)`)
	notifyTestCmd.Flags().StringVar(&notifyWebhook, "webhook-url", "", "Slack webhook URL (default from config)")
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if notifyType != "" {
		cfg.Notification.Type = notifyType
	}
	if notifyWebhook != "" {
		cfg.Notification.WebhookURL = notifyWebhook
	}
	if cfg.Notification.Type == "slack" && cfg.Notification.WebhookURL == "" {
		return fmt.Errorf("slack notifier needs a webhook URL")
	}

	n := setupNotifier(cfg, &http.Client{Timeout: cfg.Backend.Timeout}, logger)
	if n == nil {
		logger.Error("no notifier configured, set notification.type or pass --type")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	if err := notifier.SendTestMessage(ctx, n); err != nil {
		logger.Error("test notification failed", "type", cfg.Notification.Type, "error", err)
		os.Exit(1)
	}
	logger.Info("test notification sent", "type", cfg.Notification.Type)
	return nil
}
