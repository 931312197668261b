package notifier

import (
	"context"
	"log/slog"

	"github.com/arcmetric/contactctl/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes finished enrichment requests to the given logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each outcome via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the outcome. Failures are logged at error level.
// Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(_ context.Context, o model.Outcome) error {
	args := []any{
		"contact", o.ContactID,
		"outcome", o.State,
		"attempts", o.Attempts,
		"elapsed", o.Elapsed.String(),
	}
	if o.Contact != nil {
		args = append(args, "name", o.Contact.Name, "status", string(o.Contact.Status))
		if o.Contact.ApexScore != "" {
			args = append(args, "apex_score", o.Contact.ApexScore)
		}
	}
	if o.Err != nil {
		args = append(args, "error", o.Err)
	}

	if o.State == "completed" {
		n.logger.Info("enrichment outcome", args...)
	} else {
		n.logger.Error("enrichment outcome", args...)
	}
	return nil
}
