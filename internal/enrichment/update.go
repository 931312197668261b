package enrichment

import (
	"time"

	"github.com/google/uuid"

	"github.com/arcmetric/contactctl/internal/model"
	"github.com/arcmetric/contactctl/internal/poller"
)

// Update is one observable state change of an enrichment request.
type Update struct {
	ContactID   string
	SessionID   uuid.UUID // zero when no poll session was started
	State       poller.State
	Attempt     int
	MaxAttempts int
	Contact     *model.Contact
	Err         error // hard failure on a terminal update, absorbed fetch error otherwise
	Conflict    bool  // backend reported a job already in flight
	At          time.Time
}

// Terminal reports whether this is the request's final update.
func (u Update) Terminal() bool { return u.State.Terminal() }

// HardFailure reports whether the request failed before polling began.
func (u Update) HardFailure() bool {
	return u.State == poller.Failed && u.SessionID == uuid.Nil
}

// Outcome names the result for logs, metrics and notifications.
func (u Update) Outcome() string {
	if u.HardFailure() {
		return "trigger_failed"
	}
	return u.State.String()
}
