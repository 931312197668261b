package model

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// EnrichmentStatus is the backend-reported state of a contact's enrichment job.
type EnrichmentStatus string

const (
	StatusPending    EnrichmentStatus = "pending"
	StatusProcessing EnrichmentStatus = "processing"
	StatusCompleted  EnrichmentStatus = "completed"
	StatusFailed     EnrichmentStatus = "failed"
)

// ParseEnrichmentStatus normalizes a raw status string. Unrecognized or empty
// values are treated as pending.
func ParseEnrichmentStatus(raw string) EnrichmentStatus {
	switch s := EnrichmentStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return s
	default:
		return StatusPending
	}
}

// Terminal reports whether the backend job has finished.
func (s EnrichmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Contact is the canonical contact record, whichever wire shape it arrived in.
type Contact struct {
	ID          string           // opaque; numeric ids are kept as decimal strings
	Name        string
	Email       string
	Title       string
	Company     string
	Phone       string
	LinkedInURL string
	Status      EnrichmentStatus
	Enrichment  json.RawMessage // only set when Status is completed
	ApexScore   string
	CreatedAt   *time.Time // nullable (not every backend reports it)
}

// Enriched reports whether the contact carries an enrichment payload.
func (c Contact) Enriched() bool {
	return c.Status == StatusCompleted && len(c.Enrichment) > 0
}

// ContactPage is one page of a contact listing.
type ContactPage struct {
	Contacts []Contact
	Total    int
	Limit    int
	Offset   int
}

// ContactFetcher reads a single contact by id. One round trip per call.
type ContactFetcher interface {
	FetchContact(ctx context.Context, id string) (Contact, error)
}

// ContactLister reads a page of contacts.
type ContactLister interface {
	ListContacts(ctx context.Context, limit, offset int) (ContactPage, error)
}

// EnrichmentTrigger asks the backend to start enriching a contact. The job
// runs asynchronously; its effects surface only through later reads.
// Returns ErrConflict when a job is already in flight for the contact.
type EnrichmentTrigger interface {
	StartEnrichment(ctx context.Context, id string) error
}

// Outcome summarizes a finished enrichment request for notifiers.
type Outcome struct {
	ContactID string
	State     string // terminal state name, e.g. "completed", "timed_out"
	Attempts  int
	Contact   *Contact
	Err       error
	Elapsed   time.Duration
}

// Notifier reports finished enrichment requests.
type Notifier interface {
	Notify(ctx context.Context, outcome Outcome) error
}
