// Package store persists contact records for the mock backend.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/arcmetric/contactctl/internal/model"
)

const schema = `CREATE TABLE IF NOT EXISTS contacts (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	email             TEXT NOT NULL DEFAULT '',
	title             TEXT NOT NULL DEFAULT '',
	company           TEXT NOT NULL DEFAULT '',
	phone             TEXT NOT NULL DEFAULT '',
	linkedin_url      TEXT NOT NULL DEFAULT '',
	enrichment_status TEXT NOT NULL DEFAULT 'pending',
	enrichment_data   TEXT,
	apex_score        TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	enriched_at       TEXT
)`

const columns = `id, name, email, title, company, phone, linkedin_url,
	enrichment_status, enrichment_data, apex_score, created_at, enriched_at`

// timeLayout has a fixed-width fraction so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is a stored contact plus bookkeeping the client model does not carry.
type Record struct {
	model.Contact
	EnrichedAt *time.Time
}

// SQLiteStore keeps contacts in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// contacts table exists. ":memory:" gives a throwaway store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating contacts table: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Create inserts a new pending contact with a fresh UUID and returns it.
func (s *SQLiteStore) Create(ctx context.Context, c model.Contact) (Record, error) {
	if c.Name == "" {
		return Record{}, errors.New("create contact: name is required")
	}
	c.ID = uuid.NewString()
	c.Status = model.StatusPending
	c.Enrichment = nil
	c.ApexScore = ""
	created := s.now().UTC()
	c.CreatedAt = &created

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, name, email, title, company, phone, linkedin_url, enrichment_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Title, c.Company, c.Phone, c.LinkedInURL, string(c.Status), formatTime(created),
	)
	if err != nil {
		return Record{}, fmt.Errorf("inserting contact %s: %w", c.Name, err)
	}
	return Record{Contact: c}, nil
}

// Get returns one contact or model.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM contacts WHERE id = ?", id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("contact %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("reading contact %s: %w", id, err)
	}
	return r, nil
}

// List returns one page of contacts in creation order and the total count.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]Record, int, error) {
	total, err := s.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+columns+" FROM contacts ORDER BY created_at, rowid LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing contacts: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning contact: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing contacts: %w", err)
	}
	return out, total, nil
}

// Count returns the number of stored contacts.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contacts").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting contacts: %w", err)
	}
	return n, nil
}

// IsEmpty returns true if no contacts are stored.
func (s *SQLiteStore) IsEmpty(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	return n == 0, err
}

// BeginEnrichment marks the contact processing and clears any previous result.
// It returns model.ErrConflict when a job is already processing and
// model.ErrNotFound for an unknown id.
func (s *SQLiteStore) BeginEnrichment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET enrichment_status = ?, enrichment_data = NULL, enriched_at = NULL
		 WHERE id = ? AND enrichment_status <> ?`,
		string(model.StatusProcessing), id, string(model.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("starting enrichment for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("starting enrichment for %s: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("contact %s: %w", id, model.ErrConflict)
}

// CompleteEnrichment stores the payload and score of a finished job.
func (s *SQLiteStore) CompleteEnrichment(ctx context.Context, id string, payload json.RawMessage, score string) error {
	return s.finish(ctx, id, model.StatusCompleted, payload, score)
}

// FailEnrichment marks the job failed.
func (s *SQLiteStore) FailEnrichment(ctx context.Context, id string) error {
	return s.finish(ctx, id, model.StatusFailed, nil, "")
}

func (s *SQLiteStore) finish(ctx context.Context, id string, status model.EnrichmentStatus, payload json.RawMessage, score string) error {
	var data any
	if len(payload) > 0 {
		data = string(payload)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET enrichment_status = ?, enrichment_data = ?, apex_score = ?, enriched_at = ? WHERE id = ?`,
		string(status), data, score, formatTime(s.now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("recording %s enrichment for %s: %w", status, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("contact %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r          Record
		status     string
		data       sql.NullString
		createdAt  string
		enrichedAt sql.NullString
	)
	err := row.Scan(&r.ID, &r.Name, &r.Email, &r.Title, &r.Company, &r.Phone, &r.LinkedInURL,
		&status, &data, &r.ApexScore, &createdAt, &enrichedAt)
	if err != nil {
		return Record{}, err
	}

	r.Status = model.ParseEnrichmentStatus(status)
	if data.Valid && r.Status == model.StatusCompleted {
		r.Enrichment = json.RawMessage(data.String)
	}
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		r.CreatedAt = &t
	}
	if enrichedAt.Valid {
		if t, err := time.Parse(timeLayout, enrichedAt.String); err == nil {
			r.EnrichedAt = &t
		}
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
