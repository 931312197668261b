package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arcmetric/contactctl/internal/model"
)

// wireContact accepts both contact shapes the backend has served: snake_case
// (enrichment_status) and run-together lowercase (enrichmentstatus).
type wireContact struct {
	ID      json.RawMessage `json:"id"`
	Name    *string         `json:"name"`
	Email   *string         `json:"email"`
	Title   *string         `json:"title"`
	Company *string         `json:"company"`
	Phone   *string         `json:"phone"`

	LinkedInURL    *string `json:"linkedin_url"`
	LinkedInURLAlt *string `json:"linkedinurl"`

	EnrichmentStatus    *string `json:"enrichment_status"`
	EnrichmentStatusAlt *string `json:"enrichmentstatus"`

	EnrichmentData json.RawMessage `json:"enrichment_data"`

	ApexScore    json.RawMessage `json:"apex_score"`
	ApexScoreAlt json.RawMessage `json:"apexscore"`

	CreatedAt  *string `json:"created_at"`
	EnrichedAt *string `json:"enrichedat"`
}

type detailResponse struct {
	Contact *wireContact `json:"contact"`
}

type listResponse struct {
	Success  bool          `json:"success"`
	Contacts []wireContact `json:"contacts"`
	Total    int           `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

// toContact translates the wire record into the canonical model.
func (w wireContact) toContact() (model.Contact, error) {
	id, err := decodeID(w.ID)
	if err != nil {
		return model.Contact{}, err
	}

	c := model.Contact{
		ID:          id,
		Name:        deref(w.Name),
		Email:       deref(w.Email),
		Title:       deref(w.Title),
		Company:     deref(w.Company),
		Phone:       deref(w.Phone),
		LinkedInURL: firstNonEmpty(deref(w.LinkedInURL), deref(w.LinkedInURLAlt)),
		Status:      model.ParseEnrichmentStatus(firstNonEmpty(deref(w.EnrichmentStatus), deref(w.EnrichmentStatusAlt))),
		ApexScore:   firstNonEmpty(decodeScalar(w.ApexScore), decodeScalar(w.ApexScoreAlt)),
	}

	if c.Status == model.StatusCompleted && !isNull(w.EnrichmentData) {
		c.Enrichment = append(json.RawMessage(nil), w.EnrichmentData...)
	}

	if ts := firstNonEmpty(deref(w.CreatedAt), deref(w.EnrichedAt)); ts != "" {
		if t, ok := parseTimestamp(ts); ok {
			c.CreatedAt = &t
		}
	}

	return c, nil
}

// decodeID accepts a JSON string or number and returns it as a string.
func decodeID(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", fmt.Errorf("contact has no id")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("contact has empty id")
		}
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("contact id %s: %w", string(raw), err)
	}
	return n.String(), nil
}

// decodeScalar renders a JSON string or number as a string; anything else is "".
func decodeScalar(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// parseTimestamp handles RFC 3339 and the naive ISO format Python emits.
func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
