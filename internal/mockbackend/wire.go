package mockbackend

import (
	"encoding/json"
	"time"

	"github.com/arcmetric/contactctl/internal/store"
)

type contactJSON struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Email            string          `json:"email"`
	Title            string          `json:"title"`
	Company          string          `json:"company"`
	Phone            string          `json:"phone"`
	LinkedInURL      string          `json:"linkedin_url"`
	EnrichmentStatus string          `json:"enrichment_status"`
	EnrichmentData   json.RawMessage `json:"enrichment_data"`
	ApexScore        *string         `json:"apex_score"`
	CreatedAt        string          `json:"created_at"`
	EnrichedAt       *string         `json:"enriched_at"`
}

type detailResponse struct {
	Success bool        `json:"success"`
	Contact contactJSON `json:"contact"`
}

type listResponse struct {
	Success  bool          `json:"success"`
	Contacts []contactJSON `json:"contacts"`
	Total    int           `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

type createRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Phone       string `json:"phone"`
	LinkedInURL string `json:"linkedin_url"`
}

func toJSON(r store.Record) contactJSON {
	out := contactJSON{
		ID:               r.ID,
		Name:             r.Name,
		Email:            r.Email,
		Title:            r.Title,
		Company:          r.Company,
		Phone:            r.Phone,
		LinkedInURL:      r.LinkedInURL,
		EnrichmentStatus: string(r.Status),
		EnrichmentData:   json.RawMessage("null"),
	}
	if len(r.Enrichment) > 0 {
		out.EnrichmentData = r.Enrichment
	}
	if r.ApexScore != "" {
		score := r.ApexScore
		out.ApexScore = &score
	}
	if r.CreatedAt != nil {
		out.CreatedAt = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	if r.EnrichedAt != nil {
		ts := r.EnrichedAt.UTC().Format(time.RFC3339)
		out.EnrichedAt = &ts
	}
	return out
}
