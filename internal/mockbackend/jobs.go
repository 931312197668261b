package mockbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const enrichmentScore = 85

type enrichmentPayload struct {
	Person   personInsight  `json:"person"`
	Company  companyInsight `json:"company"`
	Insights []string       `json:"insights"`
	Score    int            `json:"score"`
}

type personInsight struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Seniority   string `json:"seniority"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}

type companyInsight struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Industry string `json:"industry"`
}

// runJob simulates the backend enrichment pipeline for one contact.
func (s *Server) runJob(id string) {
	defer s.jobs.Done()

	timer := time.NewTimer(s.cfg.EnrichDelay)
	defer timer.Stop()
	select {
	case <-s.jobCtx.Done():
		return
	case <-timer.C:
	}

	ctx, cancel := context.WithTimeout(s.jobCtx, 5*time.Second)
	defer cancel()

	if s.shouldFail() {
		if err := s.store.FailEnrichment(ctx, id); err != nil {
			s.logger.Error("recording failed enrichment", "contact", id, "error", err)
			return
		}
		s.logger.Info("enrichment failed", "contact", id)
		return
	}

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.Error("reading contact for enrichment", "contact", id, "error", err)
		return
	}

	payload, err := json.Marshal(enrichmentPayload{
		Person: personInsight{
			Name:        rec.Name,
			Title:       rec.Title,
			Seniority:   seniority(rec.Title),
			LinkedInURL: rec.LinkedInURL,
		},
		Company: companyInsight{
			Name:     rec.Company,
			Domain:   domainOf(rec.Email),
			Industry: "Software",
		},
		Insights: []string{
			fmt.Sprintf("%s is a likely decision maker at %s", rec.Name, rec.Company),
			"Active on professional networks in the last 30 days",
		},
		Score: enrichmentScore,
	})
	if err != nil {
		s.logger.Error("encoding enrichment payload", "contact", id, "error", err)
		return
	}

	if err := s.store.CompleteEnrichment(ctx, id, payload, strconv.Itoa(enrichmentScore)); err != nil {
		s.logger.Error("recording completed enrichment", "contact", id, "error", err)
		return
	}
	s.logger.Info("enrichment completed", "contact", id)
}

func (s *Server) shouldFail() bool {
	if s.cfg.FailureRate <= 0 {
		return false
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < s.cfg.FailureRate
}

func seniority(title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "chief"), strings.Contains(t, "vp"), strings.Contains(t, "head"):
		return "executive"
	case strings.Contains(t, "senior"), strings.Contains(t, "lead"), strings.Contains(t, "director"):
		return "senior"
	default:
		return "individual contributor"
	}
}

func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}
