package model

import "testing"

func TestParseEnrichmentStatus(t *testing.T) {
	tests := []struct {
		in   string
		want EnrichmentStatus
	}{
		{"pending", StatusPending},
		{"processing", StatusProcessing},
		{" Completed ", StatusCompleted},
		{"FAILED", StatusFailed},
		{"", StatusPending},
		{"queued", StatusPending},
	}
	for _, tc := range tests {
		if got := ParseEnrichmentStatus(tc.in); got != tc.want {
			t.Errorf("ParseEnrichmentStatus(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEnriched(t *testing.T) {
	c := Contact{Status: StatusCompleted}
	if c.Enriched() {
		t.Error("completed contact without payload should not count as enriched")
	}
	c.Enrichment = []byte(`{"score":85}`)
	if !c.Enriched() {
		t.Error("completed contact with payload should count as enriched")
	}
	c.Status = StatusProcessing
	if c.Enriched() {
		t.Error("processing contact should not count as enriched")
	}
}
