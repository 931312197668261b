package mockbackend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arcmetric/contactctl/internal/backend"
	"github.com/arcmetric/contactctl/internal/enrichment"
	"github.com/arcmetric/contactctl/internal/model"
	"github.com/arcmetric/contactctl/internal/poller"
	"github.com/arcmetric/contactctl/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	srv    *Server
	http   *httptest.Server
	store  *store.SQLiteStore
	client *backend.Client
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "mock.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	srv := New(st, cfg, prometheus.NewRegistry(), testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		st.Close()
	})
	return &fixture{
		srv:    srv,
		http:   ts,
		store:  st,
		client: backend.NewClient(ts.URL+DefaultPrefix, ts.Client()),
	}
}

func (f *fixture) seed(t *testing.T) []store.Record {
	t.Helper()
	if _, err := f.srv.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	records, _, err := f.store.List(context.Background(), 100, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return records
}

func TestSeed_OnlyWhenEmpty(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	n, err := f.srv.Seed(ctx)
	if err != nil || n != len(sampleContacts) {
		t.Fatalf("first Seed = %d, %v; want %d, nil", n, err, len(sampleContacts))
	}
	n, err = f.srv.Seed(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second Seed = %d, %v; want 0, nil", n, err)
	}
}

func TestGetContact_ThroughClient(t *testing.T) {
	f := newFixture(t, Config{})
	records := f.seed(t)

	got, err := f.client.FetchContact(context.Background(), records[0].ID)
	if err != nil {
		t.Fatalf("FetchContact: %v", err)
	}
	if got.Name != "Ada Lovelace" || got.LinkedInURL == "" {
		t.Errorf("unexpected contact: %+v", got)
	}
	if got.Status != model.StatusPending {
		t.Errorf("expected pending, got %s", got.Status)
	}
	if got.CreatedAt == nil {
		t.Error("expected created_at to decode")
	}
}

func TestGetContact_NotFound(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.client.FetchContact(context.Background(), "missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListContacts_ThroughClient(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t)

	page, err := f.client.ListContacts(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if page.Total != len(sampleContacts) || page.Limit != 2 || page.Offset != 1 {
		t.Errorf("unexpected envelope: total=%d limit=%d offset=%d", page.Total, page.Limit, page.Offset)
	}
	if len(page.Contacts) != 2 || page.Contacts[0].Name != "Grace Hopper" {
		t.Errorf("unexpected contacts: %+v", page.Contacts)
	}
}

func TestListContacts_DefaultsAndValidation(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t)

	resp, err := http.Get(f.http.URL + DefaultPrefix + "/contacts")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Limit != defaultListLimit || body.Offset != 0 {
		t.Errorf("unexpected defaults: %+v", body)
	}

	bad, err := http.Get(f.http.URL + DefaultPrefix + "/contacts?limit=-1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for negative limit, got %d", bad.StatusCode)
	}
}

func TestCreateContact(t *testing.T) {
	f := newFixture(t, Config{})

	resp, err := http.Post(f.http.URL+DefaultPrefix+"/contacts", "application/json",
		strings.NewReader(`{"name":"Margaret Hamilton","email":"margaret@apollo.space","company":"Apollo"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var body detailResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	got, err := f.client.FetchContact(context.Background(), body.Contact.ID)
	if err != nil {
		t.Fatalf("FetchContact: %v", err)
	}
	if got.Name != "Margaret Hamilton" {
		t.Errorf("unexpected contact: %+v", got)
	}

	missing, err := http.Post(f.http.URL+DefaultPrefix+"/contacts", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without name, got %d", missing.StatusCode)
	}
}

func TestEnrich_ConflictWhileProcessing(t *testing.T) {
	f := newFixture(t, Config{EnrichDelay: time.Hour})
	records := f.seed(t)
	ctx := context.Background()
	id := records[0].ID

	if err := f.client.StartEnrichment(ctx, id); err != nil {
		t.Fatalf("first StartEnrichment: %v", err)
	}
	if err := f.client.StartEnrichment(ctx, id); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := f.client.StartEnrichment(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := f.client.FetchContact(ctx, id)
	if err != nil {
		t.Fatalf("FetchContact: %v", err)
	}
	if got.Status != model.StatusProcessing {
		t.Errorf("expected processing, got %s", got.Status)
	}
}

func TestEnrich_FailureRate(t *testing.T) {
	f := newFixture(t, Config{EnrichDelay: 10 * time.Millisecond, FailureRate: 1})
	records := f.seed(t)
	ctx := context.Background()
	id := records[1].ID

	if err := f.client.StartEnrichment(ctx, id); err != nil {
		t.Fatalf("StartEnrichment: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := f.client.FetchContact(ctx, id)
		if err != nil {
			t.Fatalf("FetchContact: %v", err)
		}
		if got.Status == model.StatusFailed {
			if got.Enriched() {
				t.Error("failed contact should carry no payload")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never failed; last status %s", got.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnrichment_EndToEnd(t *testing.T) {
	f := newFixture(t, Config{EnrichDelay: 30 * time.Millisecond})
	records := f.seed(t)

	ctrl, err := enrichment.NewController(f.client, f.client,
		poller.Config{Interval: 10 * time.Millisecond, MaxAttempts: 50}, testLogger())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer ctrl.Close()

	e, err := ctrl.Request(context.Background(), records[0].ID)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	u, err := e.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if u.State != poller.Completed {
		t.Fatalf("expected Completed, got %s (err %v)", u.State, u.Err)
	}
	if u.Contact == nil || !u.Contact.Enriched() {
		t.Fatalf("expected enriched contact, got %+v", u.Contact)
	}
	if u.Contact.ApexScore != "85" {
		t.Errorf("expected apex score 85, got %q", u.Contact.ApexScore)
	}

	var payload enrichmentPayload
	if err := json.Unmarshal(u.Contact.Enrichment, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Person.Name != "Ada Lovelace" || payload.Company.Domain != "analytical.io" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t)

	resp, err := http.Get(f.http.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(f.http.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `contactctl_mock_requests_total{code="200",route="health"} 1`) {
		t.Errorf("expected health request in metrics, got:\n%s", body)
	}
}

func TestStart_ServesUntilCancelled(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer st.Close()

	srv := New(st, Config{}, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx, "127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + srv.Addr().String() + "/health")
		if err != nil {
			return
		}
		resp.Body.Close()
		if time.Now().After(deadline) {
			t.Fatal("server still serving after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
