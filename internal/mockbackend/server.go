// Package mockbackend serves the contact backend contract for local
// development: contact reads, listing, and an asynchronous enrichment job
// that completes (or fails) after a configurable delay.
package mockbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arcmetric/contactctl/internal/metrics"
	"github.com/arcmetric/contactctl/internal/model"
	"github.com/arcmetric/contactctl/internal/store"
)

const (
	// DefaultPrefix is the API prefix the client's default base URL expects.
	DefaultPrefix = "/api/v2"

	defaultListLimit = 100
	shutdownTimeout  = 5 * time.Second
)

// Config tunes the simulated backend.
type Config struct {
	Prefix      string        // route prefix, default "/api/v2"
	EnrichDelay time.Duration // how long a job stays processing
	FailureRate float64       // share of jobs that end failed, 0..1
}

// Server handles the contact API on top of a contact store.
//
// Routes, all under the configured prefix except health and metrics:
//   - GET  /contacts?limit&offset
//   - POST /contacts
//   - GET  /contacts/{id}
//   - POST /contacts/{id}/enrich
//   - GET  /health
//   - GET  /metrics
type Server struct {
	store    *store.SQLiteStore
	cfg      Config
	logger   *slog.Logger
	requests *prometheus.CounterVec
	gatherer prometheus.Gatherer

	rngMu sync.Mutex
	rng   *rand.Rand

	jobs       sync.WaitGroup
	jobCtx     context.Context
	jobCancel  context.CancelFunc
	httpServer *http.Server
	addr       net.Addr
	stopped    chan struct{}
}

// New creates a server. reg receives the server's request counter and is
// served on /metrics; a fresh registry is used when reg is nil.
func New(st *store.SQLiteStore, cfg Config, reg *prometheus.Registry, logger *slog.Logger) *Server {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contactctl_mock_requests_total",
		Help: "Requests served by the mock backend, by route and status code.",
	}, []string{"route", "code"})
	reg.MustRegister(requests)

	jobCtx, jobCancel := context.WithCancel(context.Background())
	return &Server{
		store:     st,
		cfg:       cfg,
		logger:    logger,
		requests:  requests,
		gatherer:  reg,
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x636f6e74)),
		jobCtx:    jobCtx,
		jobCancel: jobCancel,
	}
}

// Handler returns the HTTP handler with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	p := s.cfg.Prefix

	mux.HandleFunc("GET "+p+"/contacts", s.handleList)
	mux.HandleFunc("POST "+p+"/contacts", s.handleCreate)
	mux.HandleFunc("GET "+p+"/contacts/{id}", s.handleGet)
	mux.HandleFunc("POST "+p+"/contacts/{id}/enrich", s.handleEnrich)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler(s.gatherer))

	return mux
}

// Start begins serving on addr in a background goroutine and returns once
// the listener is bound. Cancelling ctx shuts the server down gracefully and
// abandons pending jobs.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}
	s.addr = ln.Addr()
	s.stopped = make(chan struct{})

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
		s.Close()
		close(s.stopped)
	}()

	s.logger.Info("mock backend listening", "addr", s.addr.String(), "prefix", s.cfg.Prefix)
	return nil
}

// Addr returns the bound listener address once Start has succeeded.
func (s *Server) Addr() net.Addr { return s.addr }

// Stopped is closed once a started server has shut down and its jobs ended.
func (s *Server) Stopped() <-chan struct{} { return s.stopped }

// Close abandons pending enrichment jobs and waits for their goroutines.
func (s *Server) Close() {
	s.jobCancel()
	s.jobs.Wait()
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defaultListLimit)
	if !ok {
		s.writeError(w, "list", http.StatusBadRequest, "invalid limit")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		s.writeError(w, "list", http.StatusBadRequest, "invalid offset")
		return
	}

	records, total, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("listing contacts", "error", err)
		s.writeError(w, "list", http.StatusInternalServerError, "failed to list contacts")
		return
	}

	resp := listResponse{
		Success:  true,
		Contacts: make([]contactJSON, 0, len(records)),
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}
	for _, rec := range records {
		resp.Contacts = append(resp.Contacts, toJSON(rec))
	}
	s.writeJSON(w, "list", http.StatusOK, resp)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&in); err != nil {
		s.writeError(w, "create", http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.Name == "" {
		s.writeError(w, "create", http.StatusBadRequest, "name is required")
		return
	}

	rec, err := s.store.Create(r.Context(), model.Contact{
		Name:        in.Name,
		Email:       in.Email,
		Title:       in.Title,
		Company:     in.Company,
		Phone:       in.Phone,
		LinkedInURL: in.LinkedInURL,
	})
	if err != nil {
		s.logger.Error("creating contact", "error", err)
		s.writeError(w, "create", http.StatusInternalServerError, "failed to create contact")
		return
	}
	s.writeJSON(w, "create", http.StatusCreated, detailResponse{Success: true, Contact: toJSON(rec)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, model.ErrNotFound) {
		s.writeError(w, "get", http.StatusNotFound, "Contact not found")
		return
	}
	if err != nil {
		s.logger.Error("reading contact", "error", err)
		s.writeError(w, "get", http.StatusInternalServerError, "failed to read contact")
		return
	}
	s.writeJSON(w, "get", http.StatusOK, detailResponse{Success: true, Contact: toJSON(rec)})
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.store.BeginEnrichment(r.Context(), id)
	switch {
	case errors.Is(err, model.ErrNotFound):
		s.writeError(w, "enrich", http.StatusNotFound, "Contact not found")
		return
	case errors.Is(err, model.ErrConflict):
		s.writeError(w, "enrich", http.StatusConflict, "Enrichment already in progress")
		return
	case err != nil:
		s.logger.Error("starting enrichment", "contact", id, "error", err)
		s.writeError(w, "enrich", http.StatusInternalServerError, "failed to start enrichment")
		return
	}

	s.jobs.Add(1)
	go s.runJob(id)

	s.logger.Info("enrichment started", "contact", id, "delay", s.cfg.EnrichDelay)
	s.writeJSON(w, "enrich", http.StatusAccepted, messageResponse{
		Success: true,
		Message: "Enrichment started",
		Status:  string(model.StatusProcessing),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Count(r.Context())
	if err != nil {
		s.writeError(w, "health", http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, "health", http.StatusOK, map[string]any{"status": "ok", "contacts": n})
}

func (s *Server) writeJSON(w http.ResponseWriter, route string, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "route", route, "error", err)
	}
	s.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (s *Server) writeError(w http.ResponseWriter, route string, status int, msg string) {
	s.writeJSON(w, route, status, messageResponse{Success: false, Error: msg})
}

func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
