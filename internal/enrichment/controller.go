package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arcmetric/contactctl/internal/metrics"
	"github.com/arcmetric/contactctl/internal/model"
	"github.com/arcmetric/contactctl/internal/poller"
)

// ErrClosed is returned by Request after Close.
var ErrClosed = errors.New("enrichment controller closed")

// finalFetchTimeout bounds the read made after a session ends without a fresh read.
const finalFetchTimeout = 10 * time.Second

// Controller starts enrichment jobs and observes them to completion. It is the
// single owner of "is enrichment for contact X in flight": at most one request
// per contact is live at any time.
type Controller struct {
	trigger  model.EnrichmentTrigger
	fetcher  model.ContactFetcher
	cfg      poller.Config
	notifier model.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup // Request calls and forward goroutines
	notify  sync.WaitGroup

	mu     sync.Mutex
	active map[string]*Enrichment
	closed bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier reports every non-cancelled outcome to n.
func WithNotifier(n model.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithMetrics records request and session activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController wires a trigger and a fetcher into a controller that polls
// with cfg.
func NewController(trigger model.EnrichmentTrigger, fetcher model.ContactFetcher, cfg poller.Config, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("enrichment controller: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		trigger: trigger,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]*Enrichment),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the poll bounds used for new requests.
func (c *Controller) Config() poller.Config { return c.cfg }

// Request starts enrichment for id and returns a handle to observe it.
//
// Any live request for the same contact is cancelled first. ctx bounds the
// trigger call only; the poll session runs until it finishes, is cancelled,
// or the controller is closed. A failed trigger call ends the request with a
// hard-failure update and no status reads. A conflict (job already running)
// is treated as accepted. Closing the controller aborts an in-flight trigger
// call and the request ends Cancelled.
func (c *Controller) Request(ctx context.Context, id string) (*Enrichment, error) {
	if id == "" {
		return nil, errors.New("request enrichment: contact id is required")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	prev := c.active[id]
	e := newEnrichment(id, c)
	c.active[id] = e
	c.workers.Add(1)
	c.mu.Unlock()
	defer c.workers.Done()

	if prev != nil {
		c.logger.Info("superseding enrichment request", "contact", id)
		prev.Cancel()
	}

	c.logger.Info("requesting enrichment", "contact", id)

	tctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	err := c.trigger.StartEnrichment(tctx, id)
	conflict := errors.Is(err, model.ErrConflict)
	switch {
	case err != nil && !conflict && c.ctx.Err() != nil:
		e.finish(Update{ContactID: id, State: poller.Cancelled})
		return e, nil
	case conflict:
		c.logger.Info("enrichment already in progress, polling", "contact", id)
	case err != nil:
		c.logger.Error("enrichment trigger failed", "contact", id, "error", err)
		e.finish(Update{
			ContactID: id,
			State:     poller.Failed,
			Err:       fmt.Errorf("start enrichment for %s: %w", id, err),
		})
		return e, nil
	}

	session, err := poller.New(id, c.cfg, c.fetcher, c.logger)
	if err != nil {
		e.finish(Update{ContactID: id, State: poller.Failed, Err: err})
		return e, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Superseded or cancelled while the trigger call was in flight.
	if c.active[id] != e || !e.attach(session, conflict) {
		e.finish(Update{ContactID: id, State: poller.Cancelled})
		return e, nil
	}

	events := session.SubscribeAll()
	if err := session.Start(c.ctx); err != nil {
		session.Unsubscribe(events)
		e.finish(Update{ContactID: id, State: poller.Failed, Err: err})
		return e, nil
	}
	c.metrics.SessionStarted()
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		e.forward(events)
	}()

	return e, nil
}

// Active returns the live request for id, if any.
func (c *Controller) Active(id string) (*Enrichment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.active[id]
	return e, ok
}

// Cancel cancels the live request for id. It reports whether one existed.
func (c *Controller) Cancel(id string) bool {
	e, ok := c.Active(id)
	if !ok {
		return false
	}
	e.Cancel()
	return true
}

// Close cancels every live request and refuses new ones. It returns once every
// request has published its final update and its notification was delivered.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	live := make([]*Enrichment, 0, len(c.active))
	for _, e := range c.active {
		live = append(live, e)
	}
	c.mu.Unlock()

	for _, e := range live {
		e.Cancel()
	}
	c.cancel()
	// Every report call happens on a worker, so notify has no more Adds after this.
	c.workers.Wait()
	c.notify.Wait()
}

// release drops e from the active set if it still owns its contact's slot.
func (c *Controller) release(e *Enrichment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[e.contactID] == e {
		delete(c.active, e.contactID)
	}
}

// finalRead fetches the contact once more so the final update reflects the
// freshest state. On failure it returns nil.
func (c *Controller) finalRead(id string) *model.Contact {
	ctx, cancel := context.WithTimeout(c.ctx, finalFetchTimeout)
	defer cancel()
	contact, err := c.fetcher.FetchContact(ctx, id)
	if err != nil {
		c.logger.Warn("final contact read failed", "contact", id, "error", err)
		return nil
	}
	return &contact
}

func (c *Controller) report(u Update, elapsed time.Duration) {
	c.metrics.RequestFinished(u.Outcome(), elapsed)

	if c.notifier == nil || u.State == poller.Cancelled {
		return
	}
	c.notify.Add(1)
	go func() {
		defer c.notify.Done()
		outcome := model.Outcome{
			ContactID: u.ContactID,
			State:     u.Outcome(),
			Attempts:  u.Attempt,
			Contact:   u.Contact,
			Err:       u.Err,
			Elapsed:   elapsed,
		}
		if err := c.notifier.Notify(context.Background(), outcome); err != nil {
			c.logger.Error("enrichment notification failed", "contact", u.ContactID, "error", err)
		}
	}()
}
