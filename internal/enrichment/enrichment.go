package enrichment

import (
	"context"
	"sync"
	"time"

	"github.com/arcmetric/contactctl/internal/model"
	"github.com/arcmetric/contactctl/internal/poller"
	"github.com/arcmetric/contactctl/internal/pubsub"
)

const updateBuffer = 16

// Enrichment is the handle for one enrichment request.
type Enrichment struct {
	contactID string
	ctrl      *Controller
	updates   *pubsub.Hub[Update]
	first     <-chan Update
	started   time.Time
	done      chan struct{}

	mu        sync.Mutex
	session   *poller.Session
	conflict  bool
	cancelled bool
	final     Update
	finished  bool
}

func newEnrichment(id string, ctrl *Controller) *Enrichment {
	hub := pubsub.NewHub[Update](updateBuffer)
	return &Enrichment{
		contactID: id,
		ctrl:      ctrl,
		updates:   hub,
		first:     hub.SubscribeBuffered(ctrl.cfg.MaxEvents()),
		started:   time.Now(),
		done:      make(chan struct{}),
	}
}

// ContactID returns the contact being enriched.
func (e *Enrichment) ContactID() string { return e.contactID }

// Updates returns the subscription created with the request. It is sized for
// every update the request can produce, so it carries one update per
// transition even when read late, and closes after the terminal update.
func (e *Enrichment) Updates() <-chan Update { return e.first }

// Subscribe adds another observer. Late subscribers see only updates from
// now on, or just the terminal update once the request is finished. Progress
// updates may be dropped for an observer that lags; the terminal one never is.
func (e *Enrichment) Subscribe() <-chan Update { return e.updates.Subscribe() }

// Done is closed when the request reaches a terminal state.
func (e *Enrichment) Done() <-chan struct{} { return e.done }

// Result returns the terminal update, if the request has finished.
func (e *Enrichment) Result() (Update, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.final, e.finished
}

// Wait blocks until the request is terminal or ctx is done.
func (e *Enrichment) Wait(ctx context.Context) (Update, error) {
	select {
	case <-e.done:
		u, _ := e.Result()
		return u, nil
	case <-ctx.Done():
		return Update{}, ctx.Err()
	}
}

// Cancel stops the request. No further status reads are issued and the
// request ends Cancelled unless it already finished.
func (e *Enrichment) Cancel() {
	e.mu.Lock()
	if e.cancelled || e.finished {
		e.mu.Unlock()
		return
	}
	e.cancelled = true
	session := e.session
	e.mu.Unlock()

	e.ctrl.release(e)
	if session != nil {
		// forward delivers the session's Cancelled event.
		session.Cancel()
		return
	}
	e.finish(Update{ContactID: e.contactID, State: poller.Cancelled})
}

// attach binds the poll session unless the request was cancelled meanwhile.
func (e *Enrichment) attach(s *poller.Session, conflict bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelled {
		return false
	}
	e.session = s
	e.conflict = conflict
	return true
}

// forward relays poll events until the session is terminal.
func (e *Enrichment) forward(events <-chan poller.Event) {
	var latest *model.Contact
	for ev := range events {
		if ev.Attempt > 0 && ev.State != poller.Cancelled {
			e.ctrl.metrics.TickObserved(ev.Err)
		}
		if ev.Contact != nil {
			latest = ev.Contact
		}

		u := e.fromEvent(ev)
		if !ev.State.Terminal() {
			e.updates.Publish(u)
			continue
		}

		e.ctrl.metrics.SessionEnded()
		if ev.State != poller.Cancelled && ev.Contact == nil {
			// The last tick did not produce a fresh read.
			if fresh := e.ctrl.finalRead(e.contactID); fresh != nil {
				u.Contact = fresh
			} else {
				u.Contact = latest
			}
		}
		e.finish(u)
	}
}

func (e *Enrichment) fromEvent(ev poller.Event) Update {
	e.mu.Lock()
	conflict := e.conflict
	e.mu.Unlock()
	return Update{
		ContactID:   ev.ContactID,
		SessionID:   ev.SessionID,
		State:       ev.State,
		Attempt:     ev.Attempt,
		MaxAttempts: ev.MaxAttempts,
		Contact:     ev.Contact,
		Err:         ev.Err,
		Conflict:    conflict,
		At:          ev.At,
	}
}

// finish publishes the terminal update exactly once.
func (e *Enrichment) finish(u Update) {
	if u.At.IsZero() {
		u.At = time.Now()
	}
	if u.ContactID == "" {
		u.ContactID = e.contactID
	}
	if u.State == poller.Cancelled {
		// Cancellation carries no absorbed tick error.
		u.Err = nil
	}

	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return
	}
	e.finished = true
	e.final = u
	e.mu.Unlock()

	e.ctrl.release(e)

	elapsed := u.At.Sub(e.started)
	e.ctrl.logger.Info("enrichment finished",
		"contact", e.contactID,
		"outcome", u.Outcome(),
		"attempts", u.Attempt,
		"elapsed", elapsed.String(),
	)
	// Reported before observers are released.
	e.ctrl.report(u, elapsed)

	e.updates.Close(u)
	close(e.done)
}
