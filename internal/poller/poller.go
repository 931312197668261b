package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcmetric/contactctl/internal/model"
	"github.com/arcmetric/contactctl/internal/pubsub"
)

// subscriberBuffer is the per-subscriber event buffer. Running ticks are
// dropped for a subscriber whose buffer is full; terminal events never are.
const subscriberBuffer = 16

// Event is emitted on every state transition of a Session.
type Event struct {
	SessionID   uuid.UUID
	ContactID   string
	State       State
	Attempt     int
	MaxAttempts int
	Contact     *model.Contact // read made by this tick; nil when the tick's fetch failed
	Err         error          // absorbed fetch error for this tick
	At          time.Time
}

// Session polls one contact until its enrichment reaches a terminal status,
// the attempt ceiling is hit, or it is cancelled.
//
// Ticks run strictly one after another on a single goroutine, so there is never
// more than one fetch in flight per session. A Session is single-use: once it
// is terminal it must be discarded.
type Session struct {
	id        uuid.UUID
	contactID string
	cfg       Config
	fetcher   model.ContactFetcher
	logger    *slog.Logger

	events *pubsub.Hub[Event]

	mu      sync.Mutex
	state   State
	attempt int
	cancel  context.CancelFunc
	final   Event
	started time.Time
	done    chan struct{}
}

// New creates an Idle session for contactID.
func New(contactID string, cfg Config, fetcher model.ContactFetcher, logger *slog.Logger) (*Session, error) {
	if contactID == "" {
		return nil, errors.New("poll session: contact id is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("poll session: %w", err)
	}
	id := uuid.New()
	return &Session{
		id:        id,
		contactID: contactID,
		cfg:       cfg,
		fetcher:   fetcher,
		logger:    logger.With("session", shortID(id), "contact", contactID),
		events:    pubsub.NewHub[Event](subscriberBuffer),
		state:     Idle,
		done:      make(chan struct{}),
	}, nil
}

// ID returns the session's unique id.
func (s *Session) ID() uuid.UUID { return s.id }

// ContactID returns the contact being polled.
func (s *Session) ContactID() string { return s.contactID }

// Config returns the bounds the session was created with.
func (s *Session) Config() Config { return s.cfg }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempt returns the number of status checks performed so far.
func (s *Session) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Start moves the session from Idle to Running and schedules the first check
// one interval from now. Cancelling ctx cancels the session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return fmt.Errorf("start session for %s: %w (state %s)", s.contactID, ErrNotIdle, s.state)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.attempt = 0
	s.started = time.Now()
	s.transitionLocked(Event{State: Running})

	s.logger.Debug("poll session started",
		"interval", s.cfg.Interval.String(),
		"max_attempts", s.cfg.MaxAttempts,
	)

	go s.run(runCtx)
	return nil
}

// Cancel stops the session. The pending check is suppressed, an in-flight
// fetch is aborted, and a response that still arrives is discarded.
// Cancel on a terminal session is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.transitionLocked(Event{State: Cancelled, Attempt: s.attempt})
}

// Subscribe returns a channel of state-change events. The channel receives
// exactly one terminal event and is then closed. Running events may be
// dropped for a reader that falls more than a few events behind. Subscribing
// to a terminal session yields just its terminal event.
func (s *Session) Subscribe() <-chan Event {
	return s.events.Subscribe()
}

// SubscribeAll is Subscribe without drops: the channel is sized for every
// event the session can emit, so it receives one event per transition
// however slowly it is read.
func (s *Session) SubscribeAll() <-chan Event {
	return s.events.SubscribeBuffered(s.cfg.MaxEvents())
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Session) Unsubscribe(ch <-chan Event) {
	s.events.Unsubscribe(ch)
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the terminal event, if the session has finished.
func (s *Session) Result() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final, s.state.Terminal()
}

// Wait blocks until the session is terminal or ctx is done.
func (s *Session) Wait(ctx context.Context) (Event, error) {
	select {
	case <-s.done:
		ev, _ := s.Result()
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (s *Session) run(ctx context.Context) {
	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.abort()
			return
		case <-timer.C:
		}

		if !s.tick(ctx) {
			return
		}
		timer.Reset(s.cfg.Interval)
	}
}

// tick performs one status check and applies the termination rules.
// It returns false once the session is terminal.
func (s *Session) tick(ctx context.Context) bool {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return false
	}
	s.attempt++
	attempt := s.attempt
	s.mu.Unlock()

	contact, err := s.fetcher.FetchContact(ctx, s.contactID)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Cancelled while the fetch was in flight: drop the response.
	if s.state != Running {
		return false
	}
	if err != nil && ctx.Err() != nil {
		s.transitionLocked(Event{State: Cancelled, Attempt: attempt})
		return false
	}

	ev := Event{Attempt: attempt}
	if err != nil {
		ev.Err = err
		s.logger.Warn("status check failed", "attempt", attempt, "error", err)
	} else {
		ev.Contact = &contact
	}

	switch {
	case err == nil && contact.Status == model.StatusCompleted:
		ev.State = Completed
	case err == nil && contact.Status == model.StatusFailed:
		ev.State = Failed
	case attempt >= s.cfg.MaxAttempts:
		ev.State = TimedOut
	default:
		ev.State = Running
	}

	s.transitionLocked(ev)
	return !ev.State.Terminal()
}

// abort handles cancellation of the parent context between ticks.
func (s *Session) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.transitionLocked(Event{State: Cancelled, Attempt: s.attempt})
}

// transitionLocked records ev as the new state and fans it out. Must be
// called with s.mu held.
func (s *Session) transitionLocked(ev Event) {
	ev.SessionID = s.id
	ev.ContactID = s.contactID
	ev.MaxAttempts = s.cfg.MaxAttempts
	ev.At = time.Now()
	s.state = ev.State

	if !ev.State.Terminal() {
		if dropped := s.events.Publish(ev); dropped > 0 {
			s.logger.Debug("subscribers lagging, dropped progress event", "attempt", ev.Attempt, "dropped", dropped)
		}
		return
	}

	s.final = ev
	if s.cancel != nil {
		s.cancel()
	}
	s.events.Close(ev)
	close(s.done)

	s.logger.Info("poll session finished",
		"state", ev.State.String(),
		"attempts", ev.Attempt,
		"elapsed", s.elapsedLocked(ev.At).String(),
	)
}

func (s *Session) elapsedLocked(now time.Time) time.Duration {
	if s.started.IsZero() {
		return 0
	}
	return now.Sub(s.started)
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
