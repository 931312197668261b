package enrichment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arcmetric/contactctl/internal/model"
	"github.com/arcmetric/contactctl/internal/poller"
)

// --- Fakes ---

type fakeTrigger struct {
	mu    sync.Mutex
	err   error
	gate  chan struct{} // when set, StartEnrichment blocks until closed
	calls []string
}

func (f *fakeTrigger) StartEnrichment(ctx context.Context, id string) error {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	gate := f.gate
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeTrigger) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type read struct {
	status model.EnrichmentStatus
	err    error
}

// scriptedFetcher replays reads in order; the last entry repeats.
type scriptedFetcher struct {
	mu     sync.Mutex
	script []read
	calls  int
}

func (f *scriptedFetcher) FetchContact(_ context.Context, id string) (model.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	r := f.script[min(f.calls-1, len(f.script)-1)]
	if r.err != nil {
		return model.Contact{}, r.err
	}
	return model.Contact{ID: id, Name: "Ada Lovelace", Status: r.status}, nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stallingFetcher fails the first read and blocks every later one until its
// context ends. entered receives once per blocked read.
type stallingFetcher struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
}

func (f *stallingFetcher) FetchContact(ctx context.Context, id string) (model.Contact, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()
	if first {
		return model.Contact{}, transportErr
	}
	f.entered <- struct{}{}
	<-ctx.Done()
	return model.Contact{}, ctx.Err()
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []model.Outcome
}

func (n *recordingNotifier) Notify(_ context.Context, o model.Outcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, o)
	return nil
}

func (n *recordingNotifier) Outcomes() []model.Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Outcome(nil), n.outcomes...)
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var transportErr = &model.TransportError{Op: "fetch contact", Err: errors.New("connection refused")}

func newController(t *testing.T, trigger model.EnrichmentTrigger, fetcher model.ContactFetcher, interval time.Duration, maxAttempts int, opts ...Option) *Controller {
	t.Helper()
	c, err := NewController(trigger, fetcher, poller.Config{Interval: interval, MaxAttempts: maxAttempts}, discardLogger(), opts...)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func request(t *testing.T, c *Controller, id string) *Enrichment {
	t.Helper()
	e, err := c.Request(context.Background(), id)
	if err != nil {
		t.Fatalf("Request(%q): %v", id, err)
	}
	return e
}

func wait(t *testing.T, e *Enrichment) Update {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	u, err := e.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return u
}

// drain reads ch until it is closed.
func drain(t *testing.T, ch <-chan Update) []Update {
	t.Helper()
	var updates []Update
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return updates
			}
			updates = append(updates, u)
		case <-deadline:
			t.Fatalf("update stream not closed; got %d updates", len(updates))
		}
	}
}

// --- Tests ---

func TestController_CompletesAndNotifies(t *testing.T) {
	fetcher := &scriptedFetcher{script: []read{
		{status: model.StatusProcessing},
		{status: model.StatusProcessing},
		{status: model.StatusCompleted},
	}}
	notifier := &recordingNotifier{}
	c := newController(t, &fakeTrigger{}, fetcher, 5*time.Millisecond, 10, WithNotifier(notifier))

	e := request(t, c, "42")
	updates := drain(t, e.Updates())

	var terminal []Update
	for _, u := range updates {
		if u.Terminal() {
			terminal = append(terminal, u)
		}
	}
	if len(terminal) != 1 {
		t.Fatalf("expected exactly one terminal update, got %d", len(terminal))
	}
	last := updates[len(updates)-1]
	if last.State != poller.Completed {
		t.Fatalf("expected Completed, got %s", last.State)
	}
	if last.Contact == nil || last.Contact.Status != model.StatusCompleted {
		t.Fatalf("expected completed contact on final update, got %+v", last.Contact)
	}
	if last.SessionID == uuid.Nil {
		t.Error("expected session id on polled update")
	}
	if last.Attempt != 3 {
		t.Errorf("expected attempt 3, got %d", last.Attempt)
	}
	if fetcher.Calls() != 3 {
		t.Errorf("expected 3 fetches (no refetch after a fresh read), got %d", fetcher.Calls())
	}

	c.Close()
	got := notifier.Outcomes()
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
	if got[0].State != "completed" || got[0].ContactID != "42" || got[0].Attempts != 3 {
		t.Errorf("unexpected outcome: %+v", got[0])
	}
}

func TestController_TriggerTransportFailure(t *testing.T) {
	fetcher := &scriptedFetcher{script: []read{{status: model.StatusCompleted}}}
	notifier := &recordingNotifier{}
	c := newController(t, &fakeTrigger{err: transportErr}, fetcher, 5*time.Millisecond, 10, WithNotifier(notifier))

	e := request(t, c, "42")
	u := wait(t, e)

	if u.State != poller.Failed {
		t.Fatalf("expected Failed, got %s", u.State)
	}
	if !u.HardFailure() {
		t.Error("expected hard failure")
	}
	if u.Outcome() != "trigger_failed" {
		t.Errorf("expected outcome trigger_failed, got %q", u.Outcome())
	}
	var te *model.TransportError
	if !errors.As(u.Err, &te) {
		t.Errorf("expected TransportError in chain, got %v", u.Err)
	}
	if fetcher.Calls() != 0 {
		t.Errorf("expected zero status fetches, got %d", fetcher.Calls())
	}
	if _, ok := c.Active("42"); ok {
		t.Error("expected no active request after hard failure")
	}

	c.Close()
	if got := notifier.Outcomes(); len(got) != 1 || got[0].State != "trigger_failed" {
		t.Errorf("expected trigger_failed notification, got %+v", got)
	}
}

func TestController_TriggerNotFound(t *testing.T) {
	fetcher := &scriptedFetcher{script: []read{{status: model.StatusCompleted}}}
	c := newController(t, &fakeTrigger{err: model.ErrNotFound}, fetcher, 5*time.Millisecond, 10)

	u := wait(t, request(t, c, "missing"))
	if !u.HardFailure() || !errors.Is(u.Err, model.ErrNotFound) {
		t.Fatalf("expected hard failure wrapping ErrNotFound, got %+v", u)
	}
	if fetcher.Calls() != 0 {
		t.Errorf("expected zero status fetches, got %d", fetcher.Calls())
	}
}

func TestController_ConflictStillPolls(t *testing.T) {
	fetcher := &scriptedFetcher{script: []read{
		{status: model.StatusProcessing},
		{status: model.StatusCompleted},
	}}
	c := newController(t, &fakeTrigger{err: model.ErrConflict}, fetcher, 5*time.Millisecond, 10)

	u := wait(t, request(t, c, "42"))
	if u.State != poller.Completed {
		t.Fatalf("expected Completed, got %s", u.State)
	}
	if !u.Conflict {
		t.Error("expected Conflict flag on updates")
	}
	if u.Err != nil {
		t.Errorf("expected no error, got %v", u.Err)
	}
}

func TestController_FailedStatus(t *testing.T) {
	fetcher := &scriptedFetcher{script: []read{
		{status: model.StatusProcessing},
		{status: model.StatusFailed},
	}}
	c := newController(t, &fakeTrigger{}, fetcher, 5*time.Millisecond, 10)

	u := wait(t, request(t, c, "42"))
	if u.State != poller.Failed {
		t.Fatalf("expected Failed, got %s", u.State)
	}
	if u.HardFailure() {
		t.Error("a failed job is not a hard failure")
	}
	if u.Outcome() != "failed" {
		t.Errorf("expected outcome failed, got %q", u.Outcome())
	}
}

func TestController_RefetchAfterFailedLastTick(t *testing.T) {
	fetcher := &scriptedFetcher{script: []read{
		{status: model.StatusProcessing},
		{err: transportErr},
		{err: transportErr},
		{status: model.StatusCompleted}, // served by the final read
	}}
	c := newController(t, &fakeTrigger{}, fetcher, 5*time.Millisecond, 3)

	u := wait(t, request(t, c, "42"))
	if u.State != poller.TimedOut {
		t.Fatalf("expected TimedOut, got %s", u.State)
	}
	if fetcher.Calls() != 4 {
		t.Fatalf("expected 3 ticks plus one final read, got %d fetches", fetcher.Calls())
	}
	if u.Contact == nil || u.Contact.Status != model.StatusCompleted {
		t.Errorf("expected final update to carry the refetched contact, got %+v", u.Contact)
	}
}

func TestController_NoRefetchAfterFreshRead(t *testing.T) {
	fetcher := &scriptedFetcher{script: []read{{status: model.StatusProcessing}}}
	c := newController(t, &fakeTrigger{}, fetcher, 5*time.Millisecond, 3)

	u := wait(t, request(t, c, "42"))
	if u.State != poller.TimedOut {
		t.Fatalf("expected TimedOut, got %s", u.State)
	}
	if u.Attempt != 3 {
		t.Errorf("expected attempt 3, got %d", u.Attempt)
	}
	if fetcher.Calls() != 3 {
		t.Errorf("expected exactly 3 fetches, got %d", fetcher.Calls())
	}
	if u.Contact == nil || u.Contact.Status != model.StatusProcessing {
		t.Errorf("expected last read contact, got %+v", u.Contact)
	}
}

func TestController_SecondRequestCancelsFirst(t *testing.T) {
	fetcher := &scriptedFetcher{script: []read{{status: model.StatusProcessing}}}
	c := newController(t, &fakeTrigger{}, fetcher, 10*time.Millisecond, 1000)

	first := request(t, c, "42")
	second := request(t, c, "42")

	u := wait(t, first)
	if u.State != poller.Cancelled {
		t.Fatalf("expected first request Cancelled, got %s", u.State)
	}
	active, ok := c.Active("42")
	if !ok || active != second {
		t.Fatal("expected second request to own the contact")
	}
	select {
	case <-second.Done():
		t.Fatal("second request should still be running")
	default:
	}

	second.Cancel()
	if u := wait(t, second); u.State != poller.Cancelled {
		t.Fatalf("expected second request Cancelled, got %s", u.State)
	}
	if _, ok := c.Active("42"); ok {
		t.Error("expected no active request after cancel")
	}
}

func TestController_DifferentContactsRunIndependently(t *testing.T) {
	fetcher := &scriptedFetcher{script: []read{{status: model.StatusProcessing}}}
	c := newController(t, &fakeTrigger{}, fetcher, 10*time.Millisecond, 1000)

	a := request(t, c, "1")
	b := request(t, c, "2")

	if !c.Cancel("1") {
		t.Fatal("expected Cancel to find request 1")
	}
	if u := wait(t, a); u.State != poller.Cancelled {
		t.Fatalf("expected Cancelled, got %s", u.State)
	}
	select {
	case <-b.Done():
		t.Fatal("request 2 should be unaffected")
	default:
	}
}

func TestController_CancelDuringTrigger(t *testing.T) {
	trigger := &fakeTrigger{gate: make(chan struct{})}
	fetcher := &scriptedFetcher{script: []read{{status: model.StatusCompleted}}}
	c := newController(t, trigger, fetcher, 5*time.Millisecond, 10)

	done := make(chan *Enrichment, 1)
	go func() {
		e, _ := c.Request(context.Background(), "42")
		done <- e
	}()

	var e *Enrichment
	deadline := time.Now().Add(2 * time.Second)
	for {
		if active, ok := c.Active("42"); ok {
			e = active
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("request never became active")
		}
		time.Sleep(time.Millisecond)
	}

	e.Cancel()
	close(trigger.gate)

	returned := <-done
	if returned != e {
		t.Fatal("expected Request to return the cancelled handle")
	}
	if u := wait(t, e); u.State != poller.Cancelled {
		t.Fatalf("expected Cancelled, got %s", u.State)
	}

	// Give a wrongly started session time to poll.
	time.Sleep(30 * time.Millisecond)
	if fetcher.Calls() != 0 {
		t.Errorf("expected no status fetches after cancellation, got %d", fetcher.Calls())
	}
}

func TestController_CloseCancelsAll(t *testing.T) {
	fetcher := &scriptedFetcher{script: []read{{status: model.StatusProcessing}}}
	notifier := &recordingNotifier{}
	c := newController(t, &fakeTrigger{}, fetcher, 10*time.Millisecond, 1000, WithNotifier(notifier))

	a := request(t, c, "1")
	b := request(t, c, "2")
	c.Close()

	for _, e := range []*Enrichment{a, b} {
		if u := wait(t, e); u.State != poller.Cancelled {
			t.Errorf("contact %s: expected Cancelled, got %s", e.ContactID(), u.State)
		}
	}
	if _, err := c.Request(context.Background(), "3"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if got := notifier.Outcomes(); len(got) != 0 {
		t.Errorf("cancelled requests should not notify, got %+v", got)
	}
}

func TestController_CloseWaitsForFinalRead(t *testing.T) {
	fetcher := &stallingFetcher{entered: make(chan struct{}, 1)}
	notifier := &recordingNotifier{}
	c := newController(t, &fakeTrigger{}, fetcher, 5*time.Millisecond, 1, WithNotifier(notifier))

	e := request(t, c, "42")
	select {
	case <-fetcher.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("final read never started")
	}

	// The session is already terminal; Close must wait for the final read
	// to be abandoned and the outcome to be reported.
	c.Close()

	u, ok := e.Result()
	if !ok {
		t.Fatal("expected the request to be finished when Close returns")
	}
	if u.State != poller.TimedOut {
		t.Errorf("expected TimedOut, got %s", u.State)
	}
	got := notifier.Outcomes()
	if len(got) != 1 || got[0].State != "timed_out" {
		t.Fatalf("expected one timed_out notification by the time Close returns, got %+v", got)
	}
}

func TestController_CloseAbortsTrigger(t *testing.T) {
	trigger := &fakeTrigger{gate: make(chan struct{})}
	fetcher := &scriptedFetcher{script: []read{{status: model.StatusCompleted}}}
	notifier := &recordingNotifier{}
	c := newController(t, trigger, fetcher, 5*time.Millisecond, 10, WithNotifier(notifier))

	done := make(chan *Enrichment, 1)
	go func() {
		e, _ := c.Request(context.Background(), "42")
		done <- e
	}()
	deadline := time.Now().Add(2 * time.Second)
	for trigger.Calls() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("trigger never called")
		}
		time.Sleep(time.Millisecond)
	}

	c.Close()

	e := <-done
	if u, ok := e.Result(); !ok || u.State != poller.Cancelled {
		t.Fatalf("expected Cancelled when Close returns, got %+v (finished=%v)", u, ok)
	}
	if fetcher.Calls() != 0 {
		t.Errorf("expected no status fetches, got %d", fetcher.Calls())
	}
	if got := notifier.Outcomes(); len(got) != 0 {
		t.Errorf("cancelled request should not notify, got %+v", got)
	}
}

func TestController_UpdatesKeepEveryTransition(t *testing.T) {
	const maxAttempts = 40
	fetcher := &scriptedFetcher{script: []read{{status: model.StatusProcessing}}}
	c := newController(t, &fakeTrigger{}, fetcher, time.Millisecond, maxAttempts)

	e := request(t, c, "42")
	wait(t, e)

	updates := drain(t, e.Updates())
	if len(updates) != maxAttempts+1 {
		t.Fatalf("got %d updates, want %d", len(updates), maxAttempts+1)
	}
	for i, u := range updates[:maxAttempts] {
		if u.State != poller.Running || u.Attempt != i {
			t.Fatalf("update %d = %s attempt %d, want running attempt %d", i, u.State, u.Attempt, i)
		}
	}
	if last := updates[maxAttempts]; last.State != poller.TimedOut {
		t.Errorf("last update = %s, want timed_out", last.State)
	}
}

func TestController_LateSubscriberSeesTerminal(t *testing.T) {
	fetcher := &scriptedFetcher{script: []read{{status: model.StatusCompleted}}}
	c := newController(t, &fakeTrigger{}, fetcher, 5*time.Millisecond, 10)

	e := request(t, c, "42")
	wait(t, e)

	updates := drain(t, e.Subscribe())
	if len(updates) != 1 || updates[0].State != poller.Completed {
		t.Fatalf("expected only the terminal update, got %+v", updates)
	}
}

func TestController_Validation(t *testing.T) {
	if _, err := NewController(&fakeTrigger{}, &scriptedFetcher{}, poller.Config{}, discardLogger()); err == nil {
		t.Error("expected error for zero config")
	}

	c := newController(t, &fakeTrigger{}, &scriptedFetcher{}, time.Second, 1)
	if _, err := c.Request(context.Background(), ""); err == nil {
		t.Error("expected error for empty contact id")
	}
}
