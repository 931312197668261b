package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/arcmetric/contactctl/internal/model"
)

// Policy controls how transient read failures are retried.
// MaxRetries is the number of additional attempts after the first failure.
// BaseDelay is the delay before the first retry, doubled on each later one.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// RetryFetcher retries transient FetchContact failures with exponential
// backoff and jitter. It is meant for one-shot reads; poll sessions absorb
// failed ticks instead.
type RetryFetcher struct {
	inner  model.ContactFetcher
	policy Policy
	logger *slog.Logger
}

// NewRetryFetcher wraps a ContactFetcher with retry logic.
func NewRetryFetcher(inner model.ContactFetcher, policy Policy, logger *slog.Logger) *RetryFetcher {
	return &RetryFetcher{inner: inner, policy: policy, logger: logger}
}

// FetchContact fetches one contact, retrying on transient errors.
func (f *RetryFetcher) FetchContact(ctx context.Context, id string) (model.Contact, error) {
	return do(ctx, f.policy, f.logger.With("contact", id), func() (model.Contact, error) {
		return f.inner.FetchContact(ctx, id)
	})
}

// RetryLister is the listing counterpart of RetryFetcher.
type RetryLister struct {
	inner  model.ContactLister
	policy Policy
	logger *slog.Logger
}

// NewRetryLister wraps a ContactLister with retry logic.
func NewRetryLister(inner model.ContactLister, policy Policy, logger *slog.Logger) *RetryLister {
	return &RetryLister{inner: inner, policy: policy, logger: logger}
}

// ListContacts lists one page of contacts, retrying on transient errors.
func (l *RetryLister) ListContacts(ctx context.Context, limit, offset int) (model.ContactPage, error) {
	return do(ctx, l.policy, l.logger, func() (model.ContactPage, error) {
		return l.inner.ListContacts(ctx, limit, offset)
	})
}

func do[T any](ctx context.Context, p Policy, logger *slog.Logger, call func() (T, error)) (T, error) {
	v, err := call()
	if err == nil || !isRetryable(err) {
		return v, err
	}

	lastErr := err
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		delay := p.backoffDelay(attempt, lastErr)

		logger.Warn("retrying after transient error",
			"attempt", attempt,
			"max_retries", p.MaxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		v, err = call()
		if err == nil || !isRetryable(err) {
			return v, err
		}
		lastErr = err
	}

	var zero T
	return zero, lastErr
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// A Retry-After from the server takes precedence.
func (p Policy) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}

// isRetryable reports whether err is a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrConflict) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}

	// Network, DNS and other non-HTTP failures.
	return true
}
