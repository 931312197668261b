// Package ratelimit keeps the client's request rate to the backend bounded
// across every caller that shares one limiter.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/arcmetric/contactctl/internal/model"
)

// NewLimiter returns a token-bucket limiter allowing rps requests per second
// with the given burst. rps <= 0 disables limiting.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// LimitedFetcher waits for the shared limiter before delegating to the
// wrapped ContactFetcher. All poll sessions should share one limiter.
type LimitedFetcher struct {
	inner   model.ContactFetcher
	limiter *rate.Limiter
}

// NewLimitedFetcher wraps a ContactFetcher with rate limiting.
func NewLimitedFetcher(inner model.ContactFetcher, limiter *rate.Limiter) *LimitedFetcher {
	return &LimitedFetcher{inner: inner, limiter: limiter}
}

// FetchContact waits for a token, then fetches.
func (f *LimitedFetcher) FetchContact(ctx context.Context, id string) (model.Contact, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return model.Contact{}, fmt.Errorf("rate limiter wait for contact %s: %w", id, err)
	}
	return f.inner.FetchContact(ctx, id)
}

// LimitedLister is the listing counterpart of LimitedFetcher.
type LimitedLister struct {
	inner   model.ContactLister
	limiter *rate.Limiter
}

// NewLimitedLister wraps a ContactLister with rate limiting.
func NewLimitedLister(inner model.ContactLister, limiter *rate.Limiter) *LimitedLister {
	return &LimitedLister{inner: inner, limiter: limiter}
}

// ListContacts waits for a token, then lists.
func (l *LimitedLister) ListContacts(ctx context.Context, limit, offset int) (model.ContactPage, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return model.ContactPage{}, fmt.Errorf("rate limiter wait for listing: %w", err)
	}
	return l.inner.ListContacts(ctx, limit, offset)
}

// LimitedTrigger applies the same limiter to enrichment job submissions.
type LimitedTrigger struct {
	inner   model.EnrichmentTrigger
	limiter *rate.Limiter
}

// NewLimitedTrigger wraps an EnrichmentTrigger with rate limiting.
func NewLimitedTrigger(inner model.EnrichmentTrigger, limiter *rate.Limiter) *LimitedTrigger {
	return &LimitedTrigger{inner: inner, limiter: limiter}
}

// StartEnrichment waits for a token, then submits the job.
func (t *LimitedTrigger) StartEnrichment(ctx context.Context, id string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for enrich %s: %w", id, err)
	}
	return t.inner.StartEnrichment(ctx, id)
}
