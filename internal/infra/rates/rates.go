// Package rates provides the cached KES/BTC conversion rate.
//
// The engine reads the rate exactly once per goal, at creation time. Reads
// are served from a cache; the scheduler's one-minute price-refresh job
// calls Refresh, which pulls from an optional fetcher (the out-of-scope
// price-feed collaborator). Without a fetcher the provider is a static
// source seeded with the configured rate. A stale rate is never
// back-propagated into existing goals.
package rates

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Fetcher pulls a fresh KES-per-BTC rate from an external feed.
type Fetcher interface {
	FetchRate(ctx context.Context) (float64, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context) (float64, error)

// FetchRate implements Fetcher.
func (f FetcherFunc) FetchRate(ctx context.Context) (float64, error) { return f(ctx) }

// Provider is a cached rate source. It satisfies domain.RateSource.
type Provider struct {
	mu        sync.RWMutex
	rate      float64
	updatedAt time.Time
	fetcher   Fetcher // nil = static provider
	now       func() time.Time
}

// New creates a provider seeded with a fallback rate. fetcher may be nil.
func New(seedRate float64, fetcher Fetcher) *Provider {
	return &Provider{
		rate:    seedRate,
		fetcher: fetcher,
		now:     time.Now,
	}
}

// Rate returns the cached KES-per-BTC rate.
func (p *Provider) Rate() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rate
}

// UpdatedAt returns when the cached rate was last refreshed (zero for a
// never-refreshed seed).
func (p *Provider) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

// Refresh pulls a fresh rate from the fetcher. A nil fetcher or a
// non-positive fetched rate leaves the cache untouched.
func (p *Provider) Refresh(ctx context.Context) error {
	if p.fetcher == nil {
		return nil
	}
	rate, err := p.fetcher.FetchRate(ctx)
	if err != nil {
		return fmt.Errorf("fetch rate: %w", err)
	}
	if rate <= 0 {
		return fmt.Errorf("fetched rate %v is not positive", rate)
	}
	p.mu.Lock()
	p.rate = rate
	p.updatedAt = p.now()
	p.mu.Unlock()
	log.Printf("[rates] refreshed KES/BTC rate: %.2f", rate)
	return nil
}
