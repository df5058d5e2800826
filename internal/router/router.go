// Package router selects which price provider serves a lookup. Providers
// are tried in ascending priority order; transient failures are retried in
// place, exhausted and fatal providers are skipped, and a not-found answer
// falls through to the next provider before being reported as no match.
package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hoteliq/ratewatch/pkg/providers/priceproviders"
)

// ErrNoProviderAvailable means every enabled provider was exhausted,
// fatally broken or out of retries for this lookup.
var ErrNoProviderAvailable = errors.New("router: no provider available")

const (
	defaultMaxRetries  = 2
	defaultBackoffBase = 200 * time.Millisecond
)

// Router holds the provider chain. It is immutable after New and safe for
// concurrent use; per-session state lives in Session.
type Router struct {
	providers []priceproviders.PriceProvider

	maxRetries  uint64
	backoffBase time.Duration
}

// New builds a router over the given providers, ordered by ascending
// priority with the provider key as tie-break so the chain is
// deterministic.
func New(list []priceproviders.PriceProvider) *Router {
	providers := append([]priceproviders.PriceProvider(nil), list...)
	sort.SliceStable(providers, func(i, j int) bool {
		if providers[i].Priority() != providers[j].Priority() {
			return providers[i].Priority() < providers[j].Priority()
		}
		return providers[i].Key() < providers[j].Key()
	})
	return &Router{
		providers:   providers,
		maxRetries:  defaultMaxRetries,
		backoffBase: defaultBackoffBase,
	}
}

// Providers returns the chain in routing order.
func (r *Router) Providers() []priceproviders.PriceProvider {
	return append([]priceproviders.PriceProvider(nil), r.providers...)
}

// Session returns a routing view that remembers fatally failed providers,
// so one bad credential does not cost a retry per hotel across a scan.
func (r *Router) Session() *Session {
	return &Session{router: r, fatal: make(map[string]bool)}
}

// Lookup routes a single one-off lookup (admin endpoints, rapid pulse).
func (r *Router) Lookup(ctx context.Context, hotel priceproviders.HotelRef, params priceproviders.SearchParams) (*priceproviders.PriceResult, error) {
	return r.Session().Lookup(ctx, hotel, params)
}

// Session is a per-scan routing view. Safe for concurrent use by the scan
// workers of one session.
type Session struct {
	router *Router

	mu    sync.Mutex
	fatal map[string]bool
}

func (s *Session) skipFatal(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal[key]
}

func (s *Session) markFatal(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fatal[key] = true
}

// Lookup walks the provider chain for one hotel. It returns (nil, nil)
// when no provider has a match, and ErrNoProviderAvailable when the whole
// chain failed.
func (s *Session) Lookup(ctx context.Context, hotel priceproviders.HotelRef, params priceproviders.SearchParams) (*priceproviders.PriceResult, error) {
	var (
		lastErr     error
		sawNotFound bool
	)

	for _, p := range s.router.providers {
		if !p.Enabled() || s.skipFatal(p.Key()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := s.attempt(ctx, p, hotel, params)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		switch priceproviders.KindOf(err) {
		case priceproviders.KindNotFound:
			sawNotFound = true
		case priceproviders.KindFatal:
			s.markFatal(p.Key())
			log.Printf("router: provider %s failed fatally, skipping for this session: %v", p.Key(), err)
			lastErr = err
		case priceproviders.KindExhausted:
			log.Printf("router: provider %s exhausted, trying next: %v", p.Key(), err)
			lastErr = err
		default:
			lastErr = err
		}
	}

	if sawNotFound {
		return nil, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoProviderAvailable, lastErr)
	}
	return nil, ErrNoProviderAvailable
}

// attempt runs one provider with exponential backoff on transient errors.
// Non-transient errors abort the retry loop immediately.
func (s *Session) attempt(ctx context.Context, p priceproviders.PriceProvider, hotel priceproviders.HotelRef, params priceproviders.SearchParams) (*priceproviders.PriceResult, error) {
	var out *priceproviders.PriceResult
	backoff := retry.WithMaxRetries(s.router.maxRetries, backoffSchedule(s.router.backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := p.Lookup(ctx, hotel, params)
		if err != nil {
			if priceproviders.KindOf(err) == priceproviders.KindTransient {
				return retry.RetryableError(err)
			}
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// backoffSchedule waits base, then quadruples per retry (200ms, 800ms, ...).
func backoffSchedule(base time.Duration) retry.Backoff {
	var attempt uint
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d := base << (2 * attempt)
		attempt++
		return d, false
	})
}
