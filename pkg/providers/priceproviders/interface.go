// Package priceproviders defines the contract hotel price providers
// implement, the error taxonomy the router dispatches on, and a registry of
// provider factories.
package priceproviders

import (
	"context"
	"time"

	"github.com/hoteliq/ratewatch/internal/keypool"
	"github.com/hoteliq/ratewatch/pkg/providers"
)

// HotelRef identifies the hotel a lookup is about. ProviderRefID carries a
// provider-assigned id where one is known (aggregator APIs require it,
// search APIs ignore it).
type HotelRef struct {
	ID            string
	Name          string
	Location      string
	ProviderRefID string
	Currency      string
}

// SearchParams are the stay parameters for a lookup. Dates use YYYY-MM-DD.
type SearchParams struct {
	CheckIn  string
	CheckOut string
	Adults   int
	Currency string
}

// PriceResult is one observed nightly rate.
type PriceResult struct {
	HotelID    string
	Provider   string
	Vendor     string
	Price      float64
	Currency   string
	CheckIn    string
	Adults     int
	ObservedAt time.Time
}

// PriceProvider fetches the current rate for a hotel from one upstream. A
// lookup that finds no matching property returns a *Error with KindNotFound;
// the provider reports credential outcomes to its own pool before returning.
type PriceProvider interface {
	providers.Provider

	// Priority orders providers for the router; lower runs first.
	Priority() int
	// Enabled reports whether the provider participates in routing.
	Enabled() bool
	// Pool returns the credential pool backing this provider.
	Pool() *keypool.Pool

	Lookup(ctx context.Context, hotel HotelRef, params SearchParams) (*PriceResult, error)
}

// Config is the runtime configuration a factory builds a provider from.
type Config struct {
	Name     string
	Priority int
	Enabled  bool
	BaseURL  string // override for tests; empty means the provider default
}
