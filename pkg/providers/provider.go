package providers

// ProviderType identifies the kind of upstream a provider talks to.
type ProviderType string

const (
	// TypeSearchAPI covers metasearch backends (e.g. a Google Hotels SERP
	// proxy) that answer free-text hotel queries.
	TypeSearchAPI ProviderType = "search_api"
	// TypeAggregatorAPI covers OTA aggregators that answer lookups by a
	// provider-assigned hotel id.
	TypeAggregatorAPI ProviderType = "aggregator_api"
)

// Provider is the minimal contract every upstream integration satisfies,
// independent of what it fetches.
type Provider interface {
	// Key is the stable identifier used in configuration, metrics labels
	// and credential env vars, e.g. "serpapi".
	Key() string
	// Name is the human-readable display name.
	Name() string
	// Type classifies the upstream.
	Type() ProviderType
}
