package domain

import "time"

// ProviderStatus is a provider's reported availability.
type ProviderStatus string

const (
	StatusAvailable   ProviderStatus = "available"
	StatusDegraded    ProviderStatus = "degraded"
	StatusUnavailable ProviderStatus = "unavailable"
	StatusMissing     ProviderStatus = "missing"
)

// Known provider identifiers, in static routing priority order.
const (
	ProviderMemHub  = "memhub"
	ProviderPGStore = "pgstore"
	ProviderGraph   = "graph"
	ProviderNone    = "none"
)

// ProviderPriority is the static fallback order used by fast and
// conversation routing.
var ProviderPriority = []string{ProviderMemHub, ProviderPGStore, ProviderGraph}

// FeatureFlags gates which providers participate in routing at all, plus
// whether the external reranker and the debug surface are live. Swapped
// atomically between requests, never mutated in place.
type FeatureFlags struct {
	MemHubEnabled           bool `yaml:"memhub_enabled" json:"memhub_enabled"`
	PGStoreEnabled          bool `yaml:"pgstore_enabled" json:"pgstore_enabled"`
	GraphEnabled            bool `yaml:"graph_enabled" json:"graph_enabled"`
	ExternalRerankEnabled   bool `yaml:"external_rerank_enabled" json:"external_rerank_enabled"`
	DebugScenariosEnabled   bool `yaml:"debug_scenarios_enabled" json:"debug_scenarios_enabled"`
	ExternalRerankRequested bool `yaml:"external_rerank_requested" json:"external_rerank_requested"`
}

// DefaultFeatureFlags mirrors the shipped defaults: memory and store
// providers on, graph opt-in.
func DefaultFeatureFlags() FeatureFlags {
	return FeatureFlags{
		MemHubEnabled:         true,
		PGStoreEnabled:        true,
		GraphEnabled:          false,
		ExternalRerankEnabled: true,
	}
}

// Enabled reports whether the feature flags admit the named provider.
func (f FeatureFlags) Enabled(provider string) bool {
	switch provider {
	case ProviderMemHub:
		return f.MemHubEnabled
	case ProviderPGStore:
		return f.PGStoreEnabled
	case ProviderGraph:
		return f.GraphEnabled
	}
	return false
}

// HealthSnapshot is a point-in-time, read-only view of provider status.
// Requests read it, never write it; a health-check collaborator swaps the
// whole snapshot out-of-band.
type HealthSnapshot struct {
	Statuses  map[string]ProviderStatus `json:"statuses"`
	CheckedAt time.Time                 `json:"checked_at"`
}

// Status resolves a provider's effective status. Absence from the snapshot
// is not evidence of unavailability: an enabled-but-missing provider
// normalizes to available so a stale or partial snapshot cannot produce
// false negative routing.
func (s HealthSnapshot) Status(provider string, enabled bool) ProviderStatus {
	if s.Statuses != nil {
		if status, ok := s.Statuses[provider]; ok {
			return status
		}
	}
	if enabled {
		return StatusAvailable
	}
	return StatusMissing
}

// Usable reports whether routing may send traffic to the provider.
func (s HealthSnapshot) Usable(provider string, enabled bool) bool {
	return enabled && s.Status(provider, enabled) == StatusAvailable
}
