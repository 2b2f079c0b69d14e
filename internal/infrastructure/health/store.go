package health

import (
	"sync/atomic"
	"time"

	"github.com/kirillkom/second-brain/internal/core/domain"
)

// Store holds the current health snapshot and feature flags. Readers get
// whole immutable values; writers swap pointers, so a request observes one
// consistent state for its entire lifetime.
type Store struct {
	snapshot atomic.Pointer[domain.HealthSnapshot]
	flags    atomic.Pointer[domain.FeatureFlags]
}

func NewStore(flags domain.FeatureFlags) *Store {
	s := &Store{}
	initial := domain.HealthSnapshot{
		Statuses:  map[string]domain.ProviderStatus{},
		CheckedAt: time.Now().UTC(),
	}
	s.snapshot.Store(&initial)
	s.flags.Store(&flags)
	return s
}

func (s *Store) Snapshot() domain.HealthSnapshot {
	return *s.snapshot.Load()
}

func (s *Store) Flags() domain.FeatureFlags {
	return *s.flags.Load()
}

// SetSnapshot installs a new snapshot. The store copies the status map so
// later caller mutations cannot leak into published state.
func (s *Store) SetSnapshot(snapshot domain.HealthSnapshot) {
	statuses := make(map[string]domain.ProviderStatus, len(snapshot.Statuses))
	for provider, status := range snapshot.Statuses {
		statuses[provider] = status
	}
	snapshot.Statuses = statuses
	s.snapshot.Store(&snapshot)
}

func (s *Store) SetFlags(flags domain.FeatureFlags) {
	s.flags.Store(&flags)
}
