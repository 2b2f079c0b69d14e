package usecase

import (
	"fmt"

	"github.com/kirillkom/second-brain/internal/core/domain"
)

// RouteDecision is the router's deterministic outcome. Candidates is the
// ordered provider sequence to query; a "none" Provider with no candidates is
// the sentinel outcome that triggers the EMPTY_SET branch, never an error.
type RouteDecision struct {
	Provider         string
	Candidates       []string
	OverrideHonored  bool
	OverrideRejected bool
	RejectReason     string
}

// SelectRoute picks a provider (or ordered provider sequence) from the mode,
// the feature flags and the health snapshot. An explicit override is honored
// only when the named provider is enabled and available (or missing and
// enabled, which normalizes to available); anything else is rejected and the
// default mode policy applies. A request is never silently routed to an
// unusable provider.
func SelectRoute(mode domain.Mode, flags domain.FeatureFlags, snapshot domain.HealthSnapshot, override string) RouteDecision {
	decision := RouteDecision{Provider: domain.ProviderNone}

	if override != "" {
		if snapshot.Usable(override, flags.Enabled(override)) {
			decision.Provider = override
			decision.Candidates = []string{override}
			decision.OverrideHonored = true
			return decision
		}
		decision.OverrideRejected = true
		decision.RejectReason = overrideRejectReason(override, flags, snapshot)
	}

	usable := make([]string, 0, len(domain.ProviderPriority))
	for _, provider := range domain.ProviderPriority {
		if snapshot.Usable(provider, flags.Enabled(provider)) {
			usable = append(usable, provider)
		}
	}
	if len(usable) == 0 {
		return decision
	}

	switch mode {
	case domain.ModeAccurate:
		decision.Candidates = usable
	case domain.ModeConversation:
		// Prefer the managed memory provider, else fall through priority.
		if snapshot.Usable(domain.ProviderMemHub, flags.Enabled(domain.ProviderMemHub)) {
			decision.Candidates = []string{domain.ProviderMemHub}
		} else {
			decision.Candidates = usable[:1]
		}
	default: // fast
		decision.Candidates = usable[:1]
	}

	decision.Provider = decision.Candidates[0]
	return decision
}

func overrideRejectReason(override string, flags domain.FeatureFlags, snapshot domain.HealthSnapshot) string {
	if !flags.Enabled(override) {
		return fmt.Sprintf("provider %q disabled by feature flag", override)
	}
	return fmt.Sprintf("provider %q status is %s", override, snapshot.Status(override, true))
}
