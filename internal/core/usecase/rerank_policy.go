package usecase

import (
	"github.com/kirillkom/second-brain/internal/core/domain"
	"github.com/kirillkom/second-brain/internal/core/ports"
)

const (
	bypassDefaultPolicy      = "default-policy"
	bypassServiceUnavailable = "service-unavailable"
)

// RerankDecision is the policy engine's verdict, recorded verbatim on the
// outgoing packet.
type RerankDecision struct {
	ApplyExternal     bool
	Type              domain.RerankType
	BypassReason      string
	OverrideExercised bool
}

// DecideRerank applies the ordered rerank rule set. Providers with native
// rerank keep it unless the caller explicitly asks for the external pass; an
// unavailable external service forces a bypass no matter what was requested.
func DecideRerank(caps ports.ProviderCapabilities, requestedExternal, externalAvailable bool) RerankDecision {
	switch {
	case caps.HasNativeRerank && !requestedExternal:
		return RerankDecision{
			ApplyExternal: false,
			Type:          domain.RerankProviderNative,
			BypassReason:  bypassDefaultPolicy,
		}
	case !externalAvailable:
		return RerankDecision{
			ApplyExternal: false,
			Type:          domain.RerankNone,
			BypassReason:  bypassServiceUnavailable,
		}
	case caps.HasNativeRerank && requestedExternal:
		return RerankDecision{
			ApplyExternal:     true,
			Type:              domain.RerankExternal,
			OverrideExercised: true,
		}
	default:
		return RerankDecision{
			ApplyExternal: true,
			Type:          domain.RerankExternal,
		}
	}
}

// degradeToUnavailable rewrites a decision after a runtime rerank failure so
// the packet still carries a truthful rerank record.
func (d RerankDecision) degradeToUnavailable() RerankDecision {
	out := d
	out.ApplyExternal = false
	out.Type = domain.RerankNone
	out.BypassReason = bypassServiceUnavailable
	return out
}
