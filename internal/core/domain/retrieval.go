package domain

import "time"

// Mode selects the routing strategy for a retrieval request.
type Mode string

const (
	ModeFast         Mode = "fast"
	ModeAccurate     Mode = "accurate"
	ModeConversation Mode = "conversation"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeFast, ModeAccurate, ModeConversation:
		return true
	}
	return false
}

// Branch is a stable classification of a retrieval outcome.
type Branch string

const (
	BranchEmptySet        Branch = "EMPTY_SET"
	BranchLowConfidence   Branch = "LOW_CONFIDENCE"
	BranchChannelMismatch Branch = "CHANNEL_MISMATCH"
	BranchRerankBypassed  Branch = "RERANK_BYPASSED"
	BranchSuccess         Branch = "SUCCESS"
)

// Action tells the planning module what to do with the packet.
type Action string

const (
	ActionProceed  Action = "proceed"
	ActionClarify  Action = "clarify"
	ActionFallback Action = "fallback"
	ActionEscalate Action = "escalate"
)

// RerankType records which reranking path was taken for a packet.
type RerankType string

const (
	RerankProviderNative RerankType = "provider-native"
	RerankExternal       RerankType = "external"
	RerankNone           RerankType = "none"
)

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.6
)

// Candidate is one retrieved unit. Candidates are never mutated after the
// provider hands them back; ownership stays with the packet that carries them.
type Candidate struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Source     string            `json:"source"`
	Confidence float64           `json:"confidence"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ConfidenceSummary reduces a ranked candidate list to a single assessment.
// ThresholdMet is true iff the list is non-empty and the head candidate
// meets the configured threshold.
type ConfidenceSummary struct {
	TopConfidence  float64 `json:"top_confidence"`
	CandidateCount int     `json:"candidate_count"`
	ThresholdMet   bool    `json:"threshold_met"`
	Branch         Branch  `json:"branch"`
}

// ContextPacket is the complete retrieval result envelope. Candidates are
// ordered by descending effective score.
type ContextPacket struct {
	Candidates         []Candidate       `json:"candidates"`
	Summary            ConfidenceSummary `json:"summary"`
	Provider           string            `json:"provider"`
	RerankApplied      bool              `json:"rerank_applied"`
	RerankType         RerankType        `json:"rerank_type"`
	RerankBypassReason string            `json:"rerank_bypass_reason,omitempty"`
	Timestamp          time.Time         `json:"timestamp"`
}

// NextAction is the explicit actionability indicator paired with every packet.
type NextAction struct {
	Action     Action `json:"action"`
	Reason     string `json:"reason"`
	BranchCode Branch `json:"branch_code"`
	Suggestion string `json:"suggestion,omitempty"`
}

// RoutingMetadata echoes how the router handled the request. Mode is always
// the literal request mode, never a default.
type RoutingMetadata struct {
	Mode             Mode   `json:"mode"`
	Provider         string `json:"provider"`
	OverrideHonored  bool   `json:"override_honored"`
	OverrideRejected bool   `json:"override_rejected,omitempty"`
	RejectReason     string `json:"reject_reason,omitempty"`
}

// RetrievalRequest is constructed per call and consumed once.
type RetrievalRequest struct {
	Query            string            `json:"query"`
	Mode             Mode              `json:"mode"`
	TopK             int               `json:"top_k"`
	Threshold        float64           `json:"threshold"`
	ProviderOverride string            `json:"provider_override,omitempty"`

	// ForceExternalRerank is the caller's explicit request to run the
	// external pass even when the provider reranks natively.
	ForceExternalRerank bool              `json:"force_external_rerank,omitempty"`
	Filters             map[string]string `json:"filters,omitempty"`
}

// Normalize fills defaults without touching caller-supplied values that are
// already in range.
func (r RetrievalRequest) Normalize() RetrievalRequest {
	out := r
	if out.Mode == "" {
		out.Mode = ModeConversation
	}
	if out.TopK <= 0 {
		out.TopK = DefaultTopK
	}
	if out.Threshold <= 0 || out.Threshold > 1 {
		out.Threshold = DefaultThreshold
	}
	return out
}

// Validate reports the first request-level contract problem.
func (r RetrievalRequest) Validate() error {
	if r.Query == "" {
		return WrapError(ErrInvalidInput, "validate retrieval request", errInvalidField("query must be non-empty"))
	}
	if !r.Mode.Valid() {
		return WrapError(ErrInvalidInput, "validate retrieval request", errInvalidField("mode must be fast, accurate or conversation"))
	}
	if r.TopK <= 0 {
		return WrapError(ErrInvalidInput, "validate retrieval request", errInvalidField("top_k must be positive"))
	}
	if r.Threshold < 0 || r.Threshold > 1 {
		return WrapError(ErrInvalidInput, "validate retrieval request", errInvalidField("threshold must be within [0,1]"))
	}
	return nil
}

// RetrievalResponse pairs the packet with its action and routing echo. There
// is no code path that returns only one half.
type RetrievalResponse struct {
	ContextPacket ContextPacket   `json:"context_packet"`
	NextAction    NextAction      `json:"next_action"`
	Routing       RoutingMetadata `json:"routing_metadata"`
}

// ValidateEnvelope guards the outbound contract. A hole here is a
// programming defect, not a runtime condition, so callers surface it as a
// hard failure.
func (r RetrievalResponse) ValidateEnvelope() error {
	if r.ContextPacket.Summary.Branch == "" {
		return WrapError(ErrContractViolation, "validate envelope", errInvalidField("summary.branch is empty"))
	}
	if r.NextAction.Action == "" || r.NextAction.BranchCode == "" || r.NextAction.Reason == "" {
		return WrapError(ErrContractViolation, "validate envelope", errInvalidField("next_action is incomplete"))
	}
	if r.NextAction.BranchCode != r.ContextPacket.Summary.Branch {
		return WrapError(ErrContractViolation, "validate envelope", errInvalidField("branch_code does not mirror summary.branch"))
	}
	if r.ContextPacket.RerankType == "" {
		return WrapError(ErrContractViolation, "validate envelope", errInvalidField("rerank_type is empty"))
	}
	if r.Routing.Mode == "" {
		return WrapError(ErrContractViolation, "validate envelope", errInvalidField("routing mode is empty"))
	}
	return nil
}

// EntityMatch is one fuzzy name-match hit from the trigram primitive.
type EntityMatch struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	EntityType string  `json:"entity_type"`
	Similarity float64 `json:"similarity"`
}
