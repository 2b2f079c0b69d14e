package usecase

import (
	"fmt"
	"time"

	"github.com/kirillkom/second-brain/internal/core/domain"
)

// ChannelMatcher decides whether retrieved candidates fit the query's
// channel/intent. How "channel" is derived is owned by the planning side, so
// the classifier takes it as an injected predicate.
type ChannelMatcher func(req domain.RetrievalRequest, candidates []domain.Candidate) bool

// MatchAllChannels is the default predicate: every result fits.
func MatchAllChannels(domain.RetrievalRequest, []domain.Candidate) bool { return true }

// classifyInput carries everything the branch table dispatches on.
type classifyInput struct {
	provider     string
	candidates   []domain.Candidate
	threshold    float64
	channelMatch bool
	decision     RerankDecision
	rerankDone   bool
	now          time.Time
}

type branchRule struct {
	matches func(classifyInput) bool
	emit    func(classifyInput) (domain.ContextPacket, domain.NextAction)
}

// branchTable is evaluated top-to-bottom, first match wins. EMPTY_SET
// short-circuits everything, then CHANNEL_MISMATCH, then LOW_CONFIDENCE,
// then the rerank distinction. Reordering these rows changes observable
// behavior.
var branchTable = []branchRule{
	{
		matches: func(in classifyInput) bool { return len(in.candidates) == 0 },
		emit:    emitEmptySet,
	},
	{
		matches: func(in classifyInput) bool { return !in.channelMatch },
		emit:    emitChannelMismatch,
	},
	{
		matches: func(in classifyInput) bool { return in.candidates[0].Confidence < in.threshold },
		emit:    emitLowConfidence,
	},
	{
		matches: func(in classifyInput) bool {
			return in.decision.Type == domain.RerankProviderNative && !in.decision.OverrideExercised
		},
		emit: emitRerankBypassed,
	},
	{
		matches: func(classifyInput) bool { return true },
		emit:    emitSuccess,
	},
}

// classify maps a router outcome plus confidence input to one of the fixed
// branches. It is total: every input produces a complete packet/action pair,
// and "normal" empty or low-confidence outcomes are expected states, not
// failures.
func classify(in classifyInput) (domain.ContextPacket, domain.NextAction) {
	if in.now.IsZero() {
		in.now = time.Now().UTC()
	}
	for _, rule := range branchTable {
		if rule.matches(in) {
			return rule.emit(in)
		}
	}
	// Unreachable: the last row always matches.
	return emitEmptySet(in)
}

func emitEmptySet(in classifyInput) (domain.ContextPacket, domain.NextAction) {
	packet := domain.ContextPacket{
		Candidates: []domain.Candidate{},
		Summary: domain.ConfidenceSummary{
			TopConfidence:  0.0,
			CandidateCount: 0,
			ThresholdMet:   false,
			Branch:         domain.BranchEmptySet,
		},
		Provider:           in.provider,
		RerankApplied:      false,
		RerankType:         domain.RerankNone,
		RerankBypassReason: in.decision.BypassReason,
		Timestamp:          in.now,
	}
	action := domain.NextAction{
		Action:     domain.ActionFallback,
		Reason:     "No context candidates retrieved from any provider",
		BranchCode: domain.BranchEmptySet,
		Suggestion: "Ask user to rephrase query or provide more context",
	}
	return packet, action
}

func emitChannelMismatch(in classifyInput) (domain.ContextPacket, domain.NextAction) {
	summary := Summarize(in.candidates, in.threshold)
	summary.ThresholdMet = false
	summary.Branch = domain.BranchChannelMismatch

	packet := in.packetWith(summary, false, domain.RerankNone)
	action := domain.NextAction{
		Action:     domain.ActionEscalate,
		Reason:     "Retrieved context does not match the expected channel",
		BranchCode: domain.BranchChannelMismatch,
		Suggestion: "Escalate to human or trigger intent reclassification",
	}
	return packet, action
}

func emitLowConfidence(in classifyInput) (domain.ContextPacket, domain.NextAction) {
	summary := Summarize(in.candidates, in.threshold)
	summary.Branch = domain.BranchLowConfidence

	packet := in.packetWith(summary, in.rerankDone, in.decision.Type)
	action := domain.NextAction{
		Action:     domain.ActionClarify,
		Reason:     fmt.Sprintf("Top confidence %.2f below threshold %.2f", summary.TopConfidence, in.threshold),
		BranchCode: domain.BranchLowConfidence,
		Suggestion: "Request clarification on query intent or narrow scope",
	}
	return packet, action
}

func emitRerankBypassed(in classifyInput) (domain.ContextPacket, domain.NextAction) {
	summary := Summarize(in.candidates, in.threshold)
	summary.Branch = domain.BranchRerankBypassed

	// Provider-native rerank counts as applied.
	packet := in.packetWith(summary, true, domain.RerankProviderNative)
	action := domain.NextAction{
		Action:     domain.ActionProceed,
		Reason:     "Provider-native rerank applied, external rerank bypassed per policy",
		BranchCode: domain.BranchRerankBypassed,
	}
	return packet, action
}

func emitSuccess(in classifyInput) (domain.ContextPacket, domain.NextAction) {
	summary := Summarize(in.candidates, in.threshold)
	summary.Branch = domain.BranchSuccess

	packet := in.packetWith(summary, in.rerankDone, in.decision.Type)
	action := domain.NextAction{
		Action:     domain.ActionProceed,
		Reason:     fmt.Sprintf("Retrieved %d high-confidence candidates", len(in.candidates)),
		BranchCode: domain.BranchSuccess,
	}
	return packet, action
}

func (in classifyInput) packetWith(summary domain.ConfidenceSummary, rerankApplied bool, rerankType domain.RerankType) domain.ContextPacket {
	return domain.ContextPacket{
		Candidates:         in.candidates,
		Summary:            summary,
		Provider:           in.provider,
		RerankApplied:      rerankApplied,
		RerankType:         rerankType,
		RerankBypassReason: in.decision.BypassReason,
		Timestamp:          in.now,
	}
}
