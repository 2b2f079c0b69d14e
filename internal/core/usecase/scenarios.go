package usecase

import (
	"context"
	"fmt"
	"slices"

	"github.com/kirillkom/second-brain/internal/core/domain"
)

// TagValidation marks scenarios that may only execute with the debug surface
// enabled.
const TagValidation = "validation"

// BranchScenario is a deterministic, operator-facing branch validation case:
// a fixed request replayed against a fixed fleet condition with a declared
// expectation.
type BranchScenario struct {
	ID             string                           `json:"id"`
	Description    string                           `json:"description"`
	Request        domain.RetrievalRequest          `json:"request"`
	ProviderStatus map[string]domain.ProviderStatus `json:"provider_status"`
	Flags          domain.FeatureFlags              `json:"feature_flags"`
	ExpectedBranch domain.Branch                    `json:"expected_branch"`
	ExpectedAction domain.Action                    `json:"expected_action"`
	ExpectedRerank domain.RerankType                `json:"expected_rerank_type"`
	ForceBranch    domain.Branch                    `json:"force_branch,omitempty"`
	Tags           []string                         `json:"tags,omitempty"`
	Notes          string                           `json:"notes,omitempty"`
}

// ScenarioResult reports one scenario run. Gated means the run was refused
// because the scenario requires debug mode.
type ScenarioResult struct {
	ScenarioID     string                    `json:"scenario_id"`
	Success        bool                      `json:"success"`
	Gated          bool                      `json:"gated"`
	ForcedBranch   domain.Branch             `json:"forced_branch,omitempty"`
	ExpectedBranch domain.Branch             `json:"expected_branch,omitempty"`
	ActualBranch   domain.Branch             `json:"actual_branch,omitempty"`
	ExpectedAction domain.Action             `json:"expected_action,omitempty"`
	ActualAction   domain.Action             `json:"actual_action,omitempty"`
	Message        string                    `json:"message,omitempty"`
	Response       *domain.RetrievalResponse `json:"response,omitempty"`
}

// ScenarioRunner replays catalog scenarios through the retrieval core with
// the scenario's own flag and health state.
type ScenarioRunner struct {
	retriever *RetrieveUseCase
	catalog   []BranchScenario
}

func NewScenarioRunner(retriever *RetrieveUseCase) *ScenarioRunner {
	return &ScenarioRunner{
		retriever: retriever,
		catalog:   DefaultScenarios(),
	}
}

// Scenarios lists the catalog, optionally filtered by tag.
func (r *ScenarioRunner) Scenarios(tag string) []BranchScenario {
	if tag == "" {
		return slices.Clone(r.catalog)
	}
	out := make([]BranchScenario, 0, len(r.catalog))
	for _, scenario := range r.catalog {
		if slices.Contains(scenario.Tags, tag) {
			out = append(out, scenario)
		}
	}
	return out
}

func (r *ScenarioRunner) ScenarioByID(id string) (BranchScenario, error) {
	for _, scenario := range r.catalog {
		if scenario.ID == id {
			return scenario, nil
		}
	}
	return BranchScenario{}, domain.WrapError(domain.ErrScenarioNotFound, "scenario lookup", fmt.Errorf("id %q", id))
}

// Run executes a scenario. Validation-tagged scenarios (and any forced
// branch) execute only when debug mode is enabled; without it the result is
// gated and the forced path must not run.
func (r *ScenarioRunner) Run(ctx context.Context, id string, debugEnabled bool) (ScenarioResult, error) {
	scenario, err := r.ScenarioByID(id)
	if err != nil {
		return ScenarioResult{}, err
	}

	if slices.Contains(scenario.Tags, TagValidation) && !debugEnabled {
		return ScenarioResult{
			ScenarioID: scenario.ID,
			Success:    false,
			Gated:      true,
			Message:    fmt.Sprintf("scenario %s is validation-only; enable debug mode to execute it", scenario.ID),
		}, nil
	}

	if scenario.ForceBranch != "" {
		// Operator-forced branch, debug mode only by the gate above.
		return ScenarioResult{
			ScenarioID:   scenario.ID,
			Success:      true,
			Gated:        false,
			ForcedBranch: scenario.ForceBranch,
		}, nil
	}

	response, err := r.retriever.RetrieveWithState(ctx, scenario.Request, scenario.Flags, domain.HealthSnapshot{Statuses: scenario.ProviderStatus})
	if err != nil {
		return ScenarioResult{}, err
	}

	result := ScenarioResult{
		ScenarioID:     scenario.ID,
		ExpectedBranch: scenario.ExpectedBranch,
		ActualBranch:   response.ContextPacket.Summary.Branch,
		ExpectedAction: scenario.ExpectedAction,
		ActualAction:   response.NextAction.Action,
		Response:       response,
	}
	result.Success = result.ActualBranch == result.ExpectedBranch &&
		result.ActualAction == result.ExpectedAction &&
		(scenario.ExpectedRerank == "" || response.ContextPacket.RerankType == scenario.ExpectedRerank)
	if !result.Success {
		result.Message = fmt.Sprintf("expected %s/%s, got %s/%s",
			result.ExpectedBranch, result.ExpectedAction, result.ActualBranch, result.ActualAction)
	}
	return result, nil
}

// DefaultScenarios is the shipped catalog. Requests use query markers that
// test doubles and staging fixtures recognize; expectations encode the
// branch table contract.
func DefaultScenarios() []BranchScenario {
	allOn := domain.FeatureFlags{MemHubEnabled: true, PGStoreEnabled: true, ExternalRerankEnabled: true}
	memOnly := domain.FeatureFlags{MemHubEnabled: true}

	return []BranchScenario{
		{
			ID:          "S001",
			Description: "Conversation memhub high confidence",
			Request: domain.RetrievalRequest{
				Query: "scenario: high confidence", Mode: domain.ModeConversation,
				TopK: 5, Threshold: 0.6,
			},
			ProviderStatus: map[string]domain.ProviderStatus{
				domain.ProviderMemHub:  domain.StatusAvailable,
				domain.ProviderPGStore: domain.StatusAvailable,
			},
			Flags:          allOn,
			ExpectedBranch: domain.BranchRerankBypassed,
			ExpectedAction: domain.ActionProceed,
			ExpectedRerank: domain.RerankProviderNative,
			Tags:           []string{"smoke", "policy"},
		},
		{
			ID:          "S002",
			Description: "Conversation memhub no candidates",
			Request: domain.RetrievalRequest{
				Query: "scenario: empty set", Mode: domain.ModeConversation,
				TopK: 5, Threshold: 0.6,
			},
			ProviderStatus: map[string]domain.ProviderStatus{
				domain.ProviderMemHub: domain.StatusAvailable,
			},
			Flags:          memOnly,
			ExpectedBranch: domain.BranchEmptySet,
			ExpectedAction: domain.ActionFallback,
			ExpectedRerank: domain.RerankNone,
			Tags:           []string{"smoke", "edge"},
		},
		{
			ID:          "S003",
			Description: "Conversation memhub low confidence",
			Request: domain.RetrievalRequest{
				Query: "scenario: low confidence", Mode: domain.ModeConversation,
				TopK: 5, Threshold: 0.6,
			},
			ProviderStatus: map[string]domain.ProviderStatus{
				domain.ProviderMemHub: domain.StatusAvailable,
			},
			Flags:          memOnly,
			ExpectedBranch: domain.BranchLowConfidence,
			ExpectedAction: domain.ActionClarify,
			ExpectedRerank: domain.RerankProviderNative,
			Tags:           []string{"smoke", "edge"},
		},
		{
			ID:          "S004",
			Description: "Fast pgstore high confidence with external rerank",
			Request: domain.RetrievalRequest{
				Query: "scenario: high confidence", Mode: domain.ModeFast,
				TopK: 5, Threshold: 0.6,
			},
			ProviderStatus: map[string]domain.ProviderStatus{
				domain.ProviderMemHub:  domain.StatusUnavailable,
				domain.ProviderPGStore: domain.StatusAvailable,
			},
			Flags:          allOn,
			ExpectedBranch: domain.BranchSuccess,
			ExpectedAction: domain.ActionProceed,
			ExpectedRerank: domain.RerankExternal,
			Tags:           []string{"smoke", "routing"},
		},
		{
			ID:          "S005",
			Description: "Override naming degraded provider falls back to policy",
			Request: domain.RetrievalRequest{
				Query: "scenario: high confidence", Mode: domain.ModeConversation,
				TopK: 5, Threshold: 0.6, ProviderOverride: domain.ProviderPGStore,
			},
			ProviderStatus: map[string]domain.ProviderStatus{
				domain.ProviderMemHub:  domain.StatusAvailable,
				domain.ProviderPGStore: domain.StatusDegraded,
			},
			Flags:          allOn,
			ExpectedBranch: domain.BranchRerankBypassed,
			ExpectedAction: domain.ActionProceed,
			ExpectedRerank: domain.RerankProviderNative,
			Tags:           []string{"routing", "policy"},
			Notes:          "Override must be rejected, not silently routed to a degraded provider.",
		},
		{
			ID:             "V001",
			Description:    "Forced channel mismatch branch",
			Request:        domain.RetrievalRequest{Query: "scenario: forced", Mode: domain.ModeConversation, TopK: 5, Threshold: 0.6},
			Flags:          memOnly,
			ExpectedBranch: domain.BranchChannelMismatch,
			ExpectedAction: domain.ActionEscalate,
			ForceBranch:    domain.BranchChannelMismatch,
			Tags:           []string{TagValidation},
			Notes:          "Debug-only forced path for planner escalation drills.",
		},
		{
			ID:             "V002",
			Description:    "Forced empty set branch",
			Request:        domain.RetrievalRequest{Query: "scenario: forced", Mode: domain.ModeFast, TopK: 5, Threshold: 0.6},
			Flags:          memOnly,
			ExpectedBranch: domain.BranchEmptySet,
			ExpectedAction: domain.ActionFallback,
			ForceBranch:    domain.BranchEmptySet,
			Tags:           []string{TagValidation},
		},
	}
}
