package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/second-brain/internal/core/domain"
	"github.com/kirillkom/second-brain/internal/core/ports"
)

// scenarioFixtureProvider answers by query marker the way the staging
// fixtures do.
func scenarioFixtureProvider(caps ports.ProviderCapabilities) *fakeProvider {
	return &fakeProvider{
		caps: caps,
		byQuery: func(query string) []domain.Candidate {
			switch {
			case strings.Contains(query, "high confidence"):
				return candidatesOf(0.9, 0.8, 0.7)
			case strings.Contains(query, "low confidence"):
				return candidatesOf(0.4, 0.3)
			default:
				return nil
			}
		},
	}
}

func newScenarioRunnerForTest() *ScenarioRunner {
	uc := NewRetrieveUseCase(map[string]ports.ContextProvider{
		domain.ProviderMemHub:  scenarioFixtureProvider(memhubCaps()),
		domain.ProviderPGStore: scenarioFixtureProvider(pgstoreCaps()),
	}, &fakeReranker{available: true}, allOnHealth(), nil, RetrieveLimits{
		ProviderTimeout: 100 * time.Millisecond,
		OverallTimeout:  time.Second,
	})
	return NewScenarioRunner(uc)
}

func TestScenarioCatalogCoversEveryBranch(t *testing.T) {
	runner := newScenarioRunnerForTest()

	seen := map[domain.Branch]bool{}
	for _, scenario := range runner.Scenarios("") {
		seen[scenario.ExpectedBranch] = true
	}
	for _, branch := range []domain.Branch{
		domain.BranchEmptySet,
		domain.BranchLowConfidence,
		domain.BranchChannelMismatch,
		domain.BranchRerankBypassed,
		domain.BranchSuccess,
	} {
		if !seen[branch] {
			t.Fatalf("catalog has no scenario for branch %s", branch)
		}
	}
}

func TestScenarioRunSmokeCatalog(t *testing.T) {
	runner := newScenarioRunnerForTest()

	for _, scenario := range runner.Scenarios("smoke") {
		result, err := runner.Run(context.Background(), scenario.ID, false)
		if err != nil {
			t.Fatalf("Run(%s) error = %v", scenario.ID, err)
		}
		if result.Gated {
			t.Fatalf("smoke scenario %s gated", scenario.ID)
		}
		if !result.Success {
			t.Fatalf("scenario %s failed: %s", scenario.ID, result.Message)
		}
	}
}

func TestScenarioValidationGatedWithoutDebug(t *testing.T) {
	runner := newScenarioRunnerForTest()

	result, err := runner.Run(context.Background(), "V001", false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Gated || result.Success {
		t.Fatalf("validation scenario executed without debug mode: %+v", result)
	}
	if result.ForcedBranch != "" {
		t.Fatalf("forced path ran while gated")
	}
}

func TestScenarioForcedBranchWithDebug(t *testing.T) {
	runner := newScenarioRunnerForTest()

	result, err := runner.Run(context.Background(), "V001", true)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Gated {
		t.Fatalf("debug run gated")
	}
	if result.ForcedBranch != domain.BranchChannelMismatch {
		t.Fatalf("forced branch = %s, want CHANNEL_MISMATCH", result.ForcedBranch)
	}
}

func TestScenarioUnknownID(t *testing.T) {
	runner := newScenarioRunnerForTest()

	_, err := runner.Run(context.Background(), "S999", false)
	if err == nil || !domain.IsKind(err, domain.ErrScenarioNotFound) {
		t.Fatalf("expected ErrScenarioNotFound, got %v", err)
	}
}

func TestScenarioOverrideRejectionCase(t *testing.T) {
	runner := newScenarioRunnerForTest()

	result, err := runner.Run(context.Background(), "S005", false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("scenario S005 failed: %s", result.Message)
	}
	if !result.Response.Routing.OverrideRejected {
		t.Fatalf("override rejection not visible in routing metadata")
	}
}
