package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/second-brain/internal/core/domain"
	"github.com/kirillkom/second-brain/internal/core/ports"
)

// RetrieveLimits bounds a single retrieval call.
type RetrieveLimits struct {
	ProviderTimeout time.Duration
	OverallTimeout  time.Duration
	FusionRRFK      int
	FusionPoolSize  int
}

// RetrieveUseCase orchestrates routing, provider search, rerank policy and
// branch classification. All shared inputs (flags, health snapshot) are read
// once per request; nothing here mutates cross-request state.
type RetrieveUseCase struct {
	providers map[string]ports.ContextProvider
	reranker  ports.ExternalReranker
	health    ports.HealthSource
	matcher   ChannelMatcher
	limits    RetrieveLimits
}

func NewRetrieveUseCase(
	providers map[string]ports.ContextProvider,
	reranker ports.ExternalReranker,
	health ports.HealthSource,
	matcher ChannelMatcher,
	limits RetrieveLimits,
) *RetrieveUseCase {
	if matcher == nil {
		matcher = MatchAllChannels
	}
	if limits.ProviderTimeout <= 0 {
		limits.ProviderTimeout = 5 * time.Second
	}
	if limits.OverallTimeout <= 0 {
		limits.OverallTimeout = 15 * time.Second
	}
	if limits.FusionRRFK <= 0 {
		limits.FusionRRFK = DefaultRRFK
	}
	if limits.FusionPoolSize <= 0 {
		limits.FusionPoolSize = DefaultPoolSize
	}
	return &RetrieveUseCase{
		providers: providers,
		reranker:  reranker,
		health:    health,
		matcher:   matcher,
		limits:    limits,
	}
}

// Retrieve serves one retrieval request against the current health state.
func (uc *RetrieveUseCase) Retrieve(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResponse, error) {
	return uc.RetrieveWithState(ctx, req, uc.health.Flags(), uc.health.Snapshot())
}

// RetrieveWithState serves one retrieval request against an explicit flag and
// snapshot state. The scenario runner uses this to replay deterministic
// fleet conditions; production traffic goes through Retrieve.
func (uc *RetrieveUseCase) RetrieveWithState(
	ctx context.Context,
	req domain.RetrievalRequest,
	flags domain.FeatureFlags,
	snapshot domain.HealthSnapshot,
) (*domain.RetrievalResponse, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, uc.limits.OverallTimeout)
	defer cancel()

	route := SelectRoute(req.Mode, flags, snapshot, req.ProviderOverride)
	routing := domain.RoutingMetadata{
		Mode:             req.Mode,
		Provider:         route.Provider,
		OverrideHonored:  route.OverrideHonored,
		OverrideRejected: route.OverrideRejected,
		RejectReason:     route.RejectReason,
	}
	if route.OverrideRejected {
		slog.Warn("provider_override_rejected",
			"override", req.ProviderOverride,
			"reason", route.RejectReason,
			"mode", string(req.Mode),
		)
	}

	if route.Provider == domain.ProviderNone {
		return uc.finish(req, routing, classifyInput{provider: domain.ProviderNone, threshold: req.Threshold, channelMatch: true})
	}

	candidates, served := uc.searchProviders(ctx, req, route.Candidates)
	if len(served) == 0 {
		// Every selected provider failed or timed out for this request.
		return uc.finish(req, routing, classifyInput{provider: route.Provider, threshold: req.Threshold, channelMatch: true})
	}
	providerLabel := strings.Join(served, "+")
	routing.Provider = providerLabel

	caps := uc.effectiveCapabilities(served)
	requestedExternal := req.ForceExternalRerank
	externalAvailable := flags.ExternalRerankEnabled && uc.reranker != nil && uc.reranker.Available(ctx)

	decision := DecideRerank(caps, requestedExternal, externalAvailable)
	rerankDone := false
	if decision.ApplyExternal && len(candidates) > 1 {
		reranked, err := uc.reranker.Rerank(ctx, req.Query, candidates, req.TopK)
		if err != nil {
			slog.Warn("external_rerank_failed", "provider", providerLabel, "error", err)
			decision = decision.degradeToUnavailable()
		} else {
			candidates = reranked
			rerankDone = true
		}
	} else if decision.ApplyExternal {
		rerankDone = true
	}
	candidates = trimCandidates(candidates, req.TopK)

	return uc.finish(req, routing, classifyInput{
		provider:     providerLabel,
		candidates:   candidates,
		threshold:    req.Threshold,
		channelMatch: uc.matcher(req, candidates),
		decision:     decision,
		rerankDone:   rerankDone,
	})
}

func (uc *RetrieveUseCase) finish(req domain.RetrievalRequest, routing domain.RoutingMetadata, in classifyInput) (*domain.RetrievalResponse, error) {
	packet, action := classify(in)
	response := &domain.RetrievalResponse{
		ContextPacket: packet,
		NextAction:    action,
		Routing:       routing,
	}
	if err := response.ValidateEnvelope(); err != nil {
		return nil, err
	}
	slog.Info("retrieval_classified",
		"mode", string(req.Mode),
		"provider", routing.Provider,
		"branch", string(packet.Summary.Branch),
		"action", string(action.Action),
		"candidates", packet.Summary.CandidateCount,
		"rerank_type", string(packet.RerankType),
	)
	return response, nil
}

type providerResult struct {
	provider   string
	candidates []domain.Candidate
	err        error
}

// searchProviders issues every provider call concurrently with an
// independent timeout and waits for all of them; there is no partial
// fuse-and-forget. A timed-out provider is excluded from this request only;
// the shared health snapshot is owned by the health loop, not by requests.
func (uc *RetrieveUseCase) searchProviders(ctx context.Context, req domain.RetrievalRequest, names []string) ([]domain.Candidate, []string) {
	results := make([]providerResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		provider, ok := uc.providers[name]
		if !ok {
			results[i] = providerResult{provider: name, err: domain.ErrProviderUnavailable}
			continue
		}
		wg.Add(1)
		go func(i int, name string, provider ports.ContextProvider) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, uc.limits.ProviderTimeout)
			defer cancel()
			candidates, err := provider.Search(callCtx, req)
			results[i] = providerResult{provider: name, candidates: candidates, err: err}
		}(i, name, provider)
	}
	wg.Wait()

	served := make([]string, 0, len(names))
	lists := make([][]domain.Candidate, 0, len(names))
	for _, result := range results {
		if result.err != nil {
			slog.Warn("provider_search_failed", "provider", result.provider, "error", result.err)
			continue
		}
		served = append(served, result.provider)
		lists = append(lists, result.candidates)
	}

	switch len(lists) {
	case 0:
		return nil, nil
	case 1:
		return lists[0], served
	default:
		pooled := fuseCandidateLists(lists, uc.limits.FusionRRFK, uc.limits.FusionPoolSize)
		return pooled, served
	}
}

// effectiveCapabilities resolves the capability flags the policy engine
// dispatches on. A pooled multi-provider merge has no single native rerank,
// so merged results always qualify for the external pass.
func (uc *RetrieveUseCase) effectiveCapabilities(served []string) ports.ProviderCapabilities {
	if len(served) == 1 {
		if provider, ok := uc.providers[served[0]]; ok {
			return provider.Capabilities()
		}
	}
	return ports.ProviderCapabilities{Name: strings.Join(served, "+")}
}
