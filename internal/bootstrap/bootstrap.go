package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/second-brain/internal/config"
	"github.com/kirillkom/second-brain/internal/core/domain"
	"github.com/kirillkom/second-brain/internal/core/ports"
	"github.com/kirillkom/second-brain/internal/core/usecase"
	"github.com/kirillkom/second-brain/internal/infrastructure/health"
	"github.com/kirillkom/second-brain/internal/infrastructure/provider/graph"
	"github.com/kirillkom/second-brain/internal/infrastructure/provider/memhub"
	"github.com/kirillkom/second-brain/internal/infrastructure/provider/pgstore"
	"github.com/kirillkom/second-brain/internal/infrastructure/resilience"
	"github.com/kirillkom/second-brain/internal/infrastructure/voyage"
)

// App wires the retrieval core to its providers and shared state. The same
// wiring serves the HTTP binary and the MCP binary.
type App struct {
	Config config.Config

	RetrieveUC *usecase.RetrieveUseCase
	Runner     *usecase.ScenarioRunner
	Resolver   ports.EntityResolver
	Health     *health.Store
	HealthFeed *health.Feed
	Probes     map[string]health.Pinger

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	flags, err := config.LoadFlags(cfg.FlagsPath)
	if err != nil {
		return nil, fmt.Errorf("load feature flags: %w", err)
	}
	store := health.NewStore(flags)

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	db, err := pgstore.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	voyageClient := voyage.New(cfg.VoyageURL, cfg.VoyageAPIKey, cfg.VoyageEmbedModel, cfg.VoyageRerankModel, executor)

	pgProvider := pgstore.New(db, voyageClient, pgstore.Options{
		RRFK:     cfg.RetrievalFusionRRFK,
		PoolSize: cfg.RetrievalFusionPoolSize,
	})
	memhubClient := memhub.New(cfg.MemHubURL, cfg.MemHubAPIKey)

	providers := map[string]ports.ContextProvider{
		domain.ProviderMemHub:  memhubClient,
		domain.ProviderPGStore: pgProvider,
	}
	probes := map[string]health.Pinger{
		domain.ProviderMemHub:  memhubClient,
		domain.ProviderPGStore: pgProvider,
	}

	var graphClient *graph.Client
	if flags.GraphEnabled {
		graphClient, err = graph.New(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
		if err != nil {
			return nil, fmt.Errorf("init graph provider: %w", err)
		}
		providers[domain.ProviderGraph] = graphClient
		probes[domain.ProviderGraph] = graphClient
	}

	feed, err := health.NewFeed(cfg.NATSURL, cfg.NATSHealthSubject, health.FeedOptions{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init health feed: %w", err)
	}

	retrieveUC := usecase.NewRetrieveUseCase(providers, voyageClient, store, nil, usecase.RetrieveLimits{
		ProviderTimeout: time.Duration(cfg.RetrievalProviderTimeout) * time.Second,
		OverallTimeout:  time.Duration(cfg.RetrievalOverallTimeout) * time.Second,
		FusionRRFK:      cfg.RetrievalFusionRRFK,
		FusionPoolSize:  cfg.RetrievalFusionPoolSize,
	})

	return &App{
		Config:     cfg,
		RetrieveUC: retrieveUC,
		Runner:     usecase.NewScenarioRunner(retrieveUC),
		Resolver:   pgProvider,
		Health:     store,
		HealthFeed: feed,
		Probes:     probes,

		closeFn: func() {
			feed.Close()
			_ = db.Close()
			if graphClient != nil {
				_ = graphClient.Close(context.Background())
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
