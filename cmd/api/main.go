package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/second-brain/internal/adapters/http"
	"github.com/kirillkom/second-brain/internal/bootstrap"
	"github.com/kirillkom/second-brain/internal/config"
	"github.com/kirillkom/second-brain/internal/observability/logging"
	"github.com/kirillkom/second-brain/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	// Snapshots come from the healthwatch process over NATS; the API only
	// consumes them.
	go func() {
		if err := app.HealthFeed.SubscribeSnapshots(ctx, app.Health); err != nil && ctx.Err() == nil {
			slog.Error("health_feed_subscribe_failed", "error", err)
		}
	}()

	serverMetrics := metrics.NewHTTPServerMetrics("api")
	router := httpadapter.NewRouter(
		app.RetrieveUC,
		app.Resolver,
		app.Runner,
		app.Health,
		serverMetrics,
		httpadapter.Options{
			Service:         "api",
			RateLimitRPS:    cfg.RateLimitRequestsPerSec,
			RateLimitBurst:  cfg.RateLimitBurst,
			EntityThreshold: cfg.EntityMatchThreshold,
			EntityLimit:     cfg.EntityMatchLimit,
		},
	).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_error", "error", err)
	}
}
