package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/second-brain/internal/bootstrap"
	"github.com/kirillkom/second-brain/internal/config"
	"github.com/kirillkom/second-brain/internal/infrastructure/health"
	"github.com/kirillkom/second-brain/internal/observability/logging"
	"github.com/kirillkom/second-brain/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("healthwatch", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	proberMetrics := metrics.NewProberMetrics("healthwatch")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.HealthMetricsPort,
		Handler: proberMetrics.Handler(),
	}
	go func() {
		slog.Info("healthwatch_metrics_listening", "port", cfg.HealthMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server error: %v", err)
		}
	}()

	prober := health.NewProber(app.Probes, app.Health, app.HealthFeed, health.ProberOptions{
		Interval: time.Duration(cfg.HealthProbeIntervalSec) * time.Second,
	})

	slog.Info("healthwatch_probing", "providers", len(app.Probes), "subject", cfg.NATSHealthSubject)
	if err := prober.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("prober error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
