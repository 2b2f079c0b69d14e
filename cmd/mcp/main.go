package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/second-brain/internal/adapters/mcp"
	"github.com/kirillkom/second-brain/internal/bootstrap"
	"github.com/kirillkom/second-brain/internal/config"
	"github.com/kirillkom/second-brain/internal/observability/logging"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	// Stdout carries the MCP protocol; logs must go to stderr.
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	go func() {
		if err := app.HealthFeed.SubscribeSnapshots(ctx, app.Health); err != nil && ctx.Err() == nil {
			slog.Error("health_feed_subscribe_failed", "error", err)
		}
	}()

	server := mcpadapter.NewServer(app.RetrieveUC, app.Resolver, app.Runner, app.Health, version)
	slog.Info("mcp_serving_stdio")
	if err := server.ServeStdio(); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}
