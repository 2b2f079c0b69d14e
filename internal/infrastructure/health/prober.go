package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/second-brain/internal/core/domain"
	"github.com/kirillkom/second-brain/internal/core/ports"
)

// Pinger is the reachability probe a provider exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ProberOptions struct {
	Interval          time.Duration
	ProbeTimeout      time.Duration
	DegradedThreshold time.Duration
}

func (o ProberOptions) normalize() ProberOptions {
	if o.Interval <= 0 {
		o.Interval = 15 * time.Second
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 3 * time.Second
	}
	if o.DegradedThreshold <= 0 {
		o.DegradedThreshold = 750 * time.Millisecond
	}
	return o
}

// Prober periodically pings registered providers and swaps a fresh snapshot
// into the store. A slow but successful probe marks the provider degraded,
// a failed one unavailable.
type Prober struct {
	targets   map[string]Pinger
	store     *Store
	publisher ports.HealthPublisher
	opts      ProberOptions
}

func NewProber(targets map[string]Pinger, store *Store, publisher ports.HealthPublisher, opts ProberOptions) *Prober {
	return &Prober{
		targets:   targets,
		store:     store,
		publisher: publisher,
		opts:      opts.normalize(),
	}
}

// Run probes immediately, then on every tick until ctx is canceled.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.probeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.probeOnce(ctx)
		}
	}
}

func (p *Prober) probeOnce(ctx context.Context) {
	statuses := make(map[string]domain.ProviderStatus, len(p.targets))
	for name, target := range p.targets {
		statuses[name] = p.probe(ctx, name, target)
	}
	snapshot := domain.HealthSnapshot{
		Statuses:  statuses,
		CheckedAt: time.Now().UTC(),
	}
	p.store.SetSnapshot(snapshot)

	if p.publisher != nil {
		if err := p.publisher.PublishSnapshot(ctx, snapshot); err != nil {
			slog.Warn("health_snapshot_publish_failed", "error", err)
		}
	}
}

func (p *Prober) probe(ctx context.Context, name string, target Pinger) domain.ProviderStatus {
	probeCtx, cancel := context.WithTimeout(ctx, p.opts.ProbeTimeout)
	defer cancel()

	start := time.Now()
	err := target.Ping(probeCtx)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		slog.Warn("provider_probe_failed", "provider", name, "error", err)
		return domain.StatusUnavailable
	case elapsed > p.opts.DegradedThreshold:
		slog.Warn("provider_probe_slow", "provider", name, "elapsed_ms", elapsed.Milliseconds())
		return domain.StatusDegraded
	default:
		return domain.StatusAvailable
	}
}
