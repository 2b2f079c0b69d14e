package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kirillkom/second-brain/internal/core/domain"
	"github.com/kirillkom/second-brain/internal/infrastructure/resilience"
)

// Feed distributes health snapshots over NATS so the API process and the
// standalone prober stay in sync without sharing a database.
type Feed struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

type FeedOptions struct {
	ConnectTimeout     time.Duration
	ReconnectWait      time.Duration
	MaxReconnects      int
	ResilienceExecutor *resilience.Executor
}

func NewFeed(url, subject string, options FeedOptions) (*Feed, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}

	conn, err := nats.Connect(
		url,
		nats.Name("second-brain"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Feed{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (f *Feed) Close() {
	if f.conn != nil {
		f.conn.Close()
	}
}

type snapshotEvent struct {
	EventID  string                `json:"event_id"`
	Snapshot domain.HealthSnapshot `json:"snapshot"`
}

// PublishSnapshot fans the snapshot out to every subscribed process.
func (f *Feed) PublishSnapshot(ctx context.Context, snapshot domain.HealthSnapshot) error {
	payload, err := json.Marshal(snapshotEvent{
		EventID:  uuid.NewString(),
		Snapshot: snapshot,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := f.conn.Publish(f.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if f.executor != nil {
		err = f.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// SubscribeSnapshots applies incoming snapshots to the store until ctx is
// canceled. Malformed events are logged and skipped, never fatal.
func (f *Feed) SubscribeSnapshots(ctx context.Context, store *Store) error {
	sub, err := f.conn.Subscribe(f.subject, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var event snapshotEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("health_snapshot_decode_failed", "error", err)
			return
		}
		store.SetSnapshot(event.Snapshot)
		slog.Debug("health_snapshot_applied", "event_id", event.EventID, "checked_at", event.Snapshot.CheckedAt)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := f.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := f.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func classifyNATSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	class := classifyNATSError(err)
	if class.Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	}
	return err
}
