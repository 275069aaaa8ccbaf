package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/hiennm11/booking-saga/contracts"
)

// Publisher is the publish pipeline the relay drains records through.
type Publisher interface {
	PublishEnvelope(ctx context.Context, queue string, env contracts.Envelope) error
}

// Relay is the polling loop that drains a service's outbox store. One relay
// instance is assumed active per service; running replicas without a claiming
// mechanism can duplicate sends (consumers are idempotent, so this degrades
// to wasted work, not corruption).
type Relay struct {
	store        Store
	publisher    Publisher
	pollInterval time.Duration
	batchSize    int
	drainTimeout time.Duration
	logger       *slog.Logger
}

// RelayOption configures the relay.
type RelayOption func(*Relay)

// WithPollInterval sets how often pending records are fetched.
func WithPollInterval(interval time.Duration) RelayOption {
	return func(r *Relay) {
		r.pollInterval = interval
	}
}

// WithBatchSize caps how many records one cycle drains.
func WithBatchSize(size int) RelayOption {
	return func(r *Relay) {
		r.batchSize = size
	}
}

// WithDrainTimeout bounds the best-effort final pass on shutdown.
func WithDrainTimeout(timeout time.Duration) RelayOption {
	return func(r *Relay) {
		r.drainTimeout = timeout
	}
}

// WithRelayLogger sets the logger.
func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

// NewRelay creates a relay. Defaults: 5s poll interval, batches of 50, 10s
// shutdown drain.
func NewRelay(store Store, publisher Publisher, options ...RelayOption) *Relay {
	r := &Relay{
		store:        store,
		publisher:    publisher,
		pollInterval: 5 * time.Second,
		batchSize:    50,
		drainTimeout: 10 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled, then makes one best-effort final pass
// bounded by the drain timeout. It does not guarantee the pass empties the
// backlog.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started",
		"pollInterval", r.pollInterval,
		"batchSize", r.batchSize)

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), r.drainTimeout)
			defer cancel()
			if err := r.RunOnce(drainCtx); err != nil {
				r.logger.Warn("final outbox drain incomplete", "error", err)
			}
			r.logger.Info("outbox relay stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("outbox relay cycle failed", "error", err)
			}
		}
	}
}

// RunOnce drains one batch. A single record's failure never blocks the rest
// of the batch.
func (r *Relay) RunOnce(ctx context.Context) error {
	pending, err := r.store.FetchPending(ctx, r.batchSize)
	if err != nil {
		return err
	}

	published := 0
	for _, record := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.relayRecord(ctx, record) {
			published++
		}
	}

	if published > 0 {
		r.logger.Info("outbox batch relayed",
			"published", published,
			"fetched", len(pending))
	}

	if stuck, err := r.store.CountExhausted(ctx); err == nil && stuck > 0 {
		// Stuck records are skipped, never deleted; they need an operator.
		r.logger.Warn("outbox records stuck past retry cap", "count", stuck)
	}

	return nil
}

func (r *Relay) relayRecord(ctx context.Context, record Record) bool {
	env, err := contracts.DecodeEnvelope(record.Payload)
	if err != nil {
		r.logger.Error("outbox payload undecodable",
			"outboxId", record.ID,
			"eventType", record.EventType,
			"error", err)
		r.markFailed(ctx, record.ID, err)
		return false
	}

	if err := r.publisher.PublishEnvelope(ctx, record.EventType, env); err != nil {
		r.logger.Error("outbox publish failed",
			"outboxId", record.ID,
			"eventType", record.EventType,
			"event_id", env.EventID,
			"correlation_id", env.CorrelationID,
			"retryCount", record.RetryCount,
			"error", err)
		r.markFailed(ctx, record.ID, err)
		return false
	}

	if err := r.store.MarkPublished(ctx, record.ID); err != nil {
		r.logger.Error("outbox mark published failed",
			"outboxId", record.ID,
			"error", err)
		return false
	}

	r.logger.Debug("outbox record published",
		"outboxId", record.ID,
		"eventType", record.EventType,
		"event_id", env.EventID,
		"correlation_id", env.CorrelationID)
	return true
}

func (r *Relay) markFailed(ctx context.Context, id string, cause error) {
	if err := r.store.MarkFailed(ctx, id, cause); err != nil {
		r.logger.Error("outbox mark failed failed", "outboxId", id, "error", err)
	}
}
