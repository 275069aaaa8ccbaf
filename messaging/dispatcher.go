package messaging

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hiennm11/booking-saga/contracts"
	"github.com/hiennm11/booking-saga/deadletter"
	"github.com/hiennm11/booking-saga/internal/rabbitmq"
	"github.com/hiennm11/booking-saga/internal/reliability"
)

// Requeue-tracking headers ride on the message itself, so the budget survives
// process restarts instead of living in an in-memory counter.
const (
	HeaderRequeueCount  = "x-requeue-count"
	HeaderFirstAttempt  = "x-first-attempt"
	HeaderRetryCount    = "x-retry-count"
	HeaderErrorMessage  = "x-error-message"
	HeaderOriginalQueue = "x-original-queue"
)

// Handler reacts to one decoded envelope. Handlers must tolerate re-delivery:
// they check aggregate state before applying a terminal transition and no-op
// when it is already terminal.
type Handler func(ctx context.Context, env contracts.Envelope) error

// Delivery is the slice of an inbound message the dispatcher needs.
type Delivery interface {
	Body() []byte
	Headers() amqp.Table
	Ack() error
	Reject(requeue bool) error
}

// Dispatcher is the consumer-side state machine: decode, optional dedup,
// in-process bounded retry, header-scoped requeue budget, dead-letter on
// exhaustion.
type Dispatcher struct {
	publisher     QueuePublisher
	deadLetters   deadletter.Store
	dedup         DedupStore
	handlerPolicy reliability.Policy
	maxRequeue    int
	requeueDelay  time.Duration
	dedupTTL      time.Duration
	logger        *slog.Logger
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHandlerRetryPolicy overrides the in-process retry pipeline handlers run
// under.
func WithHandlerRetryPolicy(policy reliability.Policy) DispatcherOption {
	return func(d *Dispatcher) {
		d.handlerPolicy = policy
	}
}

// WithMaxRequeueAttempts bounds how often a message returns to its queue
// before dead-lettering.
func WithMaxRequeueAttempts(max int) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxRequeue = max
	}
}

// WithRequeueDelay sets the pause before a message is requeued.
func WithRequeueDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.requeueDelay = delay
	}
}

// WithDedupStore enables event-id dedup. Handlers stay idempotent regardless;
// dedup only short-circuits the common duplicate.
func WithDedupStore(store DedupStore, ttl time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.dedup = store
		d.dedupTTL = ttl
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher. Defaults: 3 in-process attempts with
// 200ms base backoff, 3 requeue attempts, 1s requeue delay.
func NewDispatcher(publisher QueuePublisher, deadLetters deadletter.Store, options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		publisher:     publisher,
		deadLetters:   deadLetters,
		handlerPolicy: reliability.NewExponentialBackoff(200*time.Millisecond, 5*time.Second, 2.0, 3),
		maxRequeue:    3,
		requeueDelay:  time.Second,
		dedupTTL:      24 * time.Hour,
		logger:        slog.Default(),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// DeliveryFunc adapts the dispatcher to the transport consumer loop for one
// queue and handler.
func (d *Dispatcher) DeliveryFunc(queue string, handler Handler) rabbitmq.DeliveryFunc {
	return func(ctx context.Context, delivery amqp.Delivery) {
		d.Dispatch(ctx, queue, handler, amqpDelivery{delivery})
	}
}

// Dispatch runs one message through the state machine.
func (d *Dispatcher) Dispatch(ctx context.Context, queue string, handler Handler, delivery Delivery) {
	env, err := contracts.DecodeEnvelope(delivery.Body())
	if err != nil {
		// Permanent message defect: no retry, no requeue. The broker's
		// dead-letter exchange carries the body to the DLQ.
		d.logger.Error("malformed message rejected",
			"queue", queue,
			"error", err)
		d.reject(queue, delivery, false)
		return
	}

	logger := d.logger.With(
		"queue", queue,
		"event_id", env.EventID,
		"event_name", env.EventName,
		"correlation_id", env.CorrelationID,
	)

	if d.dedup != nil {
		seen, derr := d.dedup.Seen(ctx, env.EventID)
		if derr != nil {
			logger.Warn("dedup lookup failed, proceeding", "error", derr)
		} else if seen {
			logger.Debug("duplicate event acknowledged")
			d.ack(queue, delivery)
			return
		}
	}

	err = reliability.Retry(ctx, d.handlerPolicy, func(ctx context.Context) error {
		return handler(ctx, env)
	})
	if err == nil {
		if d.dedup != nil {
			if derr := d.dedup.MarkProcessed(ctx, env.EventID, d.dedupTTL); derr != nil {
				logger.Warn("dedup mark failed", "error", derr)
			}
		}
		d.ack(queue, delivery)
		return
	}

	if ctx.Err() != nil {
		// Shutdown mid-processing: leave the message unacked so the broker
		// redelivers it.
		d.reject(queue, delivery, true)
		return
	}

	requeues := headerInt(delivery.Headers(), HeaderRequeueCount)
	firstAttempt := headerTime(delivery.Headers(), HeaderFirstAttempt)
	if firstAttempt.IsZero() {
		firstAttempt = env.Timestamp
	}

	if reliability.IsRetryable(err) && requeues < d.maxRequeue {
		d.requeue(ctx, queue, env, delivery, err, requeues, firstAttempt, logger)
		return
	}

	d.deadLetter(ctx, queue, env, delivery, err, requeues, firstAttempt, logger)
}

// requeue republishes the message to its own queue with the incremented
// budget header and acknowledges the original delivery.
func (d *Dispatcher) requeue(ctx context.Context, queue string, env contracts.Envelope, delivery Delivery, cause error, requeues int, firstAttempt time.Time, logger *slog.Logger) {
	select {
	case <-time.After(d.requeueDelay):
	case <-ctx.Done():
		d.reject(queue, delivery, true)
		return
	}

	msg := rabbitmq.Message{
		MessageID:     env.EventID,
		CorrelationID: env.CorrelationID,
		Body:          delivery.Body(),
		Headers: amqp.Table{
			HeaderRequeueCount: int32(requeues + 1),
			HeaderFirstAttempt: firstAttempt.UTC().Format(time.RFC3339Nano),
		},
	}
	if err := d.publisher.Publish(ctx, queue, msg); err != nil {
		// Fall back to broker-level requeue; the budget header stays as is,
		// so this redelivery is not counted.
		logger.Error("requeue republish failed, nacking with requeue", "error", err)
		d.reject(queue, delivery, true)
		return
	}

	logger.Warn("message requeued",
		"requeueCount", requeues+1,
		"maxRequeueAttempts", d.maxRequeue,
		"error", cause)
	d.ack(queue, delivery)
}

// deadLetter writes the durable record, forwards a copy to the DLQ and
// removes the message from its queue.
func (d *Dispatcher) deadLetter(ctx context.Context, queue string, env contracts.Envelope, delivery Delivery, cause error, requeues int, firstAttempt time.Time, logger *slog.Logger) {
	record := deadletter.Record{
		SourceQueue:    queue,
		EventType:      env.EventName,
		CorrelationID:  env.CorrelationID,
		Payload:        delivery.Body(),
		ErrorMessage:   cause.Error(),
		AttemptCount:   requeues,
		FirstAttemptAt: firstAttempt.UTC(),
		FailedAt:       time.Now().UTC(),
	}
	if err := d.deadLetters.Save(ctx, record); err != nil {
		// Without the durable record, keep the message on the broker side:
		// nack without requeue routes it through the dead-letter exchange.
		logger.Error("dead-letter record save failed", "error", err)
		d.reject(queue, delivery, false)
		return
	}

	dlqMsg := rabbitmq.Message{
		MessageID:     env.EventID,
		CorrelationID: env.CorrelationID,
		Body:          delivery.Body(),
		Headers: amqp.Table{
			HeaderRetryCount:    int32(requeues),
			HeaderFirstAttempt:  firstAttempt.UTC().Format(time.RFC3339Nano),
			HeaderErrorMessage:  cause.Error(),
			HeaderOriginalQueue: queue,
		},
	}
	if err := d.publisher.Publish(ctx, rabbitmq.DLQName(queue), dlqMsg); err != nil {
		logger.Error("dead-letter queue publish failed", "error", err)
	}

	logger.Error("message dead-lettered",
		"attemptCount", requeues,
		"firstAttemptAt", firstAttempt,
		"error", cause)
	d.ack(queue, delivery)
}

func (d *Dispatcher) ack(queue string, delivery Delivery) {
	if err := delivery.Ack(); err != nil {
		d.logger.Error("ack failed", "queue", queue, "error", err)
	}
}

func (d *Dispatcher) reject(queue string, delivery Delivery, requeue bool) {
	if err := delivery.Reject(requeue); err != nil {
		d.logger.Error("reject failed", "queue", queue, "requeue", requeue, "error", err)
	}
}

// amqpDelivery adapts amqp.Delivery to the Delivery interface.
type amqpDelivery struct {
	d amqp.Delivery
}

func (a amqpDelivery) Body() []byte        { return a.d.Body }
func (a amqpDelivery) Headers() amqp.Table { return a.d.Headers }
func (a amqpDelivery) Ack() error          { return a.d.Ack(false) }
func (a amqpDelivery) Reject(requeue bool) error {
	return a.d.Nack(false, requeue)
}

func headerInt(headers amqp.Table, key string) int {
	if headers == nil {
		return 0
	}
	switch v := headers[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func headerTime(headers amqp.Table, key string) time.Time {
	if headers == nil {
		return time.Time{}
	}
	switch v := headers[key].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	case time.Time:
		return v
	}
	return time.Time{}
}
