package rabbitmq

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hiennm11/booking-saga/internal/reliability"
)

// Message is one payload bound for one queue.
type Message struct {
	MessageID     string
	CorrelationID string
	Body          []byte
	Headers       amqp.Table
}

// Publisher is the bounded-retry publish pipeline. It sends persistent
// messages to the default exchange routed by queue name and waits for the
// broker's publisher confirm before reporting success.
type Publisher struct {
	cm      *ConnectionManager
	policy  reliability.Policy
	timeout time.Duration
	confirm time.Duration
	logger  *slog.Logger
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithPublishPolicy overrides the publish pipeline's retry policy.
func WithPublishPolicy(policy reliability.Policy) PublisherOption {
	return func(p *Publisher) {
		p.policy = policy
	}
}

// WithPublishTimeout bounds the whole publish operation, retries included.
func WithPublishTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.timeout = timeout
	}
}

// WithConfirmTimeout bounds the wait for one broker confirm.
func WithConfirmTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.confirm = timeout
	}
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a publisher. Defaults: 3 attempts, 500ms base delay
// doubling with jitter, 10s overall timeout.
func NewPublisher(cm *ConnectionManager, options ...PublisherOption) *Publisher {
	p := &Publisher{
		cm:      cm,
		policy:  reliability.NewExponentialBackoff(500*time.Millisecond, 5*time.Second, 2.0, 3),
		timeout: 10 * time.Second,
		confirm: 5 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Publish sends one message to one queue through the retry pipeline. On
// exhaustion the terminal failure surfaces to the caller; durability is the
// outbox store's job, not this call's.
func (p *Publisher) Publish(ctx context.Context, queue string, msg Message) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	err := reliability.Retry(ctx, p.policy, func(ctx context.Context) error {
		return p.publishOnce(ctx, queue, msg)
	})
	if err != nil {
		return &PublishError{
			Queue:     queue,
			MessageID: msg.MessageID,
			Err:       err,
			Timestamp: time.Now(),
		}
	}
	return nil
}

// publishOnce is one attempt: fresh channel, confirm mode, wait for the ack.
func (p *Publisher) publishOnce(ctx context.Context, queue string, msg Message) error {
	ch, err := p.cm.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return err
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		"",    // default exchange
		queue, // routed by queue name
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			MessageId:     msg.MessageID,
			CorrelationId: msg.CorrelationID,
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now().UTC(),
			Headers:       msg.Headers,
			Body:          msg.Body,
		})
	if err != nil {
		return err
	}

	confirmCtx, cancel := context.WithTimeout(ctx, p.confirm)
	defer cancel()

	acked, err := confirmation.WaitContext(confirmCtx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrPublishTimeout
	}
	if !acked {
		return ErrPublishNotAcked
	}

	p.logger.Debug("message published",
		"queue", queue,
		"messageId", msg.MessageID,
		"correlation_id", msg.CorrelationID)
	return nil
}
