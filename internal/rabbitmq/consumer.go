package rabbitmq

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeliveryFunc receives one delivery and is responsible for its
// acknowledgment. The verdict logic (ack, reject, requeue, dead-letter) lives
// in the messaging dispatcher.
type DeliveryFunc func(ctx context.Context, delivery amqp.Delivery)

// Consumer runs one delivery loop per subscribed queue with a single
// unacknowledged message in flight, which yields strict per-queue ordering.
type Consumer struct {
	cm       *ConnectionManager
	prefetch int
	tag      string
	logger   *slog.Logger
}

// ConsumerOption configures the consumer.
type ConsumerOption func(*Consumer)

// WithPrefetch raises the in-flight bound, trading ordering for throughput.
func WithPrefetch(count int) ConsumerOption {
	return func(c *Consumer) {
		c.prefetch = count
	}
}

// WithConsumerTag sets the consumer tag.
func WithConsumerTag(tag string) ConsumerOption {
	return func(c *Consumer) {
		c.tag = tag
	}
}

// WithConsumerLogger sets the logger.
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// NewConsumer creates a consumer with prefetch 1.
func NewConsumer(cm *ConnectionManager, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		cm:       cm,
		prefetch: 1,
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Consume blocks, delivering messages from queue to fn until ctx is
// cancelled. A dropped channel or connection re-enters the connection
// pipeline and resumes consuming.
func (c *Consumer) Consume(ctx context.Context, queue string, fn DeliveryFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.consumeOnce(ctx, queue, fn)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("consumer loop interrupted, resubscribing",
			"queue", queue,
			"error", err)

		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context, queue string, fn DeliveryFunc) error {
	ch, err := c.cm.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.ConsumeWithContext(ctx,
		queue,
		c.tag,
		false, // manual ack
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return err
	}

	c.logger.Info("consuming queue", "queue", queue, "prefetch", c.prefetch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return ErrConsumerStopped
			}
			fn(ctx, delivery)
		}
	}
}
