package messaging

import (
	"context"

	"github.com/hiennm11/booking-saga/contracts"
	"github.com/hiennm11/booking-saga/internal/rabbitmq"
)

// QueuePublisher is the transport-level publish pipeline.
type QueuePublisher interface {
	Publish(ctx context.Context, queue string, msg rabbitmq.Message) error
}

// EventPublisher turns envelopes into broker messages. Every event leaves a
// service through its outbox; the relay drains records through
// PublishEnvelope. Non-outbox publishes exist only inside the dispatcher
// (requeue and dead-letter copies), which talks to the transport directly.
type EventPublisher struct {
	transport QueuePublisher
}

// NewEventPublisher creates an event publisher.
func NewEventPublisher(transport QueuePublisher) *EventPublisher {
	return &EventPublisher{transport: transport}
}

// PublishEnvelope sends one envelope to its queue through the publish
// pipeline, surfacing terminal failure to the caller.
func (p *EventPublisher) PublishEnvelope(ctx context.Context, queue string, env contracts.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	return p.transport.Publish(ctx, queue, rabbitmq.Message{
		MessageID:     env.EventID,
		CorrelationID: env.CorrelationID,
		Body:          body,
	})
}
