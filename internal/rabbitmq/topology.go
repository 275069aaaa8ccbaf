package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DeadLetterExchange routes terminally failed messages to per-queue DLQs.
	DeadLetterExchange = "dlx"
	// DLQSuffix is appended to a source queue name to form its DLQ name.
	DLQSuffix = ".dlq"
)

// DLQName returns the dead-letter queue for a source queue.
func DLQName(queue string) string {
	return queue + DLQSuffix
}

// TopologyManager declares the saga queues and their dead-letter wiring.
type TopologyManager struct {
	cm *ConnectionManager
}

// NewTopologyManager creates a topology manager.
func NewTopologyManager(cm *ConnectionManager) *TopologyManager {
	return &TopologyManager{cm: cm}
}

// DeclareSagaTopology declares every queue with its DLQ. Declarations are
// idempotent on the broker side; each service declares the queues it touches.
func (tm *TopologyManager) DeclareSagaTopology(ctx context.Context, queues []string) error {
	ch, err := tm.cm.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		DeadLetterExchange,
		"direct",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("%w: exchange %s: %v", ErrTopologyDeclaration, DeadLetterExchange, err)
	}

	for _, queue := range queues {
		if err := tm.declareQueueWithDLQ(ch, queue); err != nil {
			return err
		}
	}
	return nil
}

func (tm *TopologyManager) declareQueueWithDLQ(ch *amqp.Channel, queue string) error {
	dlq := DLQName(queue)

	if _, err := ch.QueueDeclare(
		dlq,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("%w: queue %s: %v", ErrTopologyDeclaration, dlq, err)
	}

	if err := ch.QueueBind(dlq, dlq, DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("%w: bind %s: %v", ErrTopologyDeclaration, dlq, err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp.Table{
			"x-dead-letter-exchange":    DeadLetterExchange,
			"x-dead-letter-routing-key": dlq,
		},
	); err != nil {
		return fmt.Errorf("%w: queue %s: %v", ErrTopologyDeclaration, queue, err)
	}

	return nil
}
