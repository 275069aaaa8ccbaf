package rabbitmq

import (
	"errors"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	ErrNotConnected       = errors.New("rabbitmq: not connected")
	ErrConnectionClosed   = errors.New("rabbitmq: connection is closed")
	ErrConnectTimeout     = errors.New("rabbitmq: connect timeout")
	ErrPublishNotAcked    = errors.New("rabbitmq: publish not confirmed by broker")
	ErrPublishTimeout     = errors.New("rabbitmq: publish confirm timeout")
	ErrConsumerStopped    = errors.New("rabbitmq: consumer stopped")
	ErrAccessRefused      = errors.New("rabbitmq: access refused")
	ErrTopologyDeclaration = errors.New("rabbitmq: topology declaration failed")
)

// ConnectionError reports a failed connect or reconnect.
type ConnectionError struct {
	Op        string
	URL       string
	Err       error
	Attempts  int
	Timestamp time.Time
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("rabbitmq connection error: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("rabbitmq connection error: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsRetryable reports whether the underlying failure looks transient.
func (e *ConnectionError) IsRetryable() bool { return isTransient(e.Err) }

// PublishError reports a failed publish to a queue.
type PublishError struct {
	Queue     string
	MessageID string
	Err       error
	Timestamp time.Time
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("rabbitmq publish error: queue %s message %s: %v", e.Queue, e.MessageID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsRetryable reports whether the underlying failure looks transient.
func (e *PublishError) IsRetryable() bool { return isTransient(e.Err) }

// isTransient classifies broker failures. Connection loss, refused dials and
// timeouts are retryable; authentication and topology errors propagate
// immediately.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrAccessRefused),
		errors.Is(err, ErrTopologyDeclaration):
		return false
	case errors.Is(err, amqp.ErrClosed),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrConnectionClosed),
		errors.Is(err, ErrConnectTimeout),
		errors.Is(err, ErrPublishTimeout),
		errors.Is(err, ErrPublishNotAcked):
		return true
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		// Access refused and not-found are permanent; the server recover bit
		// marks everything else worth another try.
		if amqpErr.Code == amqp.AccessRefused || amqpErr.Code == amqp.NotFound {
			return false
		}
		return amqpErr.Recover || amqpErr.Code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return true
}
