package rabbitmq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hiennm11/booking-saga/internal/reliability"
)

// ConnectionManager owns the broker connection and re-establishes it through
// the patient connection pipeline. The pipeline runs lazily: on the first
// Channel call, and again whenever the underlying connection is detected
// closed.
type ConnectionManager struct {
	url         string
	dialTimeout time.Duration
	policy      reliability.Policy
	logger      *slog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	closed bool
}

// ConnectionOption configures the ConnectionManager.
type ConnectionOption func(*ConnectionManager)

// WithConnectPolicy overrides the connection pipeline's retry policy.
func WithConnectPolicy(policy reliability.Policy) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.policy = policy
	}
}

// WithDialTimeout bounds a single dial attempt.
func WithDialTimeout(timeout time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.dialTimeout = timeout
	}
}

// WithConnectionLogger sets the logger.
func WithConnectionLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// NewConnectionManager creates a connection manager. The default pipeline is
// deliberately more patient than the publish pipeline: 10 attempts, 2s base
// delay, capped at 30s per attempt, with jitter.
func NewConnectionManager(url string, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		url:         url,
		dialTimeout: 10 * time.Second,
		policy:      reliability.NewExponentialBackoff(2*time.Second, 30*time.Second, 2.0, 10),
		logger:      slog.Default(),
	}
	for _, opt := range options {
		opt(cm)
	}
	return cm
}

// Channel returns a channel on a live connection, running the connection
// pipeline first if necessary.
func (cm *ConnectionManager) Channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := cm.connection(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		// The connection may have died between the liveness check and the
		// channel open. One pipeline pass on a fresh connection.
		conn, cerr := cm.connection(ctx)
		if cerr != nil {
			return nil, cerr
		}
		return conn.Channel()
	}
	return ch, nil
}

// IsConnected reports whether a live connection is held.
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.conn != nil && !cm.conn.IsClosed()
}

// Close shuts the connection down. Subsequent Channel calls fail.
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.closed = true
	if cm.conn == nil {
		return nil
	}
	err := cm.conn.Close()
	cm.conn = nil
	return err
}

func (cm *ConnectionManager) connection(ctx context.Context) (*amqp.Connection, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return nil, ErrConnectionClosed
	}
	if cm.conn != nil && !cm.conn.IsClosed() {
		return cm.conn, nil
	}
	cm.conn = nil

	attempts := 0
	start := time.Now()
	err := reliability.Retry(ctx, cm.policy, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			cm.logger.Info("reattempting broker connection",
				"attempt", attempts,
				"maxAttempts", cm.policy.MaxAttempts(),
				"url", sanitizeURL(cm.url))
		}

		conn, err := cm.dial(ctx)
		if err != nil {
			cm.logger.Error("broker connection failed",
				"error", err,
				"attempt", attempts)
			return err
		}

		cm.conn = conn
		cm.watchClose(conn)
		return nil
	})
	if err != nil {
		return nil, &ConnectionError{
			Op:        "connect",
			URL:       sanitizeURL(cm.url),
			Err:       err,
			Attempts:  attempts,
			Timestamp: time.Now(),
		}
	}

	cm.logger.Info("connected to broker",
		"url", sanitizeURL(cm.url),
		"attempts", attempts,
		"elapsed", time.Since(start))
	return cm.conn, nil
}

// dial runs a single bounded connection attempt.
func (cm *ConnectionManager) dial(ctx context.Context) (*amqp.Connection, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cm.dialTimeout)
	defer cancel()

	connCh := make(chan *amqp.Connection, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := amqp.Dial(cm.url)
		if err != nil {
			errCh <- err
			return
		}
		connCh <- conn
	}()

	select {
	case conn := <-connCh:
		return conn, nil
	case err := <-errCh:
		var amqpErr *amqp.Error
		if errors.As(err, &amqpErr) && amqpErr.Code == amqp.AccessRefused {
			return nil, reliability.Permanent(ErrAccessRefused)
		}
		return nil, err
	case <-dialCtx.Done():
		// The dial keeps running after we give up on it; close the
		// connection if it lands so it does not leak.
		go func() {
			select {
			case conn := <-connCh:
				conn.Close()
			case <-errCh:
			}
		}()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrConnectTimeout
	}
}

// watchClose clears the held connection once the broker drops it, so the next
// Channel call re-runs the pipeline.
func (cm *ConnectionManager) watchClose(conn *amqp.Connection) {
	notify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		err, ok := <-notify
		if !ok {
			return
		}
		cm.logger.Warn("broker connection lost", "error", err)
		cm.mu.Lock()
		if cm.conn == conn {
			cm.conn = nil
		}
		cm.mu.Unlock()
	}()
}

// sanitizeURL strips credentials before a URL reaches a log line.
func sanitizeURL(url string) string {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '@' {
			return "amqp://***" + url[i:]
		}
	}
	return url
}
