package outbox

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRecordNotFound = errors.New("outbox: record not found")
	ErrEmptyPayload   = errors.New("outbox: empty payload")
)

// maxErrorLen bounds last_error so a pathological error string cannot bloat
// the store.
const maxErrorLen = 1024

// Record is one durable outbox row. A record exists iff the business mutation
// that produced it committed; published=false means "not yet confirmed
// delivered", never "mutation didn't happen".
type Record struct {
	ID            string     `gorm:"column:id;primaryKey"`
	EventType     string     `gorm:"column:event_type;not null;index"`
	Payload       []byte     `gorm:"column:payload;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null;index"`
	Published     bool       `gorm:"column:published;not null;default:false;index"`
	PublishedAt   *time.Time `gorm:"column:published_at"`
	RetryCount    int        `gorm:"column:retry_count;not null;default:0"`
	LastError     string     `gorm:"column:last_error"`
	LastAttemptAt *time.Time `gorm:"column:last_attempt_at"`
}

// TableName implements the gorm naming convention.
func (Record) TableName() string {
	return "outbox_records"
}

// Store is the per-service durable log of pending and sent events.
//
// Append must run inside the same unit of work as the triggering business
// write; implementations expose a transaction-scoped view for that.
// MarkPublished and MarkFailed are safe to call twice for the same id.
type Store interface {
	Append(ctx context.Context, eventType string, payload []byte) (Record, error)
	FetchPending(ctx context.Context, batchSize int) ([]Record, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) error
	// CountExhausted reports records stuck past the retry cap. They stay in
	// place for operator inspection and are never deleted by the relay.
	CountExhausted(ctx context.Context) (int64, error)
}

func truncateError(cause error) string {
	if cause == nil {
		return ""
	}
	msg := cause.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return msg
}
