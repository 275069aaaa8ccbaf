package deadletter

import (
	"context"
	"errors"
	"time"
)

var ErrRecordNotFound = errors.New("deadletter: record not found")

// Record is the durable trace of a message that exhausted its requeue budget.
// Records are never auto-deleted; Resolved flips only by administrative
// action.
type Record struct {
	ID             string    `gorm:"column:id;primaryKey"`
	SourceQueue    string    `gorm:"column:source_queue;not null;index"`
	EventType      string    `gorm:"column:event_type;not null"`
	CorrelationID  string    `gorm:"column:correlation_id;index"`
	Payload        []byte    `gorm:"column:payload;not null"`
	ErrorMessage   string    `gorm:"column:error_message"`
	StackTrace     string    `gorm:"column:stack_trace"`
	AttemptCount   int       `gorm:"column:attempt_count;not null"`
	FirstAttemptAt time.Time `gorm:"column:first_attempt_at"`
	FailedAt       time.Time `gorm:"column:failed_at;not null"`
	Resolved       bool      `gorm:"column:resolved;not null;default:false;index"`
}

// TableName implements the gorm naming convention.
func (Record) TableName() string {
	return "dead_letter_records"
}

// Filter narrows List results.
type Filter struct {
	SourceQueue    string
	OnlyUnresolved bool
	Limit          int
}

// Store keeps terminally failed messages queryable until manually resolved.
type Store interface {
	Save(ctx context.Context, record Record) error
	List(ctx context.Context, filter Filter) ([]Record, error)
	// Resolve marks a record handled by an operator. The record stays.
	Resolve(ctx context.Context, id string) error
}
