package payment

import (
	"errors"
	"time"
)

var ErrPaymentNotFound = errors.New("payment: not found")

// Status records the charge outcome. Payments are written once; retries of
// SeatReserved find the settled row and no-op.
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Payment is one settled charge attempt for one booking.
type Payment struct {
	ID            string    `gorm:"column:id;primaryKey"`
	BookingID     string    `gorm:"column:booking_id;not null;uniqueIndex"`
	Amount        float64   `gorm:"column:amount;not null"`
	Status        Status    `gorm:"column:status;not null"`
	FailReason    string    `gorm:"column:fail_reason"`
	CorrelationID string    `gorm:"column:correlation_id;not null;index"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
}

// TableName implements the gorm naming convention.
func (Payment) TableName() string {
	return "payments"
}
