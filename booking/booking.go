package booking

import (
	"errors"
	"time"
)

var ErrBookingNotFound = errors.New("booking: not found")

// Status is the saga aggregate state. PENDING moves to exactly one of the two
// terminal states; transitions into a terminal state are idempotent no-ops
// once already terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Booking is the saga aggregate owned by the booking service.
type Booking struct {
	ID            string    `gorm:"column:id;primaryKey"`
	UserID        string    `gorm:"column:user_id;not null"`
	ItemID        string    `gorm:"column:item_id;not null"`
	Quantity      int       `gorm:"column:quantity;not null"`
	Amount        float64   `gorm:"column:amount;not null"`
	Status        Status    `gorm:"column:status;not null;index"`
	CancelReason  string    `gorm:"column:cancel_reason"`
	CorrelationID string    `gorm:"column:correlation_id;not null;index"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

// TableName implements the gorm naming convention.
func (Booking) TableName() string {
	return "bookings"
}

// IsTerminal reports whether the booking reached a final state.
func (b *Booking) IsTerminal() bool {
	return b.Status == StatusConfirmed || b.Status == StatusCancelled
}

// Confirm moves the booking to CONFIRMED. Returns false when the booking was
// already terminal.
func (b *Booking) Confirm(now time.Time) bool {
	if b.IsTerminal() {
		return false
	}
	b.Status = StatusConfirmed
	b.UpdatedAt = now
	return true
}

// Cancel moves the booking to CANCELLED with a reason. Returns false when the
// booking was already terminal.
func (b *Booking) Cancel(reason string, now time.Time) bool {
	if b.IsTerminal() {
		return false
	}
	b.Status = StatusCancelled
	b.CancelReason = reason
	b.UpdatedAt = now
	return true
}
