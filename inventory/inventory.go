package inventory

import (
	"errors"
	"time"
)

var (
	ErrItemNotFound        = errors.New("inventory: item not found")
	ErrReservationNotFound = errors.New("inventory: reservation not found")
)

// Item is a bookable stock position.
type Item struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Available int       `gorm:"column:available;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName implements the gorm naming convention.
func (Item) TableName() string {
	return "inventory_items"
}

// Reservation holds stock for one booking. BookingID is unique: a duplicate
// BookingRequested finds the existing row and no-ops.
type Reservation struct {
	ID        string    `gorm:"column:id;primaryKey"`
	BookingID string    `gorm:"column:booking_id;not null;uniqueIndex"`
	ItemID    string    `gorm:"column:item_id;not null;index"`
	Quantity  int       `gorm:"column:quantity;not null"`
	Released  bool      `gorm:"column:released;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName implements the gorm naming convention.
func (Reservation) TableName() string {
	return "inventory_reservations"
}
