package payment

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/hiennm11/booking-saga/contracts"
	"github.com/hiennm11/booking-saga/outbox"
)

// GormRepository persists payments and their outbox in one database.
type GormRepository struct {
	db     *gorm.DB
	outbox *outbox.GormStore
}

// NewGormRepository creates a gorm-backed repository.
func NewGormRepository(db *gorm.DB, ob *outbox.GormStore) *GormRepository {
	return &GormRepository{db: db, outbox: ob}
}

// AutoMigrate creates the payments table.
func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Payment{})
}

// GetByBooking implements Repository.
func (r *GormRepository) GetByBooking(ctx context.Context, bookingID string) (Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

// CreateWithEvent implements Repository.
func (r *GormRepository) CreateWithEvent(ctx context.Context, p Payment, env contracts.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		_, err := r.outbox.WithTx(tx).Append(ctx, env.EventName, body)
		return err
	})
}
