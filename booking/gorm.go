package booking

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/hiennm11/booking-saga/contracts"
	"github.com/hiennm11/booking-saga/outbox"
)

// GormRepository persists bookings and their outbox records in one database.
type GormRepository struct {
	db     *gorm.DB
	outbox *outbox.GormStore
}

// NewGormRepository creates a gorm-backed repository.
func NewGormRepository(db *gorm.DB, ob *outbox.GormStore) *GormRepository {
	return &GormRepository{db: db, outbox: ob}
}

// AutoMigrate creates the bookings table.
func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Booking{})
}

// CreateWithEvent implements Repository.
func (r *GormRepository) CreateWithEvent(ctx context.Context, b Booking, env contracts.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&b).Error; err != nil {
			return err
		}
		_, err := r.outbox.WithTx(tx).Append(ctx, env.EventName, body)
		return err
	})
}

// Get implements Repository.
func (r *GormRepository) Get(ctx context.Context, id string) (Booking, error) {
	var b Booking
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Booking{}, ErrBookingNotFound
		}
		return Booking{}, err
	}
	return b, nil
}

// Update implements Repository.
func (r *GormRepository) Update(ctx context.Context, b Booking) error {
	result := r.db.WithContext(ctx).
		Model(&Booking{}).
		Where("id = ?", b.ID).
		Updates(map[string]any{
			"status":        b.Status,
			"cancel_reason": b.CancelReason,
			"updated_at":    b.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// UpdateWithEvent implements Repository.
func (r *GormRepository) UpdateWithEvent(ctx context.Context, b Booking, env contracts.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Booking{}).
			Where("id = ?", b.ID).
			Updates(map[string]any{
				"status":        b.Status,
				"cancel_reason": b.CancelReason,
				"updated_at":    b.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrBookingNotFound
		}
		_, err := r.outbox.WithTx(tx).Append(ctx, env.EventName, body)
		return err
	})
}
