package inventory

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/hiennm11/booking-saga/contracts"
	"github.com/hiennm11/booking-saga/outbox"
)

// GormRepository persists inventory state and its outbox in one database.
type GormRepository struct {
	db     *gorm.DB
	outbox *outbox.GormStore
}

// NewGormRepository creates a gorm-backed repository.
func NewGormRepository(db *gorm.DB, ob *outbox.GormStore) *GormRepository {
	return &GormRepository{db: db, outbox: ob}
}

// AutoMigrate creates the inventory tables.
func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Item{}, &Reservation{})
}

// SeedItem implements Repository. Existing items keep their stock.
func (r *GormRepository) SeedItem(ctx context.Context, item Item) error {
	return r.db.WithContext(ctx).FirstOrCreate(&item, Item{ID: item.ID}).Error
}

// GetItem implements Repository.
func (r *GormRepository) GetItem(ctx context.Context, itemID string) (Item, error) {
	var item Item
	err := r.db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// GetReservationByBooking implements Repository.
func (r *GormRepository) GetReservationByBooking(ctx context.Context, bookingID string) (Reservation, error) {
	var res Reservation
	err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&res).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Reservation{}, ErrReservationNotFound
		}
		return Reservation{}, err
	}
	return res, nil
}

// Reserve implements Repository.
func (r *GormRepository) Reserve(ctx context.Context, item Item, res Reservation, env contracts.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Guarded decrement: the stock check re-runs inside the transaction
		// so concurrent reservations cannot oversell.
		result := tx.Model(&Item{}).
			Where("id = ? AND available >= ?", item.ID, res.Quantity).
			Updates(map[string]any{
				"available":  gorm.Expr("available - ?", res.Quantity),
				"updated_at": item.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrItemNotFound
		}
		if err := tx.Create(&res).Error; err != nil {
			return err
		}
		_, err := r.outbox.WithTx(tx).Append(ctx, env.EventName, body)
		return err
	})
}

// AppendEvent implements Repository.
func (r *GormRepository) AppendEvent(ctx context.Context, env contracts.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	_, err = r.outbox.Append(ctx, env.EventName, body)
	return err
}

// Release implements Repository.
func (r *GormRepository) Release(ctx context.Context, item Item, res Reservation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Reservation{}).
			Where("id = ? AND released = ?", res.ID, false).
			Updates(map[string]any{
				"released":   true,
				"updated_at": res.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Already released by an earlier delivery.
			return nil
		}
		return tx.Model(&Item{}).
			Where("id = ?", item.ID).
			Updates(map[string]any{
				"available":  gorm.Expr("available + ?", res.Quantity),
				"updated_at": item.UpdatedAt,
			}).Error
	})
}
