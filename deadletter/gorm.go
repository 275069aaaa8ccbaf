package deadletter

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStore persists dead-letter records through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a gorm-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates the dead-letter table.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Record{})
}

// Save implements Store.
func (s *GormStore) Save(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

// List implements Store.
func (s *GormStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	tx := s.db.WithContext(ctx).Model(&Record{})
	if filter.SourceQueue != "" {
		tx = tx.Where("source_queue = ?", filter.SourceQueue)
	}
	if filter.OnlyUnresolved {
		tx = tx.Where("resolved = ?", false)
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}

	var records []Record
	if err := tx.Order("failed_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Resolve implements Store.
func (s *GormStore) Resolve(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ?", id).
		Update("resolved", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
