package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStore persists outbox records through gorm in whatever database the
// owning service already uses.
type GormStore struct {
	db         *gorm.DB
	maxRetries int
}

// GormOption configures the GormStore.
type GormOption func(*GormStore)

// WithMaxRetries sets the publish retry cap used by FetchPending.
func WithMaxRetries(max int) GormOption {
	return func(s *GormStore) {
		s.maxRetries = max
	}
}

// NewGormStore creates a gorm-backed store. Default retry cap is 5.
func NewGormStore(db *gorm.DB, options ...GormOption) *GormStore {
	s := &GormStore{
		db:         db,
		maxRetries: 5,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// WithTx returns a view of the store bound to the caller's transaction.
// Appending through that view is what gives the outbox its atomicity
// guarantee: the record and the business mutation commit or roll back
// together.
func (s *GormStore) WithTx(tx *gorm.DB) *GormStore {
	return &GormStore{db: tx, maxRetries: s.maxRetries}
}

// AutoMigrate creates the outbox table.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Record{})
}

// Append implements Store.
func (s *GormStore) Append(ctx context.Context, eventType string, payload []byte) (Record, error) {
	if len(payload) == 0 {
		return Record{}, ErrEmptyPayload
	}

	record := Record{
		ID:        uuid.New().String(),
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return Record{}, err
	}
	return record, nil
}

// FetchPending implements Store: unpublished records under the retry cap,
// oldest first, preserving per-service emission order.
func (s *GormStore) FetchPending(ctx context.Context, batchSize int) ([]Record, error) {
	if batchSize <= 0 {
		batchSize = 50
	}

	var records []Record
	err := s.db.WithContext(ctx).
		Where("published = ? AND retry_count < ?", false, s.maxRetries).
		Order("created_at ASC").
		Limit(batchSize).
		Find(&records).
		Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// MarkPublished implements Store. Marking an already published record again
// is a no-op.
func (s *GormStore) MarkPublished(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published":    true,
			"published_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkFailed implements Store.
func (s *GormStore) MarkFailed(ctx context.Context, id string, cause error) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ? AND published = ?", id, false).
		Updates(map[string]any{
			"retry_count":     gorm.Expr("retry_count + 1"),
			"last_error":      truncateError(cause),
			"last_attempt_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either the record is gone or it was published concurrently; a
		// published record no longer accumulates failures.
		var count int64
		if err := s.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrRecordNotFound
		}
	}
	return nil
}

// CountExhausted implements Store.
func (s *GormStore) CountExhausted(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("published = ? AND retry_count >= ?", false, s.maxRetries).
		Count(&count).
		Error
	return count, err
}
