package repository

import (
	"context"
	"errors"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"gorm.io/gorm"
)

// AttemptRepository stores fetch attempts. Attempts are append-only.
type AttemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Create appends an attempt.
func (r *AttemptRepository) Create(ctx context.Context, attempt *domain.FetchAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// ResultKeyCounts groups the successful attempts of a unit by result key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - unitID: sync unit ID.
// Returns:
//   - map[string]int: number of attempts per result key.
//   - error: non-nil if the query fails.
func (r *AttemptRepository) ResultKeyCounts(ctx context.Context, unitID int64) (map[string]int, error) {
	var rows []struct {
		ResultKey string
		Count     int
	}
	err := r.db.WithContext(ctx).Model(&domain.FetchAttempt{}).
		Select("result_key, COUNT(*) AS count").
		Where("sync_unit_id = ? AND result_key IS NOT NULL", unitID).
		Group("result_key").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ResultKey] = row.Count
	}
	return counts, nil
}

// LatestWithKey returns the newest successful attempt of a unit whose result
// key equals key, or nil when there is none.
func (r *AttemptRepository) LatestWithKey(ctx context.Context, unitID int64, key string) (*domain.FetchAttempt, error) {
	var attempt domain.FetchAttempt
	err := r.db.WithContext(ctx).
		Where("sync_unit_id = ? AND result_key = ?", unitID, key).
		Order("id DESC").
		Take(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// ListByUnit returns the attempts of a unit, newest first, without payloads.
func (r *AttemptRepository) ListByUnit(ctx context.Context, unitID int64, limit int) ([]domain.FetchAttempt, error) {
	var attempts []domain.FetchAttempt
	q := r.db.WithContext(ctx).
		Omit("payload").
		Where("sync_unit_id = ?", unitID).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&attempts).Error
	return attempts, err
}
