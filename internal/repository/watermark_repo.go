package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WatermarkRepository stores incremental sync windows.
type WatermarkRepository struct {
	db *gorm.DB
}

// NewWatermarkRepository creates a new WatermarkRepository.
func NewWatermarkRepository(db *gorm.DB) *WatermarkRepository {
	return &WatermarkRepository{db: db}
}

// LatestComplete returns the COMPLETE watermark with the greatest window end
// in namespace, or nil when none exists.
func (r *WatermarkRepository) LatestComplete(ctx context.Context, namespace string) (*domain.SyncWatermark, error) {
	var wm domain.SyncWatermark
	err := r.db.WithContext(ctx).
		Where("namespace = ? AND state = ?", namespace, domain.WatermarkStateComplete).
		Order("window_to DESC").
		Order("id DESC").
		Take(&wm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wm, nil
}

// Create inserts a new watermark, PENDING unless State is set.
func (r *WatermarkRepository) Create(ctx context.Context, wm *domain.SyncWatermark) error {
	if wm.State == "" {
		wm.State = domain.WatermarkStatePending
	}
	return r.db.WithContext(ctx).Create(wm).Error
}

// SetConsensusKey records the number of records fetched for the window.
func (r *WatermarkRepository) SetConsensusKey(ctx context.Context, id int64, key string) error {
	return r.db.WithContext(ctx).Model(&domain.SyncWatermark{}).
		Where("id = ?", id).
		Update("consensus_key", key).Error
}

// Complete marks a PENDING watermark COMPLETE with its merge result.
func (r *WatermarkRepository) Complete(ctx context.Context, id int64, result datatypes.JSON) error {
	res := r.db.WithContext(ctx).Model(&domain.SyncWatermark{}).
		Where("id = ? AND state = ?", id, domain.WatermarkStatePending).
		Updates(map[string]interface{}{
			"state":  domain.WatermarkStateComplete,
			"result": result,
			"error":  nil,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to complete watermark %d: %w", id, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("watermark %d is no longer pending", id)
	}
	return nil
}

// MarkError marks a watermark ERROR with a structured error.
func (r *WatermarkRepository) MarkError(ctx context.Context, id int64, payload datatypes.JSON) error {
	return r.db.WithContext(ctx).Model(&domain.SyncWatermark{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"state": domain.WatermarkStateError,
			"error": payload,
		}).Error
}

// RecordExecution stores when the run ended and how long it took.
func (r *WatermarkRepository) RecordExecution(ctx context.Context, id int64, end time.Time, took time.Duration) error {
	return r.db.WithContext(ctx).Model(&domain.SyncWatermark{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"execution_end":     end,
			"execution_time_ms": took.Milliseconds(),
		}).Error
}

// List returns the most recent watermarks of namespace.
func (r *WatermarkRepository) List(ctx context.Context, namespace string, limit int) ([]domain.SyncWatermark, error) {
	var out []domain.SyncWatermark
	q := r.db.WithContext(ctx).Order("id DESC")
	if namespace != "" {
		q = q.Where("namespace = ?", namespace)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
