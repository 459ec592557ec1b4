package repository

import (
	"context"
	"fmt"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DetailRepository stores order items and detail documents. Both tables are
// append-only: a row that already exists is left untouched.
type DetailRepository struct {
	db *gorm.DB
}

// NewDetailRepository creates a new DetailRepository.
func NewDetailRepository(db *gorm.DB) *DetailRepository {
	return &DetailRepository{db: db}
}

// InsertItems inserts item rows, skipping (order_id, item_id) pairs that exist.
// Returns:
//   - int64: number of rows inserted.
//   - error: non-nil if the insert fails.
func (r *DetailRepository) InsertItems(ctx context.Context, items []domain.OrderItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&items, upsertBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to insert order items: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// InsertDetails inserts detail rows, skipping orders that already have one.
func (r *DetailRepository) InsertDetails(ctx context.Context, details []domain.OrderDetail) (int64, error) {
	if len(details) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&details, upsertBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to insert order details: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ItemsByOrder returns the items of one order.
func (r *DetailRepository) ItemsByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	var items []domain.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("item_id ASC").
		Find(&items).Error
	return items, err
}
