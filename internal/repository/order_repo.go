package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	upsertBatchSize = 200
	lookupChunkSize = 500
)

// newerWinsGuard keeps a stored row unless it has no version or the incoming
// row is strictly newer.
const newerWinsGuard = "orders.last_update_at IS NULL OR excluded.last_update_at > orders.last_update_at"

// MergeStats describes the outcome of one guarded upsert.
type MergeStats struct {
	Incoming int `json:"incoming"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	// Affected is the row count reported by the database.
	Affected int64 `json:"affected"`
	// Stamped counts existing rows that took the unit as owner.
	Stamped int64 `json:"stamped"`
}

// Applied is Inserted + Updated.
func (s MergeStats) Applied() int {
	return s.Inserted + s.Updated
}

// OrderRepository handles order persistence.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// UpsertIfNewer writes orders with newer-wins semantics keyed by order_id.
// Rows that are absent are inserted; rows whose stored last_update_at is null
// or older are updated on every mutable column; the rest are skipped. When
// unitID is set, inserted rows and existing unowned rows are assigned to it.
// Call it on a transaction-bound repository so the classification and the
// write see the same state. orders must not repeat an order_id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - orders: deduplicated orders to write.
//   - unitID: owning sync unit, nil for unowned writes.
// Returns:
//   - MergeStats: classification and database counts.
//   - error: non-nil if any statement fails.
func (r *OrderRepository) UpsertIfNewer(ctx context.Context, orders []domain.Order, unitID *int64) (MergeStats, error) {
	stats := MergeStats{Incoming: len(orders)}
	if len(orders) == 0 {
		return stats, nil
	}
	db := r.db.WithContext(ctx)

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].OrderID
	}

	stored, err := r.lastUpdates(db, ids)
	if err != nil {
		return stats, err
	}
	for i := range orders {
		current, exists := stored[orders[i].OrderID]
		switch {
		case !exists:
			stats.Inserted++
		case current == nil:
			stats.Updated++
		case orders[i].LastUpdateAt != nil && orders[i].LastUpdateAt.After(*current):
			stats.Updated++
		default:
			stats.Skipped++
		}
	}

	columns, err := r.mutableColumns()
	if err != nil {
		return stats, err
	}

	rows := make([]domain.Order, len(orders))
	copy(rows, orders)
	for i := range rows {
		rows[i].SyncUnitID = unitID
	}

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: newerWinsGuard},
		}},
	}).CreateInBatches(&rows, upsertBatchSize)
	if res.Error != nil {
		return stats, fmt.Errorf("failed to upsert orders: %w", res.Error)
	}
	stats.Affected = res.RowsAffected

	if unitID != nil {
		for start := 0; start < len(ids); start += lookupChunkSize {
			end := min(start+lookupChunkSize, len(ids))
			res := db.Model(&domain.Order{}).
				Where("order_id IN ? AND sync_unit_id IS NULL", ids[start:end]).
				Update("sync_unit_id", *unitID)
			if res.Error != nil {
				return stats, fmt.Errorf("failed to assign orders to unit %d: %w", *unitID, res.Error)
			}
			stats.Stamped += res.RowsAffected
		}
	}

	return stats, nil
}

func (r *OrderRepository) lastUpdates(db *gorm.DB, ids []string) (map[string]*time.Time, error) {
	out := make(map[string]*time.Time, len(ids))
	for start := 0; start < len(ids); start += lookupChunkSize {
		end := min(start+lookupChunkSize, len(ids))
		var rows []struct {
			OrderID      string
			LastUpdateAt *time.Time
		}
		err := db.Model(&domain.Order{}).
			Select("order_id, last_update_at").
			Where("order_id IN ?", ids[start:end]).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to read stored orders: %w", err)
		}
		for _, row := range rows {
			out[row.OrderID] = row.LastUpdateAt
		}
	}
	return out, nil
}

// mutableColumns lists the order columns a newer-wins update may overwrite.
func (r *OrderRepository) mutableColumns() ([]string, error) {
	stmt := &gorm.Statement{DB: r.db}
	if err := stmt.Parse(&domain.Order{}); err != nil {
		return nil, fmt.Errorf("failed to parse order schema: %w", err)
	}

	immutable := make(map[string]struct{}, len(domain.OrderImmutableColumns))
	for _, c := range domain.OrderImmutableColumns {
		immutable[c] = struct{}{}
	}
	var cols []string
	for _, name := range stmt.Schema.DBNames {
		if _, skip := immutable[name]; !skip {
			cols = append(cols, name)
		}
	}
	return cols, nil
}

// GetByID retrieves an order by its upstream ID.
func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	if err := r.db.WithContext(ctx).First(&order, "order_id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// CountByUnit counts the orders owned by a unit.
func (r *OrderRepository) CountByUnit(ctx context.Context, unitID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("sync_unit_id = ?", unitID).
		Count(&n).Error
	return n, err
}

// IDsWithoutItems returns up to limit order IDs owned by unitID that have no
// item rows yet and sort after the given cursor.
func (r *OrderRepository) IDsWithoutItems(ctx context.Context, unitID int64, after string, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("orders.sync_unit_id = ? AND orders.order_id > ?", unitID, after).
		Where("NOT EXISTS (SELECT 1 FROM order_items WHERE order_items.order_id = orders.order_id)").
		Order("orders.order_id ASC").
		Limit(limit).
		Pluck("orders.order_id", &ids).Error
	return ids, err
}

// CountWithItems counts the orders owned by unitID that have at least one
// item row.
func (r *OrderRepository) CountWithItems(ctx context.Context, unitID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("orders.sync_unit_id = ?", unitID).
		Where("EXISTS (SELECT 1 FROM order_items WHERE order_items.order_id = orders.order_id)").
		Count(&n).Error
	return n, err
}
