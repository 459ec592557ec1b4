package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNoUnitAvailable is returned by ClaimOldestPending when there is
	// nothing to claim.
	ErrNoUnitAvailable = errors.New("no pending sync unit available")
	// ErrStateConflict is returned when a guarded transition finds the unit
	// in a different state than expected.
	ErrStateConflict = errors.New("sync unit is not in the expected state")
)

// claimAttempts bounds how often a claim retries after losing a race.
const claimAttempts = 3

// UnitRepository handles sync unit persistence and state transitions.
type UnitRepository struct {
	db *gorm.DB
}

// NewUnitRepository creates a new UnitRepository.
func NewUnitRepository(db *gorm.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

// EnsureUnit inserts unit unless (namespace, bucket_key) already exists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - unit: unit to insert; its ID is set when created.
// Returns:
//   - bool: true if a new row was inserted.
//   - error: non-nil if the insert fails.
func (r *UnitRepository) EnsureUnit(ctx context.Context, unit *domain.SyncUnit) (bool, error) {
	if unit.State == "" {
		unit.State = domain.UnitStatePending
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "bucket_key"}},
		DoNothing: true,
	}).Create(unit)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// LatestBucketKey returns the greatest bucket key in namespace.
// Returns:
//   - string: the bucket key, empty when the namespace has no units.
//   - bool: true if a unit exists.
//   - error: non-nil if the lookup fails.
func (r *UnitRepository) LatestBucketKey(ctx context.Context, namespace string) (string, bool, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&domain.SyncUnit{}).
		Where("namespace = ?", namespace).
		Order("bucket_key DESC").
		Limit(1).
		Pluck("bucket_key", &keys).Error
	if err != nil {
		return "", false, err
	}
	if len(keys) == 0 {
		return "", false, nil
	}
	return keys[0], true, nil
}

// ClaimOldestPending moves the oldest PENDING unit of namespace to
// PROCESSING and returns it. Concurrent callers never receive the same unit.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - namespace: unit namespace.
// Returns:
//   - *domain.SyncUnit: the claimed unit, already in PROCESSING.
//   - error: ErrNoUnitAvailable when nothing is pending, ErrStateConflict
//     when every attempt lost its race to another claimer.
func (r *UnitRepository) ClaimOldestPending(ctx context.Context, namespace string) (*domain.SyncUnit, error) {
	return retryClaim(claimAttempts, func() (*domain.SyncUnit, error) {
		return r.claimOnce(ctx, namespace)
	})
}

// retryClaim runs once up to attempts times while it reports a lost race.
// Pending units may still exist after the last conflict, so that conflict is
// returned rather than ErrNoUnitAvailable.
func retryClaim(attempts int, once func() (*domain.SyncUnit, error)) (*domain.SyncUnit, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		unit, err := once()
		if errors.Is(err, ErrStateConflict) {
			lastErr = err
			continue
		}
		return unit, err
	}
	return nil, fmt.Errorf("claim gave up after %d attempts: %w", attempts, lastErr)
}

func (r *UnitRepository) claimOnce(ctx context.Context, namespace string) (*domain.SyncUnit, error) {
	var claimed *domain.SyncUnit
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("namespace = ? AND state = ?", namespace, domain.UnitStatePending).
			Order("bucket_key ASC").
			Order("id ASC")
		if isPostgres(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var unit domain.SyncUnit
		if err := q.Take(&unit).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoUnitAvailable
			}
			return err
		}

		if err := transition(tx, unit.ID, domain.UnitStatePending, domain.UnitStateProcessing, nil); err != nil {
			return err
		}
		unit.State = domain.UnitStateProcessing
		unit.Error = nil
		claimed = &unit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Transition moves a unit from one state to another and clears its error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: unit ID.
//   - from: state the unit must currently be in.
//   - to: new state.
//   - extra: additional columns to set, may be nil.
// Returns:
//   - error: ErrStateConflict if the unit was not in from.
func (r *UnitRepository) Transition(ctx context.Context, id int64, from, to domain.UnitState, extra map[string]interface{}) error {
	return transition(r.db.WithContext(ctx), id, from, to, extra)
}

func transition(db *gorm.DB, id int64, from, to domain.UnitState, extra map[string]interface{}) error {
	updates := map[string]interface{}{
		"state": to,
		"error": nil,
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := db.Model(&domain.SyncUnit{}).
		Where("id = ? AND state = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to move unit %d from %s to %s: %w", id, from, to, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("unit %d %s -> %s: %w", id, from, to, ErrStateConflict)
	}
	return nil
}

// SetError records a structured error on a unit without changing its state.
func (r *UnitRepository) SetError(ctx context.Context, id int64, payload datatypes.JSON) error {
	return r.db.WithContext(ctx).Model(&domain.SyncUnit{}).
		Where("id = ?", id).
		Update("error", payload).Error
}

// GetByID retrieves a unit by its ID.
func (r *UnitRepository) GetByID(ctx context.Context, id int64) (*domain.SyncUnit, error) {
	var unit domain.SyncUnit
	if err := r.db.WithContext(ctx).First(&unit, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

// ListByState returns the units of namespace in state, oldest bucket first.
func (r *UnitRepository) ListByState(ctx context.Context, namespace string, state domain.UnitState) ([]domain.SyncUnit, error) {
	var units []domain.SyncUnit
	err := r.db.WithContext(ctx).
		Where("namespace = ? AND state = ?", namespace, state).
		Order("bucket_key ASC").
		Order("id ASC").
		Find(&units).Error
	return units, err
}

// UnitFilter narrows List.
type UnitFilter struct {
	Namespace string
	State     domain.UnitState
	Limit     int
	Offset    int
}

// List retrieves units with pagination, newest bucket first.
// Returns:
//   - []domain.SyncUnit: the requested page.
//   - int64: total number of matching units.
//   - error: non-nil if the query fails.
func (r *UnitRepository) List(ctx context.Context, f UnitFilter) ([]domain.SyncUnit, int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.SyncUnit{})
	if f.Namespace != "" {
		q = q.Where("namespace = ?", f.Namespace)
	}
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var units []domain.SyncUnit
	q = q.Order("bucket_key DESC").Order("id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if err := q.Find(&units).Error; err != nil {
		return nil, 0, err
	}
	return units, total, nil
}

// CountByState counts the units of namespace per state.
func (r *UnitRepository) CountByState(ctx context.Context, namespace string) (map[domain.UnitState]int64, error) {
	var rows []struct {
		State domain.UnitState
		Count int64
	}
	err := r.db.WithContext(ctx).Model(&domain.SyncUnit{}).
		Select("state, COUNT(*) AS count").
		Where("namespace = ?", namespace).
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.UnitState]int64, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Count
	}
	return counts, nil
}
