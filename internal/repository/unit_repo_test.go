package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newUnit(ns, bucket string) *domain.SyncUnit {
	return &domain.SyncUnit{
		Namespace: ns,
		BucketKey: bucket,
		Parameters: datatypes.NewJSONType(domain.UnitParameters{
			CreateSince: bucket + "T00:00:00Z",
			CreateTo:    bucket + "T23:59:59.999Z",
		}),
	}
}

func TestEnsureUnitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewUnitRepository(setupTestDB(t))

	created, err := repo.EnsureUnit(ctx, newUnit("default", "2024-01-01"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.EnsureUnit(ctx, newUnit("default", "2024-01-01"))
	require.NoError(t, err)
	assert.False(t, created)

	created, err = repo.EnsureUnit(ctx, newUnit("other", "2024-01-01"))
	require.NoError(t, err)
	assert.True(t, created)

	units, total, err := repo.List(ctx, UnitFilter{Namespace: "default"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, units, 1)
	assert.Equal(t, domain.UnitStatePending, units[0].State)
	assert.Equal(t, "2024-01-01T00:00:00Z", units[0].Parameters.Data().CreateSince)
}

func TestLatestBucketKey(t *testing.T) {
	ctx := context.Background()
	repo := NewUnitRepository(setupTestDB(t))

	_, ok, err := repo.LatestBucketKey(ctx, "default")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, day := range []string{"2024-01-03", "2024-01-01", "2024-01-02"} {
		_, err := repo.EnsureUnit(ctx, newUnit("default", day))
		require.NoError(t, err)
	}
	key, ok, err := repo.LatestBucketKey(ctx, "default")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-03", key)
}

func TestClaimOldestPendingOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewUnitRepository(setupTestDB(t))

	for _, day := range []string{"2024-01-02", "2024-01-01"} {
		_, err := repo.EnsureUnit(ctx, newUnit("default", day))
		require.NoError(t, err)
	}

	first, err := repo.ClaimOldestPending(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", first.BucketKey)
	assert.Equal(t, domain.UnitStateProcessing, first.State)

	second, err := repo.ClaimOldestPending(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", second.BucketKey)

	_, err = repo.ClaimOldestPending(ctx, "default")
	assert.ErrorIs(t, err, ErrNoUnitAvailable)

	stored, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UnitStateProcessing, stored.State)
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	assertSingleClaimWinner(ctx, t, db)
}

func assertSingleClaimWinner(ctx context.Context, t *testing.T, db *gorm.DB) {
	t.Helper()
	repo := NewUnitRepository(db)
	_, err := repo.EnsureUnit(ctx, newUnit("default", "2024-01-01"))
	require.NoError(t, err)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []int64
		misses  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unit, err := repo.ClaimOldestPending(ctx, "default")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, unit.ID)
			case errors.Is(err, ErrNoUnitAvailable), errors.Is(err, ErrStateConflict):
				misses++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, winners, 1)
	assert.Equal(t, workers-1, misses)
}

func TestClaimRetryReportsLostRaces(t *testing.T) {
	lost := func() (*domain.SyncUnit, error) {
		return nil, fmt.Errorf("unit 7 PENDING -> PROCESSING: %w", ErrStateConflict)
	}

	calls := 0
	_, err := retryClaim(3, func() (*domain.SyncUnit, error) {
		calls++
		return lost()
	})
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.NotErrorIs(t, err, ErrNoUnitAvailable)

	calls = 0
	unit, err := retryClaim(3, func() (*domain.SyncUnit, error) {
		calls++
		if calls < 3 {
			return lost()
		}
		return &domain.SyncUnit{ID: 9}, nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 9, unit.ID)

	calls = 0
	_, err = retryClaim(3, func() (*domain.SyncUnit, error) {
		calls++
		if calls == 1 {
			return lost()
		}
		return nil, ErrNoUnitAvailable
	})
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, ErrNoUnitAvailable)
}

func TestTransitionIsGuardedAndClearsError(t *testing.T) {
	ctx := context.Background()
	repo := NewUnitRepository(setupTestDB(t))

	unit := newUnit("default", "2024-01-01")
	_, err := repo.EnsureUnit(ctx, unit)
	require.NoError(t, err)

	require.NoError(t, repo.SetError(ctx, unit.ID, datatypes.JSON(`{"kind":"UpstreamError","message":"boom"}`)))
	stored, err := repo.GetByID(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UnitStatePending, stored.State)
	assert.JSONEq(t, `{"kind":"UpstreamError","message":"boom"}`, string(stored.Error))

	err = repo.Transition(ctx, unit.ID, domain.UnitStateProcessing, domain.UnitStateConsensusReached, nil)
	assert.ErrorIs(t, err, ErrStateConflict)

	require.NoError(t, repo.Transition(ctx, unit.ID, domain.UnitStatePending, domain.UnitStateProcessing, nil))
	key := "50"
	require.NoError(t, repo.Transition(ctx, unit.ID, domain.UnitStateProcessing, domain.UnitStateConsensusReached,
		map[string]interface{}{"consensus_key": key}))

	stored, err = repo.GetByID(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UnitStateConsensusReached, stored.State)
	assert.Empty(t, stored.Error)
	require.NotNil(t, stored.ConsensusKey)
	assert.Equal(t, "50", *stored.ConsensusKey)

	counts, err := repo.CountByState(ctx, "default")
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[domain.UnitStateConsensusReached])
}
