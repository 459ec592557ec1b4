package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/config"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/logger"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/projection"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/repository"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func setupTestStore(t *testing.T) *repository.Store {
	t.Helper()

	cfg := logger.DefaultConfig()
	cfg.Output = io.Discard
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		AutoMigrate:  true,
		LogLevel:     "silent",
	}, logger.New(cfg))
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return repository.NewStore(db)
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

type fakeSource struct {
	mu sync.Mutex

	byDate   func(day time.Time) (projection.RecordSet, error)
	byWindow func(since, to time.Time) (projection.RecordSet, error)
	details  func(ids []string) (projection.RecordSet, error)

	dateCalls   []time.Time
	detailCalls [][]string
}

func (f *fakeSource) FetchByDate(ctx context.Context, day time.Time) (projection.RecordSet, error) {
	f.mu.Lock()
	f.dateCalls = append(f.dateCalls, day)
	f.mu.Unlock()
	return f.byDate(day)
}

func (f *fakeSource) FetchByWindow(ctx context.Context, since, to time.Time) (projection.RecordSet, error) {
	return f.byWindow(since, to)
}

func (f *fakeSource) FetchDetails(ctx context.Context, ids []string) (projection.RecordSet, error) {
	f.mu.Lock()
	f.detailCalls = append(f.detailCalls, append([]string(nil), ids...))
	f.mu.Unlock()
	return f.details(ids)
}

// orderRecords builds n upstream orders O-000.. updated at the given time.
func orderRecords(n int, updated time.Time) projection.RecordSet {
	rs := make(projection.RecordSet, 0, n)
	for i := 0; i < n; i++ {
		rs = append(rs, projection.Record{
			"orderId":      fmt.Sprintf("O-%03d", i),
			"orderStatus":  "PAID",
			"lastUpdateAt": updated.UTC().Format(time.RFC3339),
		})
	}
	return rs
}

// detailRecords answers a batch-get with one item per order.
func detailRecords(ids []string) (projection.RecordSet, error) {
	rs := make(projection.RecordSet, 0, len(ids))
	for _, id := range ids {
		rs = append(rs, projection.Record{
			"orderId":  id,
			"shipInfo": map[string]interface{}{"carrier": "JNE"},
			"items": []interface{}{
				map[string]interface{}{"itemId": id + "-1", "sku": "SKU", "quantity": 1},
			},
		})
	}
	return rs, nil
}

func createProcessingUnit(t *testing.T, store *repository.Store, bucket string) *domain.SyncUnit {
	t.Helper()
	ctx := context.Background()
	unit := &domain.SyncUnit{
		Namespace: "default",
		BucketKey: bucket,
		Parameters: datatypes.NewJSONType(domain.UnitParameters{
			CreateSince: bucket + "T00:00:00.000Z",
			CreateTo:    bucket + "T23:59:59.999Z",
		}),
	}
	_, err := store.Units.EnsureUnit(ctx, unit)
	require.NoError(t, err)
	claimed, err := store.Units.ClaimOldestPending(ctx, "default")
	require.NoError(t, err)
	require.Equal(t, unit.ID, claimed.ID)
	return claimed
}

func reload(t *testing.T, store *repository.Store, id int64) *domain.SyncUnit {
	t.Helper()
	unit, err := store.Units.GetByID(context.Background(), id)
	require.NoError(t, err)
	return unit
}
