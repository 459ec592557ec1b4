package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func strp(s string) *string { return &s }

func at(hour int) *time.Time {
	t := time.Date(2024, 1, 1, hour, 0, 0, 0, time.UTC)
	return &t
}

func order(id string, updated *time.Time, status string) domain.Order {
	return domain.Order{
		OrderID:      id,
		OrderStatus:  strp(status),
		Channel:      strp("SHOPEE"),
		LastUpdateAt: updated,
	}
}

func upsert(t *testing.T, db *gorm.DB, orders []domain.Order, unitID *int64) MergeStats {
	t.Helper()
	var stats MergeStats
	err := NewStore(db).InTx(context.Background(), func(tx *Store) error {
		var err error
		stats, err = tx.Orders.UpsertIfNewer(context.Background(), orders, unitID)
		return err
	})
	require.NoError(t, err)
	return stats
}

func TestUpsertIfNewerReapplyIsNoop(t *testing.T) {
	db := setupTestDB(t)

	batch := []domain.Order{
		order("A", at(1), "PAID"),
		order("B", at(1), "PAID"),
		order("C", nil, "PAID"),
	}
	first := upsert(t, db, batch, nil)
	assert.Equal(t, 3, first.Inserted)
	assert.Equal(t, 0, first.Updated)
	assert.EqualValues(t, 3, first.Affected)

	// C has a null stored version, so it is still overwritten
	again := upsert(t, db, batch[:2], nil)
	assert.Equal(t, 0, again.Inserted)
	assert.Equal(t, 0, again.Updated)
	assert.Equal(t, 2, again.Skipped)
	assert.EqualValues(t, 0, again.Affected)
}

func TestUpsertIfNewerNewerWinsInAnyOrder(t *testing.T) {
	for _, tc := range []struct {
		name  string
		first domain.Order
		then  domain.Order
	}{
		{name: "older then newer", first: order("A", at(1), "old"), then: order("A", at(2), "new")},
		{name: "newer then older", first: order("A", at(2), "new"), then: order("A", at(1), "old")},
		{name: "equal never overwrites", first: order("A", at(2), "new"), then: order("A", at(2), "old")},
		{name: "null incoming never overwrites", first: order("A", at(2), "new"), then: order("A", nil, "old")},
		{name: "null stored is overwritten", first: order("A", nil, "old"), then: order("A", at(2), "new")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db := setupTestDB(t)
			upsert(t, db, []domain.Order{tc.first}, nil)
			upsert(t, db, []domain.Order{tc.then}, nil)

			stored, err := NewOrderRepository(db).GetByID(context.Background(), "A")
			require.NoError(t, err)
			assert.Equal(t, "new", *stored.OrderStatus)
		})
	}
}

func TestUpsertIfNewerKeepsImmutableColumns(t *testing.T) {
	db := setupTestDB(t)

	first := order("A", at(1), "PAID")
	first.Currency = strp("IDR")
	first.CustomerName = strp("Budi")
	upsert(t, db, []domain.Order{first}, nil)

	next := order("A", at(2), "SHIPPED")
	next.Currency = strp("USD")
	next.CustomerName = nil
	stats := upsert(t, db, []domain.Order{next}, nil)
	assert.Equal(t, 1, stats.Updated)

	stored, err := NewOrderRepository(db).GetByID(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "SHIPPED", *stored.OrderStatus)
	assert.Equal(t, "IDR", *stored.Currency)
	assert.Equal(t, "Budi", *stored.CustomerName)
}

func TestUpsertIfNewerStampsOwnership(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	units := NewUnitRepository(db)

	u1 := newUnit("default", "2024-01-01")
	u2 := newUnit("default", "2024-01-02")
	for _, u := range []*domain.SyncUnit{u1, u2} {
		_, err := units.EnsureUnit(ctx, u)
		require.NoError(t, err)
	}

	// unowned write, e.g. an incremental window
	upsert(t, db, []domain.Order{order("A", at(1), "PAID")}, nil)

	stats := upsert(t, db, []domain.Order{order("A", at(1), "PAID"), order("B", at(1), "PAID")}, &u1.ID)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.Skipped)
	assert.EqualValues(t, 1, stats.Stamped)

	stats = upsert(t, db, []domain.Order{order("B", at(3), "DONE")}, &u2.ID)
	assert.Equal(t, 1, stats.Updated)
	assert.EqualValues(t, 0, stats.Stamped)

	orders := NewOrderRepository(db)
	n, err := orders.CountByUnit(ctx, u1.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestIDsWithoutItemsAndCountWithItems(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	units := NewUnitRepository(db)
	unit := newUnit("default", "2024-01-01")
	_, err := units.EnsureUnit(ctx, unit)
	require.NoError(t, err)

	var batch []domain.Order
	for i := 0; i < 5; i++ {
		batch = append(batch, order(fmt.Sprintf("O-%d", i), at(1), "PAID"))
	}
	upsert(t, db, batch, &unit.ID)

	details := NewDetailRepository(db)
	inserted, err := details.InsertItems(ctx, []domain.OrderItem{
		{OrderID: "O-1", ItemID: "I-1", SyncUnitID: &unit.ID},
		{OrderID: "O-3", ItemID: "I-1", SyncUnitID: &unit.ID},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, inserted)

	// duplicates are skipped
	inserted, err = details.InsertItems(ctx, []domain.OrderItem{{OrderID: "O-1", ItemID: "I-1"}})
	require.NoError(t, err)
	assert.EqualValues(t, 0, inserted)

	orders := NewOrderRepository(db)
	ids, err := orders.IDsWithoutItems(ctx, unit.ID, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"O-0", "O-2"}, ids)

	ids, err = orders.IDsWithoutItems(ctx, unit.ID, "O-2", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"O-4"}, ids)

	n, err := orders.CountWithItems(ctx, unit.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n2, err := details.InsertDetails(ctx, []domain.OrderDetail{{OrderID: "O-1"}, {OrderID: "O-1"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n2)
}
