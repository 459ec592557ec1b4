package repository

import (
	"context"
	"testing"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestPostgresClaimAndGuardedUpsert(t *testing.T) {
	db := setupPostgresDB(t)
	ctx := context.Background()

	assertSingleClaimWinner(ctx, t, db)

	upsert(t, db, []domain.Order{order("A", at(2), "new")}, nil)
	stats := upsert(t, db, []domain.Order{order("A", at(1), "old"), order("B", nil, "PAID")}, nil)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.Skipped)
	assert.EqualValues(t, 1, stats.Affected)

	stored, err := NewOrderRepository(db).GetByID(ctx, "A")
	if assert.NoError(t, err) {
		assert.Equal(t, "new", *stored.OrderStatus)
	}
}
