package service

import (
	"context"
	"testing"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestClaimerTakesOldestPendingOnePerRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, day := range []string{"2024-01-02", "2024-01-01"} {
		_, err := store.Units.EnsureUnit(ctx, &domain.SyncUnit{
			Namespace:  "default",
			BucketKey:  day,
			Parameters: datatypes.NewJSONType(domain.UnitParameters{}),
		})
		require.NoError(t, err)
	}

	c := NewClaimer(store.Units, "default")

	first, err := c.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "2024-01-01", first.BucketKey)
	assert.Equal(t, domain.UnitStateProcessing, first.State)

	require.NoError(t, c.Run(ctx))
	processing, err := store.Units.ListByState(ctx, "default", domain.UnitStateProcessing)
	require.NoError(t, err)
	require.Len(t, processing, 2)
	assert.Equal(t, "2024-01-02", processing[1].BucketKey)

	none, err := c.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.NoError(t, c.Run(ctx))
}

func TestClaimerIgnoresOtherNamespaces(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Units.EnsureUnit(ctx, &domain.SyncUnit{
		Namespace:  "other",
		BucketKey:  "2024-01-01",
		Parameters: datatypes.NewJSONType(domain.UnitParameters{}),
	})
	require.NoError(t, err)

	unit, err := NewClaimer(store.Units, "default").Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, unit)
}
