package service

import (
	"context"
	"errors"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/logger"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/repository"
)

// Claimer moves the oldest pending unit into processing, one per run.
type Claimer struct {
	units     *repository.UnitRepository
	namespace string
}

// NewClaimer creates a Claimer.
func NewClaimer(units *repository.UnitRepository, namespace string) *Claimer {
	return &Claimer{units: units, namespace: namespace}
}

// Claim returns the claimed unit, or nil when nothing is pending.
func (c *Claimer) Claim(ctx context.Context) (*domain.SyncUnit, error) {
	unit, err := c.units.ClaimOldestPending(ctx, c.namespace)
	if errors.Is(err, repository.ErrNoUnitAvailable) {
		logger.CtxDebug(ctx, "No pending unit to claim")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	logger.FromContext(logger.SetUnit(ctx, unit.ID, unit.BucketKey)).Info("Unit claimed")
	return unit, nil
}

// Run is the stage entry point.
func (c *Claimer) Run(ctx context.Context) error {
	_, err := c.Claim(ctx)
	return err
}
