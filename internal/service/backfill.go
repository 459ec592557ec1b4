package service

import (
	"context"
	"fmt"
	"time"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/logger"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/repository"
	"gorm.io/datatypes"
)

// BackfillConfig holds configuration for the backfill scheduler
type BackfillConfig struct {
	Namespace      string
	Start          time.Time // first calendar day to backfill, in Location
	MaxUnitsPerRun int
	Location       *time.Location
}

// BackfillResult summarizes one scheduling run.
type BackfillResult struct {
	Created int
	// Next is the first day not yet scheduled when the run stopped at the cap.
	Next   string
	Capped bool
}

// BackfillScheduler creates one sync unit per past calendar day, oldest
// first, without gaps or duplicates.
type BackfillScheduler struct {
	units *repository.UnitRepository
	cfg   BackfillConfig
	now   func() time.Time
}

// NewBackfillScheduler creates a BackfillScheduler.
func NewBackfillScheduler(units *repository.UnitRepository, cfg BackfillConfig) *BackfillScheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxUnitsPerRun <= 0 {
		cfg.MaxUnitsPerRun = 90
	}
	return &BackfillScheduler{units: units, cfg: cfg, now: time.Now}
}

// Run is the stage entry point.
func (s *BackfillScheduler) Run(ctx context.Context) error {
	_, err := s.Schedule(ctx)
	return err
}

// Schedule creates the units between the scheduling cursor and yesterday.
// The cursor is the day after the latest existing unit, or the configured
// start day when there is none.
func (s *BackfillScheduler) Schedule(ctx context.Context) (BackfillResult, error) {
	var res BackfillResult
	loc := s.cfg.Location

	y, m, d := s.now().In(loc).Date()
	target := time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, -1)

	cursor, err := s.cursor(ctx)
	if err != nil {
		return res, err
	}

	for !cursor.After(target) {
		if res.Created >= s.cfg.MaxUnitsPerRun {
			res.Capped = true
			res.Next = cursor.Format(domain.BucketLayout)
			break
		}

		unit := &domain.SyncUnit{
			Namespace:  s.cfg.Namespace,
			BucketKey:  cursor.Format(domain.BucketLayout),
			Parameters: datatypes.NewJSONType(domain.DayParameters(cursor, loc)),
			State:      domain.UnitStatePending,
		}
		created, err := s.units.EnsureUnit(ctx, unit)
		if err != nil {
			return res, fmt.Errorf("failed to schedule %s: %w", unit.BucketKey, err)
		}
		if created {
			res.Created++
		}
		cursor = cursor.AddDate(0, 0, 1)
	}

	log := logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldNamespace: s.cfg.Namespace,
		logger.FieldCount:     res.Created,
	})
	if res.Capped {
		log.WithField("next_cursor", res.Next).
			Warnf("Backfill stopped at %d units per run, next run continues from %s", s.cfg.MaxUnitsPerRun, res.Next)
	} else if res.Created > 0 {
		log.Infof("Backfill scheduled %d units up to %s", res.Created, target.Format(domain.BucketLayout))
	}
	return res, nil
}

func (s *BackfillScheduler) cursor(ctx context.Context) (time.Time, error) {
	loc := s.cfg.Location
	latest, ok, err := s.units.LatestBucketKey(ctx, s.cfg.Namespace)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read latest bucket: %w", err)
	}
	if !ok {
		y, m, d := s.cfg.Start.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	day, err := time.ParseInLocation(domain.BucketLayout, latest, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored bucket key %q: %w", latest, err)
	}
	return day.AddDate(0, 0, 1), nil
}
