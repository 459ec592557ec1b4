package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/failure"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/logger"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/projection"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/repository"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/storage"
	"gorm.io/datatypes"
)

// SamplerConfig holds configuration for the sampler
type SamplerConfig struct {
	Namespace string
	Location  *time.Location
	UnitDelay time.Duration
}

// Sampler fetches every processing unit once per run and records the
// outcome as a fetch attempt. A unit that already has consensus is still
// sampled: if its merge failed, fresh attempts are what let a different key
// take over.
type Sampler struct {
	store   *repository.Store
	source  OrderSource
	archive *storage.PayloadArchive
	cfg     SamplerConfig
	sleep   SleepFunc
	now     func() time.Time
}

// NewSampler creates a Sampler. archive may be nil, in which case payloads
// are stored in the attempt rows.
func NewSampler(store *repository.Store, source OrderSource, archive *storage.PayloadArchive, cfg SamplerConfig) *Sampler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Sampler{
		store:   store,
		source:  source,
		archive: archive,
		cfg:     cfg,
		sleep:   Sleep,
		now:     time.Now,
	}
}

// Run is the stage entry point.
func (s *Sampler) Run(ctx context.Context) error {
	units, err := s.store.Units.ListByState(ctx, s.cfg.Namespace, domain.UnitStateProcessing)
	if err != nil {
		return fmt.Errorf("failed to list processing units: %w", err)
	}

	for i := range units {
		unit := &units[i]
		uctx := logger.SetUnit(ctx, unit.ID, unit.BucketKey)

		if i > 0 {
			if err := s.sleep(ctx, s.cfg.UnitDelay); err != nil {
				return err
			}
		}

		if _, err := s.SampleUnit(uctx, unit); err != nil {
			logger.FromContext(uctx).WithError(err).Error("Failed to record fetch attempt")
		}
	}
	return nil
}

// SampleUnit fetches the unit's day once and appends the attempt. Upstream
// failures and panics are recorded on the attempt; the returned error is
// only set when the attempt itself could not be stored.
func (s *Sampler) SampleUnit(ctx context.Context, unit *domain.SyncUnit) (*domain.FetchAttempt, error) {
	day, err := unit.Day(s.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("unit %d has invalid bucket key %q: %w", unit.ID, unit.BucketKey, err)
	}

	start := s.now()
	records, fetchErr := guard(func() (projection.RecordSet, error) {
		return s.source.FetchByDate(ctx, day)
	})
	end := s.now()

	attempt := &domain.FetchAttempt{
		SyncUnitID:      unit.ID,
		ExecutionStart:  start,
		ExecutionEnd:    end,
		ExecutionTimeMs: end.Sub(start).Milliseconds(),
	}

	if fetchErr != nil {
		attempt.Error = failure.Serialize(fetchErr)
		logger.With(logger.Fields{logger.FieldStatus: "failed"}).
			WithDuration(attempt.ExecutionTimeMs).
			Warn(ctx, "Fetch attempt failed: %v", fetchErr)
	} else {
		key := strconv.Itoa(len(records))
		attempt.ResultKey = &key
		if err := s.attachPayload(ctx, unit, attempt, records); err != nil {
			attempt.ResultKey = nil
			attempt.Error = failure.Serialize(err)
		} else {
			logger.With(logger.Fields{logger.FieldStatus: "ok"}).
				WithDuration(attempt.ExecutionTimeMs).
				WithCount(len(records)).
				Info(ctx, "Fetch attempt recorded with result key %s", key)
		}
	}

	if err := s.store.Attempts.Create(ctx, attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}

func (s *Sampler) attachPayload(ctx context.Context, unit *domain.SyncUnit, attempt *domain.FetchAttempt, records projection.RecordSet) error {
	payload, err := records.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	if s.archive != nil {
		key, err := s.archive.Put(ctx, unit.Namespace, unit.BucketKey, payload)
		if err == nil {
			attempt.PayloadKey = key
			return nil
		}
		logger.FromContext(ctx).WithError(err).Warn("Payload archive unavailable, storing payload inline")
	}
	attempt.Payload = datatypes.JSON(payload)
	return nil
}
