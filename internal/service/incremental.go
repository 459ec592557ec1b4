package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/failure"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/logger"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/projection"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/repository"
)

// IncrementalConfig holds configuration for incremental sync
type IncrementalConfig struct {
	Namespace    string
	LookbackDays int
}

// IncrementalSync pulls orders updated since the last complete window and
// merges them with newer-wins semantics. Each run records a watermark.
type IncrementalSync struct {
	store  *repository.Store
	source OrderSource
	cfg    IncrementalConfig
	now    func() time.Time
}

// NewIncrementalSync creates an IncrementalSync.
func NewIncrementalSync(store *repository.Store, source OrderSource, cfg IncrementalConfig) *IncrementalSync {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 1
	}
	return &IncrementalSync{store: store, source: source, cfg: cfg, now: time.Now}
}

// Run is the stage entry point.
func (s *IncrementalSync) Run(ctx context.Context) error {
	_, err := s.Sync(ctx)
	return err
}

// Sync runs one window and returns its watermark.
func (s *IncrementalSync) Sync(ctx context.Context) (*domain.SyncWatermark, error) {
	started := s.now()
	to := started.UTC()

	since := to.AddDate(0, 0, -s.cfg.LookbackDays)
	latest, err := s.store.Watermarks.LatestComplete(ctx, s.cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark: %w", err)
	}
	if latest != nil {
		since = latest.To
	}

	wm := &domain.SyncWatermark{
		Namespace: s.cfg.Namespace,
		Since:     since,
		To:        to,
		State:     domain.WatermarkStatePending,
	}
	if err := s.store.Watermarks.Create(ctx, wm); err != nil {
		return nil, fmt.Errorf("failed to create watermark: %w", err)
	}
	ctx = logger.WithField(ctx, logger.FieldWatermark, wm.ID)

	runErr := s.run(ctx, wm)
	if runErr != nil {
		wm.State = domain.WatermarkStateError
		wm.Error = failure.Serialize(runErr)
		if err := s.store.Watermarks.MarkError(ctx, wm.ID, wm.Error); err != nil {
			logger.FromContext(ctx).WithError(err).Error("Failed to mark watermark error")
		}
	}

	end := s.now()
	took := end.Sub(started)
	if err := s.store.Watermarks.RecordExecution(ctx, wm.ID, end, took); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to record watermark execution")
	}
	ms := took.Milliseconds()
	wm.ExecutionEnd = &end
	wm.ExecutionTimeMs = &ms

	entry := logger.With(logger.Fields{
		logger.FieldStatus: string(wm.State),
	}).WithDuration(ms)
	if runErr != nil {
		entry.Warn(ctx, "Incremental sync %s..%s failed: %v", since.Format(time.RFC3339), to.Format(time.RFC3339), runErr)
		return wm, runErr
	}
	entry.Info(ctx, "Incremental sync %s..%s complete", since.Format(time.RFC3339), to.Format(time.RFC3339))
	return wm, nil
}

func (s *IncrementalSync) run(ctx context.Context, wm *domain.SyncWatermark) error {
	records, err := guard(func() (projection.RecordSet, error) {
		return s.source.FetchByWindow(ctx, wm.Since, wm.To)
	})
	if err != nil {
		return err
	}

	key := strconv.Itoa(len(records))
	if err := s.store.Watermarks.SetConsensusKey(ctx, wm.ID, key); err != nil {
		return fmt.Errorf("failed to store fetched count: %w", err)
	}
	wm.ConsensusKey = &key

	return s.store.InTx(ctx, func(tx *repository.Store) error {
		res, err := ApplyRecords(ctx, tx, records, nil)
		if err != nil {
			return err
		}
		result, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("failed to encode merge result: %w", err)
		}
		if err := tx.Watermarks.Complete(ctx, wm.ID, result); err != nil {
			return err
		}
		wm.State = domain.WatermarkStateComplete
		wm.Result = result
		return nil
	})
}
