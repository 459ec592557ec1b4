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
)

// DetailConfig holds configuration for the detail extractor
type DetailConfig struct {
	Namespace  string
	BatchSize  int
	BatchDelay time.Duration
	UnitDelay  time.Duration
}

// DetailOutcome summarizes one unit's extraction.
type DetailOutcome struct {
	Batches  int
	Items    int64
	Details  int64
	Complete bool
}

// DetailExtractor fetches items and detail documents for the orders of
// CONSENSUS_REACHED units and finishes units whose orders all have items.
type DetailExtractor struct {
	store  *repository.Store
	source OrderSource
	cfg    DetailConfig
	sleep  SleepFunc
	now    func() time.Time
}

// NewDetailExtractor creates a DetailExtractor.
func NewDetailExtractor(store *repository.Store, source OrderSource, cfg DetailConfig) *DetailExtractor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &DetailExtractor{
		store:  store,
		source: source,
		cfg:    cfg,
		sleep:  Sleep,
		now:    time.Now,
	}
}

// Run is the stage entry point.
func (x *DetailExtractor) Run(ctx context.Context) error {
	units, err := x.store.Units.ListByState(ctx, x.cfg.Namespace, domain.UnitStateConsensusReached)
	if err != nil {
		return fmt.Errorf("failed to list units awaiting details: %w", err)
	}

	for i := range units {
		if i > 0 {
			if err := x.sleep(ctx, x.cfg.UnitDelay); err != nil {
				return err
			}
		}
		unit := &units[i]
		uctx := logger.SetUnit(ctx, unit.ID, unit.BucketKey)
		if _, err := x.ExtractUnit(uctx, unit); err != nil {
			logger.FromContext(uctx).WithError(err).Error("Detail extraction failed")
		}
	}
	return nil
}

// ExtractUnit fetches details in batches for the unit's orders that have no
// items yet. A fetch failure is recorded on the unit and ends the unit's
// cycle without an error.
func (x *DetailExtractor) ExtractUnit(ctx context.Context, unit *domain.SyncUnit) (DetailOutcome, error) {
	var out DetailOutcome
	cursor := ""

	for {
		ids, err := x.store.Orders.IDsWithoutItems(ctx, unit.ID, cursor, x.cfg.BatchSize)
		if err != nil {
			return out, fmt.Errorf("failed to select orders without items: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		records, err := guard(func() (projection.RecordSet, error) {
			return x.source.FetchDetails(ctx, ids)
		})
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Detail fetch failed")
			if setErr := x.store.Units.SetError(ctx, unit.ID, failure.Serialize(err)); setErr != nil {
				return out, setErr
			}
			return out, nil
		}

		flat := projection.FlattenDetails(records, &unit.ID)
		var items, details int64
		err = x.store.InTx(ctx, func(tx *repository.Store) error {
			var err error
			if items, err = tx.Details.InsertItems(ctx, flat.Items); err != nil {
				return err
			}
			details, err = tx.Details.InsertDetails(ctx, flat.Details)
			return err
		})
		if err != nil {
			return out, err
		}
		out.Batches++
		out.Items += items
		out.Details += details

		logger.With(logger.Fields{
			logger.FieldCount: len(ids),
			"items":           items,
			"details":         details,
			"skipped":         flat.Skipped,
		}).Info(ctx, "Detail batch stored")

		cursor = ids[len(ids)-1]
		if len(ids) < x.cfg.BatchSize {
			break
		}
		if err := x.sleep(ctx, x.cfg.BatchDelay); err != nil {
			return out, err
		}
	}

	return out, x.finish(ctx, unit, &out)
}

// finish moves the unit to DETAIL_FETCHED when the number of its orders
// with items equals the consensus key.
func (x *DetailExtractor) finish(ctx context.Context, unit *domain.SyncUnit, out *DetailOutcome) error {
	if unit.ConsensusKey == nil {
		return fmt.Errorf("unit %d has no consensus key", unit.ID)
	}
	want, err := strconv.ParseInt(*unit.ConsensusKey, 10, 64)
	if err != nil {
		return fmt.Errorf("unit %d consensus key %q: %w", unit.ID, *unit.ConsensusKey, err)
	}

	got, err := x.store.Orders.CountWithItems(ctx, unit.ID)
	if err != nil {
		return fmt.Errorf("failed to count orders with items: %w", err)
	}
	if got != want {
		logger.FromContext(ctx).WithFields(logger.Fields{
			"expected": want,
			"actual":   got,
		}).Warn("Detail extraction incomplete, unit left for the next run")
		return nil
	}

	err = x.store.Units.Transition(ctx, unit.ID, domain.UnitStateConsensusReached, domain.UnitStateDetailFetched, map[string]interface{}{
		"detail_fetched_at": x.now(),
	})
	if err != nil {
		return err
	}
	out.Complete = true
	logger.FromContext(ctx).Info("Unit details fetched")
	return nil
}
