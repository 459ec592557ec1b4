package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/failure"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/logger"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/projection"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/repository"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/storage"
)

// ConfirmRule decides whether a merge confirms the consensus key.
type ConfirmRule string

const (
	// ConfirmAffected requires inserted + updated to equal the key.
	ConfirmAffected ConfirmRule = "affected"
	// ConfirmSettled requires every distinct order of the payload to be
	// inserted, updated, or already current, and their number to equal the key.
	ConfirmSettled ConfirmRule = "settled"
)

// Confirms applies the rule to merge stats.
func (r ConfirmRule) Confirms(stats repository.MergeStats, key int) bool {
	switch r {
	case ConfirmSettled:
		return stats.Applied()+stats.Skipped == key
	default:
		return stats.Applied() == key
	}
}

// MismatchError reports a merge whose outcome disagrees with the consensus
// key. The merge is rolled back.
type MismatchError struct {
	Key      int
	Rule     ConfirmRule
	Stats    repository.MergeStats
	Rejected int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("consensus key %d not confirmed by %s merge: inserted %d, updated %d, skipped %d, rejected %d",
		e.Key, e.Rule, e.Stats.Inserted, e.Stats.Updated, e.Stats.Skipped, e.Rejected)
}

// Kind classifies the error in stored error payloads.
func (e *MismatchError) Kind() string {
	return "ConsensusMismatch"
}

// ErrPayloadMissing is returned when the consensus attempt has no payload.
var ErrPayloadMissing = errors.New("consensus attempt has no payload")

// ApplyResult is the outcome of applying one payload.
type ApplyResult struct {
	repository.MergeStats
	Rejected int      `json:"rejected"`
	Dropped  []string `json:"dropped,omitempty"`
}

// ApplyRecords projects records onto orders, dedups them and writes them
// with newer-wins semantics. Records without an orderId are rejected and
// counted. tx should be transaction-bound.
func ApplyRecords(ctx context.Context, tx *repository.Store, records projection.RecordSet, unitID *int64) (ApplyResult, error) {
	var res ApplyResult

	orders := make([]domain.Order, 0, len(records))
	dropped := map[string]struct{}{}
	for _, rec := range records {
		o, d, err := projection.ProjectOrder(rec)
		if err != nil {
			res.Rejected++
			continue
		}
		for _, k := range d {
			dropped[k] = struct{}{}
		}
		orders = append(orders, o)
	}
	for k := range dropped {
		res.Dropped = append(res.Dropped, k)
	}
	sort.Strings(res.Dropped)

	stats, err := tx.Orders.UpsertIfNewer(ctx, projection.DedupOrders(orders), unitID)
	if err != nil {
		return res, err
	}
	res.MergeStats = stats
	return res, nil
}

// MergeConfig holds configuration for the merge engine
type MergeConfig struct {
	Namespace string
	Rule      ConfirmRule
}

// MergeEngine applies the consensus payload of processing units and moves
// confirmed units to CONSENSUS_REACHED.
type MergeEngine struct {
	store     *repository.Store
	evaluator *ConsensusEvaluator
	archive   *storage.PayloadArchive
	cfg       MergeConfig
	now       func() time.Time
}

// NewMergeEngine creates a MergeEngine. archive is needed only when attempts
// were sampled with an archive.
func NewMergeEngine(store *repository.Store, evaluator *ConsensusEvaluator, archive *storage.PayloadArchive, cfg MergeConfig) *MergeEngine {
	if cfg.Rule == "" {
		cfg.Rule = ConfirmAffected
	}
	return &MergeEngine{
		store:     store,
		evaluator: evaluator,
		archive:   archive,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run is the stage entry point.
func (m *MergeEngine) Run(ctx context.Context) error {
	units, err := m.store.Units.ListByState(ctx, m.cfg.Namespace, domain.UnitStateProcessing)
	if err != nil {
		return fmt.Errorf("failed to list processing units: %w", err)
	}

	for i := range units {
		unit := &units[i]
		uctx := logger.SetUnit(ctx, unit.ID, unit.BucketKey)

		c, reached, err := m.evaluator.Check(uctx, unit.ID)
		if err != nil {
			logger.FromContext(uctx).WithError(err).Error("Consensus check failed")
			continue
		}
		if !reached {
			continue
		}

		if _, err := m.MergeUnit(uctx, unit, c); err != nil {
			logger.FromContext(uctx).WithError(err).Warn("Merge not confirmed")
		}
	}
	return nil
}

// MergeUnit applies the latest attempt carrying the consensus key. On
// success the unit is CONSENSUS_REACHED; on any failure the unit stays
// PROCESSING with the error recorded on it.
func (m *MergeEngine) MergeUnit(ctx context.Context, unit *domain.SyncUnit, c Consensus) (ApplyResult, error) {
	res, err := m.merge(ctx, unit, c)
	if err != nil {
		if setErr := m.store.Units.SetError(ctx, unit.ID, failure.Serialize(err)); setErr != nil {
			logger.FromContext(ctx).WithError(setErr).Error("Failed to record unit error")
		}
		return res, err
	}

	logger.With(logger.Fields{
		logger.FieldInserted: res.Inserted,
		logger.FieldUpdated:  res.Updated,
		logger.FieldSkipped:  res.Skipped,
	}).Info(ctx, "Consensus %s reached and merged", c.Key)
	return res, nil
}

func (m *MergeEngine) merge(ctx context.Context, unit *domain.SyncUnit, c Consensus) (ApplyResult, error) {
	var res ApplyResult

	key, err := strconv.Atoi(c.Key)
	if err != nil {
		return res, fmt.Errorf("consensus key %q is not a count: %w", c.Key, err)
	}

	records, err := m.loadPayload(ctx, unit.ID, c.Key)
	if err != nil {
		return res, err
	}

	err = m.store.InTx(ctx, func(tx *repository.Store) error {
		res, err = ApplyRecords(ctx, tx, records, &unit.ID)
		if err != nil {
			return err
		}
		if !m.cfg.Rule.Confirms(res.MergeStats, key) {
			return &MismatchError{Key: key, Rule: m.cfg.Rule, Stats: res.MergeStats, Rejected: res.Rejected}
		}
		now := m.now()
		return tx.Units.Transition(ctx, unit.ID, domain.UnitStateProcessing, domain.UnitStateConsensusReached, map[string]interface{}{
			"consensus_key": c.Key,
			"consensus_at":  now,
		})
	})
	return res, err
}

func (m *MergeEngine) loadPayload(ctx context.Context, unitID int64, key string) (projection.RecordSet, error) {
	attempt, err := m.store.Attempts.LatestWithKey(ctx, unitID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load consensus attempt: %w", err)
	}
	if attempt == nil {
		return nil, ErrPayloadMissing
	}

	raw := []byte(attempt.Payload)
	if len(raw) == 0 && attempt.PayloadKey != "" {
		if m.archive == nil {
			return nil, fmt.Errorf("attempt %d payload is archived but no archive is configured", attempt.ID)
		}
		raw, err = m.archive.Get(ctx, attempt.PayloadKey)
		if err != nil {
			return nil, err
		}
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("attempt %d: %w", attempt.ID, ErrPayloadMissing)
	}
	return projection.ParseRecordSet(raw)
}
