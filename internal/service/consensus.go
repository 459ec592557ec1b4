package service

import (
	"context"
	"sort"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/repository"
)

// Consensus is a result key confirmed by enough matching attempts.
type Consensus struct {
	Key   string
	Count int
}

// Evaluate picks the consensus among attempt counts per result key. Keys
// seen at least threshold times qualify; when several do, the
// lexicographically smallest wins.
func Evaluate(counts map[string]int, threshold int) (Consensus, bool) {
	if threshold < 1 {
		threshold = 1
	}
	keys := make([]string, 0, len(counts))
	for k, n := range counts {
		if n >= threshold {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return Consensus{}, false
	}
	sort.Strings(keys)
	return Consensus{Key: keys[0], Count: counts[keys[0]]}, true
}

// ConsensusEvaluator evaluates the stored attempts of a unit.
type ConsensusEvaluator struct {
	attempts  *repository.AttemptRepository
	threshold int
}

// NewConsensusEvaluator creates a ConsensusEvaluator.
func NewConsensusEvaluator(attempts *repository.AttemptRepository, threshold int) *ConsensusEvaluator {
	return &ConsensusEvaluator{attempts: attempts, threshold: threshold}
}

// Check reports whether the attempts of unitID have reached consensus.
func (e *ConsensusEvaluator) Check(ctx context.Context, unitID int64) (Consensus, bool, error) {
	counts, err := e.attempts.ResultKeyCounts(ctx, unitID)
	if err != nil {
		return Consensus{}, false, err
	}
	c, ok := Evaluate(counts, e.threshold)
	return c, ok, nil
}
