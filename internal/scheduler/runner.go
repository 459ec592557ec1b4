// Package scheduler drives the sync stages on fixed intervals.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/failure"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/logger"
)

// Stage names, in pipeline order.
const (
	StageBackfill    = "backfill-schedule"
	StageIncremental = "incremental-sync"
	StageClaim       = "claim"
	StageSample      = "sample"
	StageMerge       = "merge"
	StageDetails     = "details"
)

// StageFunc runs one pass of a stage.
type StageFunc func(ctx context.Context) error

// Stage is a named StageFunc with its own interval.
type Stage struct {
	Name     string
	Interval time.Duration
	Run      StageFunc
}

// Runner runs each stage in its own goroutine: once at start, then on every
// tick. A stage never overlaps with itself; a tick that fires while the
// previous pass is still running is dropped.
type Runner struct {
	stages []Stage

	wg sync.WaitGroup
}

// NewRunner creates a Runner for stages.
func NewRunner(stages ...Stage) *Runner {
	return &Runner{stages: stages}
}

// Stages lists the registered stage names.
func (r *Runner) Stages() []string {
	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.Name
	}
	return names
}

// Start launches every stage loop. Loops stop when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	for _, s := range r.stages {
		r.wg.Add(1)
		go r.loop(ctx, s)
	}
	logger.FromContext(ctx).WithField(logger.FieldCount, len(r.stages)).Info("Scheduler started")
}

// Wait blocks until every loop has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// RunOnce runs the named stage a single time.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	for _, s := range r.stages {
		if s.Name == name {
			return runStage(ctx, s)
		}
	}
	return fmt.Errorf("unknown stage %q", name)
}

func (r *Runner) loop(ctx context.Context, s Stage) {
	defer r.wg.Done()

	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	runStage(ctx, s)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runStage(ctx, s)
		}
	}
}

// runStage runs one pass with a fresh run id, logging its outcome. Panics
// are logged and reported as errors.
func runStage(ctx context.Context, s Stage) (err error) {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	ctx = logger.SetStage(ctx, s.Name, uuid.NewString())
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = failure.Recovered(r)
		}
		entry := logger.With(nil).WithDuration(time.Since(start).Milliseconds())
		if err != nil && ctx.Err() == nil {
			entry.WithStatus("error").Error(ctx, "Stage %s failed: %v", s.Name, err)
			return
		}
		entry.WithStatus("ok").Debug(ctx, "Stage %s finished", s.Name)
	}()

	return s.Run(ctx)
}
