// Package service implements the sync stages: backfill scheduling, claiming,
// sampling, consensus merge, detail extraction and incremental sync. Stages
// share no memory; each reads its input from the store and writes its
// output back.
package service

import (
	"context"
	"time"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/failure"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/projection"
)

// OrderSource is the upstream order API.
type OrderSource interface {
	// FetchByDate lists every order created on the local calendar day of day.
	FetchByDate(ctx context.Context, day time.Time) (projection.RecordSet, error)
	// FetchByWindow lists every order last updated within [since, to].
	FetchByWindow(ctx context.Context, since, to time.Time) (projection.RecordSet, error)
	// FetchDetails returns full order documents, items included.
	FetchDetails(ctx context.Context, orderIDs []string) (projection.RecordSet, error)
}

// SleepFunc pauses between upstream calls. It returns early with the
// context's error on cancellation.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// guard runs fn and turns a panic into a *failure.Panic error.
func guard(fn func() (projection.RecordSet, error)) (rs projection.RecordSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			rs, err = nil, failure.Recovered(r)
		}
	}()
	return fn()
}
