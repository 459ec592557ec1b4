package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/scheduler"
	"github.com/spf13/cobra"
)

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	stageNames := []string{
		scheduler.StageBackfill,
		scheduler.StageIncremental,
		scheduler.StageClaim,
		scheduler.StageSample,
		scheduler.StageMerge,
		scheduler.StageDetails,
	}

	return &cobra.Command{
		Use:   "run <stage>",
		Short: "Run one stage once and exit",
		Long: `Run a single pass of one stage, for example to retry a failed merge by hand.

Stages: ` + strings.Join(stageNames, ", ") + `

Backfill and incremental sync must be enabled in the configuration to run.

Example:
  ginee-sync run sample
  ginee-sync run merge --config ./configs/config.yaml`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: stageNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(rootOpts, args[0])
		},
	}
}

func runStage(opts *rootOptions, name string) error {
	a, err := loadApp(opts, true)
	if err != nil {
		return err
	}
	defer a.close()

	stages, err := a.stages()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = a.log.WithContext(ctx)

	runner := scheduler.NewRunner(stages...)
	if err := runner.RunOnce(ctx, name); err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	return nil
}
