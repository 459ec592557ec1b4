package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/config"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/ginee"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/logger"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/repository"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/scheduler"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/service"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/storage"
)

// app holds the process-wide dependencies built once at startup.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	loc   *time.Location
	store *repository.Store
}

// loadApp reads the configuration and opens the database. Full validation
// is only needed by commands that talk to Ginee.
func loadApp(opts *rootOptions, validate bool) (*app, error) {
	path := opts.ConfigPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	loc, err := cfg.App.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: app.timezone: %v", config.ErrInvalidConfig, err)
	}

	appLogger := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "ginee-sync",
		Environment: cfg.Log.Environment,
		File:        cfg.Log.File,
		FileOnly:    cfg.Log.FileOnly,
		MaxSize:     cfg.Log.MaxSize,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAge:      cfg.Log.MaxAge,
		Compress:    cfg.Log.Compress,
	}).WithField(logger.FieldNamespace, cfg.App.Namespace)
	logger.SetDefaultLogger(appLogger)

	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = appLogger.Level()
	}
	db, err := repository.InitDB(&cfg.Database, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &app{
		cfg:   cfg,
		log:   appLogger,
		loc:   loc,
		store: repository.NewStore(db),
	}, nil
}

func (a *app) close() {
	if sqlDB, err := a.store.DB().DB(); err == nil {
		sqlDB.Close()
	}
	logger.Sync()
}

// archive returns the payload archive, or nil when archiving is off.
func (a *app) archive() (*storage.PayloadArchive, error) {
	if !a.cfg.Archive.Enabled {
		return nil, nil
	}
	objects, err := storage.NewStorage(&a.cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive storage: %w", err)
	}
	if err := objects.EnsureBucket(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure archive bucket: %w", err)
	}
	return storage.NewPayloadArchive(objects, a.cfg.Archive.Prefix), nil
}

// stages builds every enabled stage in pipeline order.
func (a *app) stages() ([]scheduler.Stage, error) {
	client, err := ginee.NewClient(&a.cfg.Ginee, a.loc)
	if err != nil {
		return nil, err
	}
	archive, err := a.archive()
	if err != nil {
		return nil, err
	}

	cfg := a.cfg
	ns := cfg.App.Namespace
	interval := cfg.Scheduler.Interval
	evaluator := service.NewConsensusEvaluator(a.store.Attempts, cfg.Consensus.Threshold)

	var stages []scheduler.Stage
	if cfg.Backfill.Enabled {
		start, err := cfg.Backfill.Start(a.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: backfill.start_date: %v", config.ErrInvalidConfig, err)
		}
		backfill := service.NewBackfillScheduler(a.store.Units, service.BackfillConfig{
			Namespace:      ns,
			Start:          start,
			MaxUnitsPerRun: cfg.Backfill.MaxUnitsPerRun,
			Location:       a.loc,
		})
		stages = append(stages, scheduler.Stage{Name: scheduler.StageBackfill, Interval: interval, Run: backfill.Run})
	}
	if cfg.Incremental.Enabled {
		incremental := service.NewIncrementalSync(a.store, client, service.IncrementalConfig{
			Namespace:    ns,
			LookbackDays: cfg.Incremental.DefaultLookbackDays,
		})
		stages = append(stages, scheduler.Stage{Name: scheduler.StageIncremental, Interval: interval, Run: incremental.Run})
	}

	claimer := service.NewClaimer(a.store.Units, ns)
	sampler := service.NewSampler(a.store, client, archive, service.SamplerConfig{
		Namespace: ns,
		Location:  a.loc,
		UnitDelay: cfg.Sampler.UnitDelay,
	})
	merge := service.NewMergeEngine(a.store, evaluator, archive, service.MergeConfig{
		Namespace: ns,
		Rule:      service.ConfirmRule(cfg.Merge.ConfirmRule),
	})
	details := service.NewDetailExtractor(a.store, client, service.DetailConfig{
		Namespace:  ns,
		BatchSize:  cfg.Detail.BatchSize,
		BatchDelay: cfg.Detail.BatchDelay,
		UnitDelay:  cfg.Detail.UnitDelay,
	})

	return append(stages,
		scheduler.Stage{Name: scheduler.StageClaim, Interval: interval, Run: claimer.Run},
		scheduler.Stage{Name: scheduler.StageSample, Interval: interval, Run: sampler.Run},
		scheduler.Stage{Name: scheduler.StageMerge, Interval: interval, Run: merge.Run},
		scheduler.Stage{Name: scheduler.StageDetails, Interval: interval, Run: details.Run},
	), nil
}
