package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/api"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/api/middleware"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/logger"
	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/scheduler"
	"github.com/spf13/cobra"
)

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run every enabled stage on its interval and serve the ops API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(rootOpts)
		},
	}
}

func serve(opts *rootOptions) error {
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
	a.log.WithFields(logger.Fields{
		"stages":   runner.Stages(),
		"timezone": a.loc.String(),
		"interval": a.cfg.Scheduler.Interval.String(),
	}).Info("Starting scheduler")
	runner.Start(ctx)

	var srv *http.Server
	if a.cfg.Server.Enabled {
		router := api.SetupRouter(a.store, api.Options{
			Mode:      a.cfg.Server.Mode,
			Namespace: a.cfg.App.Namespace,
			Location:  a.loc,
			CORS:      middleware.CORSConfig{AllowedOrigins: a.cfg.Server.CORSOrigins},
		})
		srv = &http.Server{
			Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler: router,
		}
		go func() {
			a.log.WithFields(logger.Fields{
				"port": a.cfg.Server.Port,
				"mode": a.cfg.Server.Mode,
			}).Info("Starting API server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.WithError(err).Error("API server stopped")
				stop()
			}
		}()
	}

	<-ctx.Done()
	a.log.Info("Shutting down...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.WithError(err).Warn("Server forced to shutdown")
		}
	}
	runner.Wait()

	a.log.Info("Stopped")
	return nil
}
