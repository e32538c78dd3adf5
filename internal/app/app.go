// Package app wires the store, dispatcher, scheduler, and HTTP server
// together and owns process lifecycle.
package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/inrcare/backend/internal/api"
	"github.com/inrcare/backend/internal/config"
	"github.com/inrcare/backend/internal/metrics"
	"github.com/inrcare/backend/internal/push"
	"github.com/inrcare/backend/internal/scheduler"
	"github.com/inrcare/backend/internal/store"
)

type App struct {
	Config    *config.Config
	Store     *store.Store
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Scheduler *scheduler.Scheduler
	Server    *api.Server
}

// New builds the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	st, err := store.New(cfg)
	if err != nil {
		return nil, err
	}

	if err := push.EnsureVAPIDKeys(&cfg.Push, st, logger); err != nil {
		_ = st.Close()
		return nil, err
	}

	m := metrics.Default()
	dispatcher := push.NewDispatcher(st, cfg.Push, logger, m)

	sched := scheduler.New(st, dispatcher, logger, m).
		WithInterval(time.Duration(cfg.Scheduler.SweepInterval) * time.Second)
	if cfg.Scheduler.DedupeWindow {
		sched.WithDeduper(scheduler.NewBadgerDeduper(st.Badger(), logger))
		logger.Info("once-per-day reminder dedup enabled")
	}

	server := api.New(cfg, st, dispatcher, logger, m)

	return &App{
		Config:    cfg,
		Store:     st,
		Logger:    logger,
		Metrics:   m,
		Scheduler: sched,
		Server:    server,
	}, nil
}

// Run starts the scheduler and HTTP server and blocks until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Scheduler.Start(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Server.Listen()
	}()

	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			a.Logger.Error("http server error", zap.Error(err))
			a.shutdown()
			return err
		}
	}

	a.shutdown()
	return nil
}

func (a *App) shutdown() {
	if err := a.Server.Shutdown(); err != nil {
		a.Logger.Warn("http server shutdown error", zap.Error(err))
	}
	a.Scheduler.Stop()
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("store close error", zap.Error(err))
	}
}
