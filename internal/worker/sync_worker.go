package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-dispatch/internal/engine"
	"github.com/spec-kit/maintenance-dispatch/internal/repository"
)

// SyncWorker periodically pulls remote snapshots and feeds them to the
// engine's reconciliation. This is the inbound half of the remote-store
// boundary: the engine never polls on its own.
type SyncWorker struct {
	engine    *engine.Engine
	store     repository.RequestStore
	directory repository.TechnicianStore
	logger    *zap.Logger
	schedule  string
	cron      *cron.Cron
}

// NewSyncWorker constructs the worker.
func NewSyncWorker(dispatchEngine *engine.Engine, store repository.RequestStore, directory repository.TechnicianStore, schedule string, logger *zap.Logger) *SyncWorker {
	return &SyncWorker{
		engine:    dispatchEngine,
		store:     store,
		directory: directory,
		logger:    logger,
		schedule:  schedule,
	}
}

// RefreshOnce pushes unconfirmed local records, then fetches and applies one
// snapshot of requests and technicians. The push runs first so the pulled
// snapshot already reflects recovered writes.
func (w *SyncWorker) RefreshOnce(ctx context.Context) error {
	if resynced := w.engine.ResyncPending(ctx); resynced > 0 {
		w.logger.Info("re-forwarded unconfirmed records", zap.Int("resynced", resynced))
	}

	requests, err := w.store.FetchAll(ctx)
	if err != nil {
		return err
	}
	applied, skipped := w.engine.ApplySnapshot(requests)
	if skipped > 0 {
		w.logger.Debug("snapshot records skipped pending local confirmation", zap.Int("skipped", skipped))
	}

	technicians, err := w.directory.FetchAll(ctx)
	if err != nil {
		return err
	}
	w.engine.SetTechnicians(technicians)

	w.logger.Info("remote snapshot refreshed",
		zap.Int("requests", len(requests)),
		zap.Int("applied", applied),
		zap.Int("technicians", len(technicians)))
	return nil
}

// Start schedules periodic refreshes. Stop must be called on shutdown.
func (w *SyncWorker) Start() error {
	w.cron = cron.New()
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := w.RefreshOnce(ctx); err != nil {
			w.logger.Warn("snapshot refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	w.cron.Start()
	return nil
}

// Stop halts the refresh schedule and waits for a running job to finish.
func (w *SyncWorker) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}
