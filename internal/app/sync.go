package app

import (
	"context"
	"time"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	"github.com/noah-isme/sma-gatepass-api/internal/service"
	"github.com/noah-isme/sma-gatepass-api/pkg/events"
	"github.com/noah-isme/sma-gatepass-api/pkg/jobs"
)

const (
	syncQueueName = "profile-sync"
	syncGroup     = "profile-sync-workers"
)

// SyncWorkers owns the profile sync worker pool and its optional NATS link.
type SyncWorkers struct {
	queue       *jobs.Queue[models.SyncTask]
	bus         *events.Bus
	unsubscribe func()
}

// StartSyncWorkers starts the in-process queue behind the sync scheduler. With
// NATS configured, continuation tasks are published and consumed through a
// queue group so that any replica can pick them up.
func (a *App) StartSyncWorkers(ctx context.Context) (*SyncWorkers, error) {
	queue := jobs.NewQueue[models.SyncTask](syncQueueName, a.Sync.HandleJob, jobs.QueueConfig{
		Workers:    a.Config.Sync.Workers,
		MaxRetries: -1,
		RetryDelay: time.Second,
		Logger:     a.Logger,
	})
	queue.Start(ctx)
	workers := &SyncWorkers{queue: queue}
	local := service.NewQueueTrigger(queue)

	if a.Config.Sync.NATSURL == "" {
		a.Sync.SetTrigger(local)
		return workers, nil
	}

	bus, err := events.Connect(a.Config.Sync.NATSURL, a.Logger)
	if err != nil {
		queue.Stop()
		return nil, err
	}
	unsubscribe, err := service.SubscribeSyncTasks(bus, a.Config.Sync.NATSSubject, syncGroup, local)
	if err != nil {
		_ = bus.Close()
		queue.Stop()
		return nil, err
	}
	a.Sync.SetTrigger(service.NewNATSTrigger(bus, a.Config.Sync.NATSSubject))
	workers.bus = bus
	workers.unsubscribe = unsubscribe
	return workers, nil
}

// Stop drains the subscription and the worker pool.
func (w *SyncWorkers) Stop() {
	if w == nil {
		return
	}
	if w.unsubscribe != nil {
		w.unsubscribe()
	}
	if w.bus != nil {
		_ = w.bus.Close()
	}
	w.queue.Stop()
}

// PublishSyncTasks points the scheduler at NATS without consuming tasks, so
// that a short-lived process can start a run for the server replicas to
// execute. The returned bus must be closed by the caller.
func (a *App) PublishSyncTasks() (*events.Bus, error) {
	bus, err := events.Connect(a.Config.Sync.NATSURL, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Sync.SetTrigger(service.NewNATSTrigger(bus, a.Config.Sync.NATSSubject))
	return bus, nil
}
