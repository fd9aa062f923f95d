package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	"github.com/noah-isme/sma-gatepass-api/pkg/events"
	"github.com/noah-isme/sma-gatepass-api/pkg/jobs"
)

// SyncJobType labels profile sync jobs in queue logs.
const SyncJobType = "profile_sync"

type syncTaskQueue interface {
	TryEnqueue(job jobs.Job[models.SyncTask]) error
}

// QueueTrigger hands continuation tasks to the in-process worker pool.
type QueueTrigger struct {
	queue syncTaskQueue
}

// NewQueueTrigger constructs a QueueTrigger.
func NewQueueTrigger(queue syncTaskQueue) *QueueTrigger {
	return &QueueTrigger{queue: queue}
}

// Trigger enqueues task without blocking the current invocation.
func (t *QueueTrigger) Trigger(_ context.Context, task models.SyncTask) error {
	return t.queue.TryEnqueue(jobs.Job[models.SyncTask]{
		ID:      fmt.Sprintf("%s@%d", task.RunID, task.StartPage),
		Type:    SyncJobType,
		Payload: task,
	})
}

type eventPublisher interface {
	Publish(ctx context.Context, subject string, v interface{}) error
}

// NATSTrigger publishes continuation tasks so that any replica can run them.
type NATSTrigger struct {
	bus     eventPublisher
	subject string
}

// NewNATSTrigger constructs a NATSTrigger.
func NewNATSTrigger(bus eventPublisher, subject string) *NATSTrigger {
	return &NATSTrigger{bus: bus, subject: subject}
}

// Trigger publishes task as JSON.
func (t *NATSTrigger) Trigger(ctx context.Context, task models.SyncTask) error {
	return t.bus.Publish(ctx, t.subject, task)
}

type eventSubscriber interface {
	Subscribe(subject, queue string, handler events.Handler) (func(), error)
}

// SubscribeSyncTasks consumes published tasks from a queue group and passes them
// to next, normally a QueueTrigger.
func SubscribeSyncTasks(bus eventSubscriber, subject, group string, next SyncTrigger) (func(), error) {
	return bus.Subscribe(subject, group, func(ctx context.Context, data []byte) error {
		var task models.SyncTask
		if err := json.Unmarshal(data, &task); err != nil {
			return fmt.Errorf("decode sync task: %w", err)
		}
		if task.RunID == "" {
			return fmt.Errorf("sync task without run id")
		}
		return next.Trigger(ctx, task)
	})
}
