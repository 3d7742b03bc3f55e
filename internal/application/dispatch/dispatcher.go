// Package dispatch schedules deferred tasks and runs them on a worker pool.
//
// Delivery is at-least-once: a task whose worker dies mid-run is picked up
// again once its lease expires, so handlers must tolerate re-execution.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/license-notifications/internal/domain"
	"github.com/license-notifications/internal/pkg/id"
)

type taskWriter interface {
	Put(ctx context.Context, t *domain.Task) error
}

// Dispatcher is the enqueue side of the task queue.
type Dispatcher struct {
	repo taskWriter
	now  func() time.Time
}

func NewDispatcher(repo taskWriter) *Dispatcher {
	return &Dispatcher{repo: repo, now: time.Now}
}

// Enqueue records a task due immediately and returns without waiting for it to run.
func (d *Dispatcher) Enqueue(ctx context.Context, name string, args map[string]string) (*domain.Task, error) {
	now := d.now().UTC()
	t := &domain.Task{
		TaskID:    id.New(),
		Name:      name,
		Args:      args,
		Status:    domain.TaskEnqueued,
		RunAt:     now.UnixMilli(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.repo.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", name, err)
	}
	return t, nil
}
