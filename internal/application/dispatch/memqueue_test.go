package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/license-notifications/internal/domain"
)

// memQueue is an in-memory queueStore with the same conditional semantics as
// the DynamoDB task table.
type memQueue struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
}

func newMemQueue() *memQueue { return &memQueue{tasks: make(map[string]*domain.Task)} }

func (q *memQueue) Put(_ context.Context, t *domain.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.tasks[t.TaskID]; ok {
		return fmt.Errorf("duplicate: %w", domain.ErrConflict)
	}
	cp := *t
	q.tasks[t.TaskID] = &cp
	return nil
}

func (q *memQueue) get(id string) domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.tasks[id]
}

func (q *memQueue) ListDue(_ context.Context, status string, now time.Time, limit int32) ([]domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.Task
	for _, t := range q.tasks {
		if t.Status == status && t.RunAt <= now.UnixMilli() {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt < out[j].RunAt })
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQueue) Claim(_ context.Context, seen *domain.Task, leaseUntil time.Time) (*domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := q.tasks[seen.TaskID]
	if t == nil || t.Status != seen.Status || t.RunAt != seen.RunAt {
		return nil, fmt.Errorf("claimed elsewhere: %w", domain.ErrConflict)
	}
	t.Status = domain.TaskRunning
	t.RunAt = leaseUntil.UnixMilli()
	t.Attempts++
	cp := *t
	return &cp, nil
}

// finish rejects writes on a done ctx, as the SDK does.
func (q *memQueue) finish(ctx context.Context, claimed *domain.Task, apply func(t *domain.Task)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	t := q.tasks[claimed.TaskID]
	if t.Status != domain.TaskRunning || t.RunAt != claimed.RunAt {
		return fmt.Errorf("lease lost: %w", domain.ErrConflict)
	}
	apply(t)
	return nil
}

func (q *memQueue) Complete(ctx context.Context, t *domain.Task, result string, expiresAt time.Time) error {
	return q.finish(ctx, t, func(s *domain.Task) {
		s.Status, s.Result, s.Error, s.ExpiresAt = domain.TaskSucceeded, result, "", expiresAt.Unix()
	})
}

func (q *memQueue) Reschedule(ctx context.Context, t *domain.Task, errMsg string, runAt time.Time) error {
	return q.finish(ctx, t, func(s *domain.Task) {
		s.Status, s.Error, s.RunAt = domain.TaskEnqueued, errMsg, runAt.UnixMilli()
	})
}

func (q *memQueue) Fail(ctx context.Context, t *domain.Task, errMsg string, expiresAt time.Time) error {
	return q.finish(ctx, t, func(s *domain.Task) {
		s.Status, s.Error, s.ExpiresAt = domain.TaskFailed, errMsg, expiresAt.Unix()
	})
}
