package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/license-notifications/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Handler runs one task attempt. The returned string is stored as the task result.
type Handler func(ctx context.Context, t *domain.Task) (string, error)

type queueStore interface {
	ListDue(ctx context.Context, status string, now time.Time, limit int32) ([]domain.Task, error)
	Claim(ctx context.Context, t *domain.Task, leaseUntil time.Time) (*domain.Task, error)
	Complete(ctx context.Context, t *domain.Task, result string, expiresAt time.Time) error
	Reschedule(ctx context.Context, t *domain.Task, errMsg string, runAt time.Time) error
	Fail(ctx context.Context, t *domain.Task, errMsg string, expiresAt time.Time) error
}

type Options struct {
	Concurrency  int
	PollInterval time.Duration
	// Lease bounds a single attempt; an attempt still running after it may be
	// claimed by another worker.
	Lease        time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	Retention    time.Duration
}

func (o *Options) setDefaults() {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.Lease <= 0 {
		o.Lease = 5 * time.Minute
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 10 * time.Second
	}
	if o.Retention <= 0 {
		o.Retention = 7 * 24 * time.Hour
	}
}

// Worker polls the task table and executes due tasks.
type Worker struct {
	repo     queueStore
	opts     Options
	handlers map[string]Handler
	now      func() time.Time
}

func NewWorker(repo queueStore, opts Options) *Worker {
	opts.setDefaults()
	return &Worker{
		repo:     repo,
		opts:     opts,
		handlers: make(map[string]Handler),
		now:      time.Now,
	}
}

// Register binds a handler to a task name. Call before Run.
func (w *Worker) Register(name string, h Handler) {
	w.handlers[name] = h
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("task worker started", "concurrency", w.opts.Concurrency, "poll_interval", w.opts.PollInterval.String())
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			slog.Error("task poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("task worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs one round: fetches due tasks (new ones and those whose lease
// expired), then processes them with bounded concurrency. It returns the
// number of tasks this worker actually ran.
func (w *Worker) Poll(ctx context.Context) (int, error) {
	now := w.now()
	limit := int32(w.opts.Concurrency * 2)

	due, err := w.repo.ListDue(ctx, domain.TaskEnqueued, now, limit)
	if err != nil {
		return 0, err
	}
	stale, err := w.repo.ListDue(ctx, domain.TaskRunning, now, limit)
	if err != nil {
		return 0, err
	}
	due = append(due, stale...)

	results := make([]bool, len(due))
	var g errgroup.Group
	g.SetLimit(w.opts.Concurrency)
	for i := range due {
		t := due[i]
		g.Go(func() error {
			results[i] = w.process(ctx, &t)
			return nil
		})
	}
	_ = g.Wait()

	ran := 0
	for _, ok := range results {
		if ok {
			ran++
		}
	}
	return ran, nil
}

// process claims and runs one task, recording its outcome. It reports whether
// this worker ran the task.
func (w *Worker) process(ctx context.Context, seen *domain.Task) bool {
	t, err := w.repo.Claim(ctx, seen, w.now().Add(w.opts.Lease))
	if errors.Is(err, domain.ErrConflict) {
		return false
	}
	if err != nil {
		slog.Error("claim task", "task_id", seen.TaskID, "err", err)
		return false
	}
	log := slog.With("task_id", t.TaskID, "task", t.Name, "attempt", t.Attempts)

	h, ok := w.handlers[t.Name]
	if !ok {
		log.Error("no handler registered")
		if err := w.repo.Fail(ctx, t, "no handler registered for "+t.Name, w.now().Add(w.opts.Retention)); err != nil {
			log.Error("record task failure", "err", err)
		}
		return true
	}

	runCtx, cancel := context.WithTimeout(ctx, w.opts.Lease)
	result, runErr := safeRun(runCtx, h, t)
	cancel()

	// The outcome must land even when shutdown cancelled ctx mid-run, or the
	// task sits in running until its lease expires.
	ctx = context.WithoutCancel(ctx)

	switch {
	case runErr == nil:
		err = w.repo.Complete(ctx, t, result, w.now().Add(w.opts.Retention))
		log.Info("task succeeded", "result", result)
	case t.Attempts >= w.opts.MaxAttempts:
		err = w.repo.Fail(ctx, t, runErr.Error(), w.now().Add(w.opts.Retention))
		log.Error("task failed permanently", "err", runErr)
	default:
		retryAt := w.now().Add(time.Duration(t.Attempts) * w.opts.RetryBackoff)
		err = w.repo.Reschedule(ctx, t, runErr.Error(), retryAt)
		log.Warn("task failed, will retry", "err", runErr, "retry_at", retryAt)
	}
	if err != nil {
		log.Error("record task outcome", "err", err)
	}
	return true
}

func safeRun(ctx context.Context, h Handler, t *domain.Task) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, t)
}
