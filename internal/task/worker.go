// Package task executes dispatched tasks asynchronously with retry.
//
// One dispatch loop pulls task IDs from a FIFO queue and hands each to its
// own goroutine, bounded by a concurrency limit, so a blocking handler never
// stalls intake. A task is claimed through a store-level status transition
// before it runs; the claim fails for anyone but the first worker, so no
// task is ever executed twice concurrently. Every task ends in succeeded or
// failed with its last error recorded; work is never silently dropped.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/reflex/internal/bus"
	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/alfredjeanlab/reflex/internal/store"
)

// Config holds worker configuration.
type Config struct {
	// Concurrency is the maximum number of tasks executing at once.
	Concurrency int
	// QueueSize bounds the intake queue. Default 1024.
	QueueSize int
	// HandlerTimeout bounds a single handler attempt. A timeout is a
	// transient failure and consumes one attempt.
	HandlerTimeout time.Duration
	// DrainTimeout is how long Stop waits for in-flight tasks before
	// interrupting them. Interrupted tasks are re-queued as retrying.
	DrainTimeout time.Duration
	// RetryDelay computes the wait before attempt+1. Defaults to Backoff.
	RetryDelay func(attempt int) time.Duration
}

// Worker consumes and executes tasks.
type Worker struct {
	store    store.Store
	pub      bus.Publisher
	logger   *slog.Logger
	cfg      Config
	handlers map[model.ActionType]Handler

	queue  chan string
	quit   chan struct{} // closed by Stop; stops intake
	ctx    context.Context
	cancel context.CancelFunc // cancels in-flight handlers

	loopWG   sync.WaitGroup
	taskWG   sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Worker. Handlers must be registered before Start.
func New(st store.Store, pub bus.Publisher, logger *slog.Logger, cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1024
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = time.Minute
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	if cfg.RetryDelay == nil {
		cfg.RetryDelay = Backoff
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		store:    st,
		pub:      pub,
		logger:   logger,
		cfg:      cfg,
		handlers: make(map[model.ActionType]Handler),
		queue:    make(chan string, cfg.QueueSize),
		quit:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register binds a handler to a task type. Tasks of an unregistered type
// fail permanently.
func (w *Worker) Register(t model.ActionType, h Handler) {
	w.handlers[t] = h
}

// Start recovers interrupted work and begins consuming the queue.
// Tasks left running by a previous process are flipped back to retrying, and
// all pending/retrying tasks are re-enqueued, so a crash never loses work.
func (w *Worker) Start(ctx context.Context) error {
	requeued, err := w.store.RequeueRunningTasks(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("requeue running tasks: %w", err)
	}
	if len(requeued) > 0 {
		w.logger.Info("requeued interrupted tasks", "count", len(requeued))
	}

	for _, status := range []model.TaskStatus{model.TaskPending, model.TaskRetrying} {
		tasks, err := w.store.ListTasks(ctx, status, 0)
		if err != nil {
			return fmt.Errorf("list %s tasks: %w", status, err)
		}
		for _, t := range tasks {
			if err := w.Enqueue(t.ID); err != nil {
				return err
			}
		}
	}

	w.loopWG.Add(1)
	go func() {
		defer w.loopWG.Done()
		w.loop()
	}()
	return nil
}

// Enqueue adds a task ID to the FIFO intake queue. Blocks when the queue is
// full; returns an error once the worker is stopped.
func (w *Worker) Enqueue(id string) error {
	select {
	case w.queue <- id:
		return nil
	case <-w.quit:
		return fmt.Errorf("worker stopped, cannot enqueue task %s", id)
	}
}

// Stop halts intake, waits up to DrainTimeout for in-flight tasks, then
// interrupts the stragglers. Interrupted handlers see their context
// cancelled and their tasks are recorded as retrying, to be resumed by the
// next Start.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
		w.loopWG.Wait()

		done := make(chan struct{})
		go func() {
			w.taskWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(w.cfg.DrainTimeout):
			w.logger.Warn("drain window elapsed, interrupting in-flight tasks")
			w.cancel()
			<-done
		}
		w.cancel()
	})
}

func (w *Worker) loop() {
	sem := make(chan struct{}, w.cfg.Concurrency)
	for {
		select {
		case <-w.quit:
			return
		case id := <-w.queue:
			select {
			case sem <- struct{}{}:
			case <-w.quit:
				return
			}
			w.taskWG.Add(1)
			go func(id string) {
				defer w.taskWG.Done()
				defer func() { <-sem }()
				w.run(id)
			}(id)
		}
	}
}

func (w *Worker) run(id string) {
	now := time.Now().UTC()
	claimed, err := w.store.ClaimTask(w.ctx, id, now)
	if err != nil {
		w.logger.Error("failed to claim task", "task_id", id, "error", err)
		return
	}
	if !claimed {
		// Another worker holds the lease, or the task already finished.
		w.logger.Debug("task claim lost", "task_id", id)
		return
	}

	t, err := w.store.GetTask(w.ctx, id)
	if err != nil {
		w.logger.Error("failed to load claimed task", "task_id", id, "error", err)
		return
	}

	attempt := t.AttemptCount + 1
	handler, ok := w.handlers[t.Type]
	if !ok {
		w.fail(t, attempt, fmt.Errorf("no handler registered for task type %q", t.Type))
		return
	}

	hctx, cancel := context.WithTimeout(w.ctx, w.cfg.HandlerTimeout)
	err = handler.Execute(hctx, w.store, t)
	cancel()

	switch {
	case err == nil:
		w.succeed(t, attempt)
	case IsPermanent(err):
		w.fail(t, attempt, err)
	case attempt >= t.MaxAttempts:
		w.fail(t, attempt, err)
	default:
		w.retry(t, attempt, err)
	}
}

// Status writes use a fresh context: they must land even while the worker's
// own context is being torn down during drain.
func (w *Worker) persistCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func (w *Worker) succeed(t *model.Task, attempt int) {
	ctx, cancel := w.persistCtx()
	defer cancel()

	if err := w.store.MarkTaskSucceeded(ctx, t.ID, attempt, time.Now().UTC()); err != nil {
		w.logger.Error("failed to mark task succeeded", "task_id", t.ID, "error", err)
		return
	}
	w.logger.Info("task succeeded", "task_id", t.ID, "type", t.Type, "attempt", attempt)
	w.publishFinished(ctx, bus.TopicTaskSucceeded, t, model.TaskSucceeded, attempt, "")
}

func (w *Worker) retry(t *model.Task, attempt int, cause error) {
	ctx, cancel := w.persistCtx()
	defer cancel()

	if err := w.store.MarkTaskRetrying(ctx, t.ID, attempt, cause.Error(), time.Now().UTC()); err != nil {
		w.logger.Error("failed to mark task retrying", "task_id", t.ID, "error", err)
		return
	}
	delay := w.cfg.RetryDelay(attempt)
	w.logger.Warn("task attempt failed, scheduling retry",
		"task_id", t.ID, "attempt", attempt, "max_attempts", t.MaxAttempts,
		"delay", delay, "error", cause)
	w.publishFinished(ctx, bus.TopicTaskRetrying, t, model.TaskRetrying, attempt, cause.Error())

	time.AfterFunc(delay, func() {
		// Best-effort: if the worker stopped meanwhile, the retrying row is
		// picked up by the next Start.
		select {
		case w.queue <- t.ID:
		case <-w.quit:
		}
	})
}

func (w *Worker) fail(t *model.Task, attempt int, cause error) {
	ctx, cancel := w.persistCtx()
	defer cancel()

	if err := w.store.MarkTaskFailed(ctx, t.ID, attempt, cause.Error(), time.Now().UTC()); err != nil {
		w.logger.Error("failed to mark task failed", "task_id", t.ID, "error", err)
		return
	}
	w.logger.Error("task failed",
		"task_id", t.ID, "type", t.Type, "attempt", attempt,
		"permanent", IsPermanent(cause), "error", cause)
	w.publishFinished(ctx, bus.TopicTaskFailed, t, model.TaskFailed, attempt, cause.Error())
}

func (w *Worker) publishFinished(ctx context.Context, topic string, t *model.Task, status model.TaskStatus, attempt int, lastError string) {
	err := w.pub.Publish(ctx, topic, bus.TaskFinished{
		TaskID:       t.ID,
		Type:         t.Type,
		Status:       status,
		AttemptCount: attempt,
		LastError:    lastError,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn("failed to publish task status", "task_id", t.ID, "topic", topic, "error", err)
	}
}
