package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/diegors10/projetoAPIs/cmd/server/internal/apperr"
	"github.com/diegors10/projetoAPIs/pkg/logger"
	"github.com/diegors10/projetoAPIs/pkg/metrics"
)

// Job is the background work of one task. It returns the produced files.
// Job must honour ctx: it is cancelled on client cancel, deadline and shutdown.
type Job func(ctx context.Context) ([]string, error)

// Runner executes jobs detached from the request that submitted them and
// records their outcome in a Store. At most maxConcurrent jobs run at once;
// the rest wait for a slot (their deadline keeps running while they wait).
type Runner struct {
	store   *Store
	sem     *semaphore.Weighted
	timeout time.Duration

	baseCtx context.Context
	stopAll context.CancelFunc
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
	log     *slog.Logger
}

// NewRunner creates a Runner; timeout <= 0 disables the per-task deadline.
func NewRunner(store *Store, maxConcurrent int, timeout time.Duration) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:   store,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: timeout,
		baseCtx: ctx,
		stopAll: cancel,
		cancels: make(map[string]context.CancelFunc),
		log:     logger.OrDiscard().With("component", "task-runner"),
	}
}

// Store returns the registry the runner writes to.
func (r *Runner) Store() *Store {
	return r.store
}

// Cleanup removes files a job produced when its result cannot be recorded,
// e.g. the task was cancelled while the job was finishing.
type Cleanup func(files []string)

// Submit registers id as processing and starts job in the background.
func (r *Runner) Submit(id string, job Job) (Record, error) {
	return r.SubmitWithCleanup(id, job, nil)
}

// SubmitWithCleanup is Submit with a cleanup for results that are discarded.
func (r *Runner) SubmitWithCleanup(id string, job Job, cleanup Cleanup) (Record, error) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		dl     time.Time
	)
	if r.timeout > 0 {
		dl = time.Now().Add(r.timeout)
		ctx, cancel = context.WithDeadline(r.baseCtx, dl)
	} else {
		ctx, cancel = context.WithCancel(r.baseCtx)
	}

	rec, err := r.store.Create(id, dl)
	if err != nil {
		cancel()
		return Record{}, err
	}

	r.mu.Lock()
	r.cancels[id] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(ctx, id, job, cleanup)

	return rec, nil
}

func (r *Runner) run(ctx context.Context, id string, job Job, cleanup Cleanup) {
	defer r.wg.Done()
	defer r.forget(id)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.finish(ctx, id, nil, 0, fmt.Errorf("waiting for a free worker: %w", err), cleanup)
		return
	}
	defer r.sem.Release(1)

	metrics.TaskStarted()
	defer metrics.TaskFinished()

	r.log.Info("task started", "task_id", id)
	start := time.Now()
	files, err := r.safeRun(ctx, id, job)
	r.finish(ctx, id, files, time.Since(start), err, cleanup)
}

// safeRun turns a panic inside job into an error.
func (r *Runner) safeRun(ctx context.Context, id string, job Job) (files []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("task panicked", "task_id", id, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error: %v", p)
		}
	}()
	return job(ctx)
}

// finish records the job outcome. A job that returned its files is completed
// even if the deadline fired meanwhile; files that cannot be recorded because
// the task already reached a terminal state are handed to cleanup.
func (r *Runner) finish(ctx context.Context, id string, files []string, elapsed time.Duration, err error, cleanup Cleanup) {
	var storeErr error
	switch {
	case err == nil:
		storeErr = r.store.Complete(id, files, elapsed)
		if storeErr == nil {
			metrics.RecordTaskDuration(elapsed.Seconds())
			logger.LogTaskEvent(r.log, "task", "success", id, elapsed.Milliseconds(), "")
		}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		timeoutErr := apperr.New(apperr.TASK_TIMEOUT, fmt.Sprintf("task exceeded its deadline of %s", r.timeout), nil)
		storeErr = r.store.Fail(id, timeoutErr)
		logger.LogTaskEvent(r.log, "task", "error", id, elapsed.Milliseconds(), string(apperr.TASK_TIMEOUT))
	case errors.Is(ctx.Err(), context.Canceled):
		storeErr = r.store.Cancel(id, "task cancelled")
		logger.LogTaskEvent(r.log, "task", "cancel", id, elapsed.Milliseconds(), "")
	default:
		storeErr = r.store.Fail(id, err)
		r.log.Error("task failed", "task_id", id, "error", err)
	}

	if storeErr == nil {
		return
	}
	// A client cancel records the terminal state before the job returns.
	if !errors.Is(storeErr, ErrTerminalState) {
		r.log.Warn("failed to record task outcome", "task_id", id, "error", storeErr)
	}
	if len(files) > 0 && cleanup != nil {
		r.log.Info("discarding files of finished task", "task_id", id, "files", len(files))
		cleanup(files)
	}
}

func (r *Runner) forget(id string) {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	delete(r.cancels, id)
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// Cancel records id as cancelled and stops its job.
// It returns ErrTaskNotFound or ErrTerminalState when there is nothing to cancel.
func (r *Runner) Cancel(id string) error {
	if err := r.store.Cancel(id, "cancelled by client"); err != nil {
		return err
	}

	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	r.log.Info("task cancelled", "task_id", id)
	return nil
}

// Wait blocks until every submitted job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels all running jobs and waits for them until ctx is done.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.stopAll()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for background tasks: %w", ctx.Err())
	}
}
