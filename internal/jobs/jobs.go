// Package jobs runs keyed background jobs with at most one job per key.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Func is the body of a job.
type Func func(ctx context.Context) error

type job struct {
	cancel context.CancelFunc
}

// Runner runs jobs on a bounded number of goroutines.
type Runner struct {
	mu      sync.Mutex
	jobs    map[string]*job
	failed  map[string]error
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	base    context.Context
	stop    context.CancelFunc
	logger  *slog.Logger
	onError func(id string, err error)
}

// New creates a Runner allowing workers concurrent jobs.
func New(workers int, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &Runner{
		jobs:   make(map[string]*job),
		failed: make(map[string]error),
		sem:    semaphore.NewWeighted(int64(workers)),
		base:   base,
		stop:   stop,
		logger: logger,
	}
}

// OnError registers a callback for failed jobs.
func (r *Runner) OnError(fn func(id string, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = fn
}

// Enqueue starts fn under id. It returns false, without starting anything,
// when a job with the same id is queued or running.
func (r *Runner) Enqueue(id string, fn Func) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; ok {
		return false
	}
	if r.base.Err() != nil {
		return false
	}

	ctx, cancel := context.WithCancel(r.base)
	j := &job{cancel: cancel}
	r.jobs[id] = j
	delete(r.failed, id)
	r.wg.Add(1)

	go r.run(ctx, id, j, fn)
	return true
}

func (r *Runner) run(ctx context.Context, id string, j *job, fn Func) {
	defer r.wg.Done()
	defer r.finish(id, j)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.logger.Info("job dequeued before start", "job", id)
		return
	}
	defer r.sem.Release(1)

	r.logger.Debug("job started", "job", id)
	err := fn(ctx)
	if err != nil {
		r.mu.Lock()
		r.failed[id] = err
		r.mu.Unlock()
	}
	switch {
	case err == nil:
		r.logger.Debug("job finished", "job", id)
	case errors.Is(err, context.Canceled):
		r.logger.Info("job cancelled", "job", id)
	default:
		r.logger.Error("job failed", "job", id, "err", err)
		r.mu.Lock()
		onError := r.onError
		r.mu.Unlock()
		if onError != nil {
			onError(id, err)
		}
	}
}

func (r *Runner) finish(id string, j *job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs[id] == j {
		delete(r.jobs, id)
	}
	j.cancel()
}

// IsQueued reports whether a job with id is queued or running.
func (r *Runner) IsQueued(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[id]
	return ok
}

// Dequeue cancels the job with id. It reports whether one existed.
func (r *Runner) Dequeue(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return false
	}
	delete(r.jobs, id)
	j.cancel()
	return true
}

// Err returns the error of the last finished job with id, or nil when it
// succeeded or never ran. Enqueueing id again clears it.
func (r *Runner) Err(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed[id]
}

// Queued returns the ids of queued and running jobs, sorted.
func (r *Runner) Queued() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Wait blocks until every started job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels all jobs, refuses new ones and waits for running jobs
// until ctx is done.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stop()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
