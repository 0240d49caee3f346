// Package workers provides the generic worker pool the Session Registry
// uses for its process-scanning passes (cleanup_orphans, spec.md §4.7).
// It is caboose-desktop's workers.Pool trimmed to the subset the
// registry actually drives: bounded concurrency with a timeout per task.
// The registry's own "stop every live session in parallel" fan-out uses
// golang.org/x/sync/errgroup instead (see internal/core/registry), since
// that is a barrier over a known, small, bounded set rather than a
// queue of arbitrarily many scan tasks.
package workers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Task is a unit of work submitted to the pool.
type Task struct {
	ID      string
	Execute func(ctx context.Context) (interface{}, error)
	Result  chan TaskResult
}

// TaskResult carries one Task's outcome.
type TaskResult struct {
	ID       string
	Data     interface{}
	Error    error
	Duration time.Duration
}

// Pool runs Tasks across a bounded set of goroutines with a per-task
// timeout, the same shape as caboose-desktop's workers.Pool.
type Pool struct {
	workers int
	tasks   chan Task
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	closed  bool
	timeout time.Duration
}

// NewPool creates a pool with the given worker count (<=0 defaults to
// NumCPU) and per-task timeout (<=0 defaults to 30s).
func NewPool(workerCount int, timeout time.Duration) *Pool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers: workerCount,
		tasks:   make(chan Task, workerCount*4),
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
	}
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

func (p *Pool) run(task Task) {
	start := time.Now()
	taskCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	done := make(chan TaskResult, 1)
	go func() {
		data, err := task.Execute(taskCtx)
		done <- TaskResult{ID: task.ID, Data: data, Error: err}
	}()

	var result TaskResult
	select {
	case result = <-done:
	case <-taskCtx.Done():
		result = TaskResult{ID: task.ID, Error: fmt.Errorf("task %s timed out after %s: %w", task.ID, p.timeout, taskCtx.Err())}
	}
	result.Duration = time.Since(start)

	select {
	case task.Result <- result:
	case <-p.ctx.Done():
	}
}

// Submit enqueues task, returning an error if the pool is closed or
// shutting down.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("worker pool is closed")
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Batch runs each task concurrently and waits for every result, in the
// submitted order, the same helper caboose-desktop's Pool.Batch offers.
func (p *Pool) Batch(tasks []Task) []TaskResult {
	results := make([]TaskResult, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(index int, t Task) {
			defer wg.Done()
			if err := p.Submit(t); err != nil {
				results[index] = TaskResult{ID: t.ID, Error: err}
				return
			}
			results[index] = <-t.Result
		}(i, task)
	}
	wg.Wait()
	return results
}

// Close stops accepting tasks and waits for in-flight tasks to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.tasks)
	p.wg.Wait()
	p.cancel()
}
