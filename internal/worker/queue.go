// Package worker runs fire-and-forget side effects off the request path.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
)

// ErrQueueFull is returned by Submit when the buffer is saturated.
var ErrQueueFull = errors.New("task queue full")

// ErrQueueClosed is returned by Submit after Shutdown.
var ErrQueueClosed = errors.New("task queue closed")

// Task is one side effect. Its error is logged and discarded.
type Task func(ctx context.Context) error

// Observer receives task outcomes (metrics).
type Observer interface {
	TaskFinished(name string, result string)
}

type job struct {
	name string
	fn   Task
}

// Queue is a bounded channel drained by a fixed pool of workers.
type Queue struct {
	jobs     chan job
	timeout  time.Duration
	observer Observer

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
	workers  sync.WaitGroup
}

func NewQueue(workers, size int, timeout time.Duration, observer Observer) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	q := &Queue{
		jobs:     make(chan job, size),
		timeout:  timeout,
		observer: observer,
	}
	for i := 0; i < workers; i++ {
		q.workers.Add(1)
		go q.run()
	}
	return q
}

// Submit enqueues without blocking. A full or closed queue drops the task.
func (q *Queue) Submit(name string, fn Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.observe(name, "dropped")
		log.WithField("task", name).Warn("task dropped: queue closed")
		return ErrQueueClosed
	}
	q.inflight.Add(1)
	select {
	case q.jobs <- job{name: name, fn: fn}:
		return nil
	default:
		q.inflight.Done()
		q.observe(name, "dropped")
		log.WithField("task", name).Error("task dropped: queue full")
		return ErrQueueFull
	}
}

// Go is Submit for call sites that have nothing to do with the error.
func (q *Queue) Go(name string, fn Task) {
	_ = q.Submit(name, fn)
}

// Wait blocks until every accepted task has finished.
func (q *Queue) Wait() {
	q.inflight.Wait()
}

// Shutdown stops intake and waits for queued tasks or ctx expiry.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer q.workers.Done()
	for j := range q.jobs {
		q.execute(j)
	}
}

func (q *Queue) execute(j job) {
	defer q.inflight.Done()
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	start := time.Now()
	err := q.safeCall(ctx, j)
	entry := log.WithFields(log.Fields{"task": j.name, "duration": time.Since(start).String()})
	if err != nil {
		entry.WithError(err).Error("background task failed")
		q.observe(j.name, "error")
		return
	}
	entry.Debug("background task done")
	q.observe(j.name, "ok")
}

func (q *Queue) safeCall(ctx context.Context, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.fn(ctx)
}

func (q *Queue) observe(name, result string) {
	if q.observer != nil {
		q.observer.TaskFinished(name, result)
	}
}
