package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	results map[string]int
}

func (r *recorder) TaskFinished(name, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[string]int{}
	}
	r.results[name+":"+result]++
}

func (r *recorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[key]
}

func TestQueueRunsTasksAndSwallowsErrors(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(2, 10, time.Second, rec)

	var ran atomic.Int32
	require.NoError(t, q.Submit("ok", func(ctx context.Context) error { ran.Add(1); return nil }))
	require.NoError(t, q.Submit("fails", func(ctx context.Context) error { ran.Add(1); return errors.New("boom") }))
	require.NoError(t, q.Submit("panics", func(ctx context.Context) error { ran.Add(1); panic("bad") }))
	q.Wait()

	assert.Equal(t, int32(3), ran.Load())
	assert.Equal(t, 1, rec.count("ok:ok"))
	assert.Equal(t, 1, rec.count("fails:error"))
	assert.Equal(t, 1, rec.count("panics:error"))
	require.NoError(t, q.Shutdown(context.Background()))
}

func TestQueueDropsWhenFull(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(1, 1, time.Second, rec)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, q.Submit("blocker", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, q.Submit("buffered", func(ctx context.Context) error { return nil }))

	err := q.Submit("overflow", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, rec.count("overflow:dropped"))

	close(release)
	q.Wait()
	require.NoError(t, q.Shutdown(context.Background()))
}

func TestQueueTaskTimeout(t *testing.T) {
	q := NewQueue(1, 1, 20*time.Millisecond, nil)
	var deadlineHit atomic.Bool
	q.Go("slow", func(ctx context.Context) error {
		<-ctx.Done()
		deadlineHit.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	})
	q.Wait()
	assert.True(t, deadlineHit.Load())
}

func TestQueueRejectsAfterShutdown(t *testing.T) {
	q := NewQueue(1, 4, time.Second, nil)
	var ran atomic.Int32
	q.Go("before", func(ctx context.Context) error { ran.Add(1); return nil })
	require.NoError(t, q.Shutdown(context.Background()))

	assert.Equal(t, int32(1), ran.Load(), "queued work drains on shutdown")
	assert.ErrorIs(t, q.Submit("after", func(ctx context.Context) error { return nil }), ErrQueueClosed)
}
