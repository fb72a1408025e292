package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingObserver struct {
	mu     sync.Mutex
	errors []error
}

func (o *recordingObserver) TaskFinished(pool string, duration time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, err)
}

func TestPool_RunsTasks(t *testing.T) {
	observer := &recordingObserver{}
	p := New(Config{Name: "test", MaxWorkers: 2, QueueSize: 10, Observer: observer, Logger: zap.NewNop()})

	var ran int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(Task{Name: "inc", Fn: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}}))
	}
	require.NoError(t, p.Submit(Task{Name: "fail", Fn: func(ctx context.Context) error {
		return errors.New("history unavailable")
	}}))
	require.NoError(t, p.Submit(Task{Name: "panic", Fn: func(ctx context.Context) error {
		panic("boom")
	}}))

	require.NoError(t, p.Stop(context.Background()))

	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
	stats := p.Stats()
	assert.Equal(t, uint64(7), stats.TotalTasks)
	assert.Equal(t, uint64(5), stats.CompletedTasks)
	assert.Equal(t, uint64(2), stats.FailedTasks)
	assert.Len(t, observer.errors, 7)
}

func TestPool_StopDrainsQueue(t *testing.T) {
	p := New(Config{Name: "drain", MaxWorkers: 1, QueueSize: 10})

	release := make(chan struct{})
	var ran int32
	require.NoError(t, p.Submit(Task{Name: "block", Fn: func(ctx context.Context) error {
		<-release
		return nil
	}}))
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(Task{Name: "queued", Fn: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}}))
	}

	close(release)
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&ran))

	assert.ErrorIs(t, p.Submit(Task{Name: "late", Fn: func(ctx context.Context) error { return nil }}), ErrStopped)
	assert.Equal(t, uint64(1), p.Stats().RejectedTasks)
}

func TestPool_QueueFull(t *testing.T) {
	p := New(Config{Name: "full", MaxWorkers: 1, QueueSize: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.Submit(Task{Name: "block", Fn: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	noop := Task{Name: "noop", Fn: func(ctx context.Context) error { return nil }}
	require.NoError(t, p.Submit(noop))
	assert.ErrorIs(t, p.Submit(noop), ErrQueueFull)

	close(release)
	require.NoError(t, p.Stop(context.Background()))
}

func TestPool_StopTimeoutCancelsTasks(t *testing.T) {
	p := New(Config{Name: "slow", MaxWorkers: 1, QueueSize: 1})

	started := make(chan struct{})
	require.NoError(t, p.Submit(Task{Name: "wait", Fn: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_TaskTimeout(t *testing.T) {
	p := New(Config{Name: "timeout", MaxWorkers: 1, QueueSize: 1, TaskTimeout: 10 * time.Millisecond})

	result := make(chan error, 1)
	require.NoError(t, p.Submit(Task{Name: "wait", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	}}))

	assert.ErrorIs(t, <-result, context.DeadlineExceeded)
	require.NoError(t, p.Stop(context.Background()))
}
