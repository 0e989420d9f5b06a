package task

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerPool(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(1, testLogger())
	noop := func(context.Context, Job, int) {}

	pool := NewWorkerPool(q, 3, noop, testLogger())
	assert.Equal(t, 3, pool.workerCount)

	pool = NewWorkerPool(q, 0, noop, testLogger())
	assert.Equal(t, 1, pool.workerCount, "non-positive count should fall back to 1")
}

func TestWorkerPool_ProcessesJobs(t *testing.T) {
	t.Parallel()

	const n = 20
	q := NewMemoryQueue(n, testLogger())

	var mu sync.Mutex
	seen := make(map[uuid.UUID]bool)
	handler := func(_ context.Context, job Job, _ int) {
		mu.Lock()
		seen[job.TaskID] = true
		mu.Unlock()
	}

	pool := NewWorkerPool(q, 4, handler, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for i := 0; i < n; i++ {
		require.NoError(t, q.Enqueue(ctx, newJob()))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == n
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, q.Close())
	pool.Wait()
}

func TestWorkerPool_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(2, testLogger())

	var handled atomic.Int32
	handler := func(_ context.Context, _ Job, _ int) {
		if handled.Add(1) == 1 {
			panic("boom")
		}
	}

	pool := NewWorkerPool(q, 1, handler, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.NoError(t, q.Enqueue(ctx, newJob()))
	require.NoError(t, q.Enqueue(ctx, newJob()))

	assert.Eventually(t, func() bool { return handled.Load() == 2 },
		2*time.Second, 10*time.Millisecond, "worker should survive a panicking handler")

	cancel()
	pool.Wait()
}

func TestWorkerPool_StopsOnCancel(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(1, testLogger())
	pool := NewWorkerPool(q, 2, func(context.Context, Job, int) {}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop after cancellation")
	}
}
