package postworker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_DispatchNonBlocking(t *testing.T) {
	pool := NewPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	start := time.Now()
	ok := pool.TryDispatch(PublishJob{
		UserID: "user-1",
		PostID: "post-1",
		Handler: func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	})
	elapsed := time.Since(start)

	require.True(t, ok)
	assert.Less(t, elapsed, 10*time.Millisecond, "TryDispatch must not block the caller")
}

func TestPool_SameUserSequentialProcessing(t *testing.T) {
	pool := NewPool(4, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	var mu sync.Mutex
	var results []int

	for i := 1; i <= 5; i++ {
		val := i
		require.True(t, pool.TryDispatch(PublishJob{
			UserID: "user-1",
			PostID: "post",
			Handler: func(ctx context.Context) error {
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				results = append(results, val)
				mu.Unlock()
				return nil
			},
		}))
	}

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3, 4, 5}, results, "same-user jobs must process in dispatch order")
}

func TestPool_FullQueueDefersJob(t *testing.T) {
	pool := NewPool(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	block := make(chan struct{})
	slow := func(ctx context.Context) error {
		<-block
		return nil
	}

	// First job occupies the worker, second fills the queue.
	require.True(t, pool.TryDispatch(PublishJob{UserID: "u", PostID: "a", Handler: slow}))
	time.Sleep(20 * time.Millisecond)
	require.True(t, pool.TryDispatch(PublishJob{UserID: "u", PostID: "b", Handler: slow}))

	ok := pool.TryDispatch(PublishJob{UserID: "u", PostID: "c", Handler: slow})
	assert.False(t, ok, "a full pinned queue must defer, not block")

	close(block)
	time.Sleep(50 * time.Millisecond)

	stats := pool.GetStats()
	assert.Equal(t, int64(1), stats.TotalDropped)
	assert.Equal(t, int64(2), stats.TotalProcessed)
}

func TestPool_StopRejectsNewJobs(t *testing.T) {
	pool := NewPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	pool.Stop()

	ok := pool.TryDispatch(PublishJob{
		UserID:  "user-1",
		PostID:  "post-1",
		Handler: func(ctx context.Context) error { return nil },
	})
	assert.False(t, ok)
}
