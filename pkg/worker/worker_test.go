package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ProcessesJobs(t *testing.T) {
	var sum atomic.Int64
	done := make(chan struct{}, 10)
	p := NewPool(10, 3, func(_ int, n int) {
		sum.Add(int64(n))
		done <- struct{}{}
	})
	p.Start()
	defer p.Stop()

	for i := 1; i <= 10; i++ {
		require.NoError(t, p.Enqueue(context.Background(), i))
	}
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.Equal(t, int64(55), sum.Load())
	assert.Equal(t, 3, p.Workers())
}

func TestPool_EnqueueRespectsContextAndStop(t *testing.T) {
	block := make(chan struct{})
	p := NewPool(0, 1, func(int, string) { <-block })
	p.Start()

	require.NoError(t, p.Enqueue(context.Background(), "busy"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Enqueue(ctx, "waiting"), context.DeadlineExceeded)

	close(block)
	p.Stop()
	p.Stop()
	assert.ErrorIs(t, p.Enqueue(context.Background(), "late"), ErrStopped)
}
