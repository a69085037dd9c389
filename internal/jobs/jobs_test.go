package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/gcsync/internal/logging"
)

func TestEnqueue_Dedupes(t *testing.T) {
	r := New(2, logging.Discard())
	release := make(chan struct{})
	var runs atomic.Int32

	fn := func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}

	assert.True(t, r.Enqueue("a", fn))
	assert.False(t, r.Enqueue("a", fn))
	assert.True(t, r.IsQueued("a"))
	assert.Equal(t, []string{"a"}, r.Queued())

	close(release)
	r.Wait()

	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, r.IsQueued("a"))
	assert.True(t, r.Enqueue("a", fn), "a finished job frees its id")
	r.Wait()
}

func TestWorkersBound(t *testing.T) {
	r := New(1, logging.Discard())
	var active, peak atomic.Int32
	var mu sync.Mutex

	fn := func(ctx context.Context) error {
		n := active.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	}
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, r.Enqueue(id, fn))
	}
	r.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestDequeue_Cancels(t *testing.T) {
	r := New(1, logging.Discard())
	started := make(chan struct{})
	var cancelled atomic.Bool

	r.Enqueue("a", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})
	<-started

	assert.True(t, r.Dequeue("a"))
	assert.False(t, r.Dequeue("a"))
	r.Wait()
	assert.True(t, cancelled.Load())
}

func TestOnError(t *testing.T) {
	r := New(1, logging.Discard())
	var got string
	r.OnError(func(id string, err error) { got = id + ": " + err.Error() })

	r.Enqueue("a", func(ctx context.Context) error { return errors.New("boom") })
	r.Wait()
	assert.Equal(t, "a: boom", got)
}

func TestErr(t *testing.T) {
	r := New(2, logging.Discard())
	boom := errors.New("boom")

	assert.NoError(t, r.Err("a"), "never ran")
	require.True(t, r.Enqueue("a", func(context.Context) error { return boom }))
	require.True(t, r.Enqueue("b", func(context.Context) error { return nil }))
	r.Wait()
	assert.ErrorIs(t, r.Err("a"), boom)
	assert.NoError(t, r.Err("b"))

	release := make(chan struct{})
	require.True(t, r.Enqueue("a", func(context.Context) error {
		<-release
		return nil
	}))
	assert.NoError(t, r.Err("a"), "cleared on enqueue")
	close(release)
	r.Wait()
	assert.NoError(t, r.Err("a"))
}

func TestShutdown(t *testing.T) {
	r := New(1, logging.Discard())
	r.Enqueue("a", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
	assert.False(t, r.Enqueue("b", func(ctx context.Context) error { return nil }))
}
