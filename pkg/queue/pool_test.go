package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeabuu/pdfworld/pkg/queue"
)

func TestPool_RunsInBackground(t *testing.T) {
	t.Parallel()

	p := queue.NewPool(queue.Config{MaxConcurrentTasks: 2, TaskTimeout: time.Second}, discard())
	release := make(chan struct{})
	var done atomic.Int32

	for range 2 {
		p.Dispatch(context.Background(), "wait", func(context.Context) error {
			<-release
			done.Add(1)
			return nil
		})
	}
	assert.Zero(t, done.Load(), "dispatch does not wait for the work")

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(2), done.Load())
}

func TestPool_InlineWhenFull(t *testing.T) {
	t.Parallel()

	p := queue.NewPool(queue.Config{MaxConcurrentTasks: 1}, discard())
	release := make(chan struct{})
	p.Dispatch(context.Background(), "busy", func(context.Context) error {
		<-release
		return nil
	})

	var ran bool
	p.Dispatch(context.Background(), "inline", func(context.Context) error {
		ran = true
		return nil
	})
	assert.True(t, ran, "the caller runs the work when no slot is free")

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_DetachesFromCaller(t *testing.T) {
	t.Parallel()

	p := queue.NewPool(queue.Config{MaxConcurrentTasks: 1, TaskTimeout: time.Second}, discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errc := make(chan error, 1)
	p.Dispatch(ctx, "refund", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		if !hasDeadline {
			return errors.New("missing deadline")
		}
		errc <- ctx.Err()
		return nil
	})
	require.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, <-errc)
}

func TestPool_RecoversPanics(t *testing.T) {
	t.Parallel()

	p := queue.NewPool(queue.Config{MaxConcurrentTasks: 1}, discard())
	assert.NotPanics(t, func() {
		p.Dispatch(context.Background(), "panics", func(context.Context) error { panic("boom") })
		require.NoError(t, p.Shutdown(context.Background()))
	})
}

func TestPool_ShutdownTimeout(t *testing.T) {
	t.Parallel()

	p := queue.NewPool(queue.Config{MaxConcurrentTasks: 1}, discard())
	release := make(chan struct{})
	defer close(release)
	p.Dispatch(context.Background(), "stuck", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	// Work dispatched after shutdown runs inline
	var ran bool
	p.Dispatch(context.Background(), "late", func(context.Context) error {
		ran = true
		return nil
	})
	assert.True(t, ran)
}
