package queue_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeabuu/pdfworld/pkg/queue"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newScheduler(clock *fakeClock) *queue.Scheduler {
	return queue.NewScheduler(
		queue.WithCheckInterval(5*time.Millisecond),
		queue.WithSchedulerLogger(discard()),
		queue.WithSchedulerClock(clock.Now),
	)
}

func TestScheduler_AddTask(t *testing.T) {
	t.Parallel()

	s := queue.NewScheduler(queue.WithSchedulerLogger(discard()))
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.AddTask("b", queue.Daily(), noop))
	require.NoError(t, s.AddTask("a", queue.Every(time.Hour), noop))
	assert.ErrorIs(t, s.AddTask("a", queue.Daily(), noop), queue.ErrTaskAlreadyRegistered)
	assert.ErrorIs(t, s.AddTask("c", nil, noop), queue.ErrNoScheduleSpecified)
	assert.ErrorIs(t, s.AddTask("c", queue.Daily(), nil), queue.ErrNilTask)
	assert.Equal(t, []string{"a", "b"}, s.ListTasks())

	s.RemoveTask("a")
	assert.Equal(t, []string{"b"}, s.ListTasks())

	_, err := s.NextRun("a")
	assert.Error(t, err)
}

func TestScheduler_StartWithoutTasks(t *testing.T) {
	t.Parallel()

	err := queue.NewScheduler().Start(context.Background())
	assert.ErrorIs(t, err, queue.ErrSchedulerNotConfigured)
}

func TestScheduler_RunsWhenDue(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC)}
	s := newScheduler(clock)

	var runs atomic.Int32
	require.NoError(t, s.AddTask("sweep", queue.DailyAt(2, 0), func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		next, err := s.NextRun("sweep")
		return err == nil && !next.IsZero()
	}, time.Second, 5*time.Millisecond)
	next, _ := s.NextRun("sweep")
	assert.Equal(t, time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC), next)

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, runs.Load(), "not due yet")

	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	next, _ = s.NextRun("sweep")
	assert.Equal(t, time.Date(2025, 3, 2, 2, 0, 0, 0, time.UTC), next)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_RunOnStartAndNoOverlap(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	s := newScheduler(clock)

	var (
		runs    atomic.Int32
		release = make(chan struct{})
	)
	require.NoError(t, s.AddTask("slow", queue.Every(time.Minute), func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return errors.New("failures are logged")
	}, queue.RunOnStart()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Due again while the first run is still going
	clock.Advance(2 * time.Minute)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	time.Sleep(30 * time.Millisecond)
	clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_TaskTimeoutAndPanic(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	s := newScheduler(clock)

	deadline := make(chan bool, 1)
	require.NoError(t, s.AddTask("bounded", queue.Every(time.Hour), func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		deadline <- ok
		return nil
	}, queue.RunOnStart(), queue.WithTaskTimeout(time.Second)))
	require.NoError(t, s.AddTask("panics", queue.Every(time.Hour), func(context.Context) error {
		panic("boom")
	}, queue.RunOnStart()))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx)() }()

	select {
	case ok := <-deadline:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}

	cancel()
	assert.NoError(t, <-errc, "cancellation is a clean exit")
}
