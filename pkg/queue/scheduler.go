package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeabuu/pdfworld/pkg/logger"
)

// TaskFunc is the body of a periodic task.
type TaskFunc func(ctx context.Context) error

// Scheduler runs periodic tasks in the current process. A task never
// overlaps with itself: a tick that finds the previous run still going
// skips it.
type Scheduler struct {
	tasks    map[string]*scheduledTask
	mu       sync.RWMutex
	wg       sync.WaitGroup
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

type scheduledTask struct {
	name       string
	schedule   Schedule
	fn         TaskFunc
	timeout    time.Duration
	runOnStart bool

	next    time.Time // zero until the first check
	running atomic.Bool
}

// NewScheduler creates a new task scheduler
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	options := &schedulerOptions{
		checkInterval: time.Minute,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		tasks:    make(map[string]*scheduledTask),
		interval: options.checkInterval,
		logger:   options.logger,
		now:      options.now,
	}
}

// AddTask registers a periodic task
func (s *Scheduler) AddTask(name string, schedule Schedule, fn TaskFunc, opts ...TaskOption) error {
	if schedule == nil {
		return ErrNoScheduleSpecified
	}
	if fn == nil {
		return ErrNilTask
	}

	task := &scheduledTask{name: name, schedule: schedule, fn: fn}
	for _, opt := range opts {
		opt(task)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return ErrTaskAlreadyRegistered
	}
	s.tasks[name] = task

	s.logger.Info("registered periodic task",
		slog.String("task_name", name),
		slog.String("schedule", schedule.String()))

	return nil
}

// Start checks for due tasks until ctx is done, then waits for running
// tasks to return.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	taskCount := len(s.tasks)
	s.mu.RUnlock()

	if taskCount == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	s.checkTasks(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.checkTasks(ctx)
		}
	}
}

// Run starts the scheduler and returns a function suitable for errgroup.
// Cancellation is a clean exit.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func (s *Scheduler) checkTasks(ctx context.Context) {
	s.mu.RLock()
	tasks := make([]*scheduledTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	s.mu.RUnlock()

	now := s.now()
	for _, task := range tasks {
		s.runIfDue(ctx, task, now)
	}
}

func (s *Scheduler) runIfDue(ctx context.Context, task *scheduledTask, now time.Time) {
	s.mu.Lock()
	if task.next.IsZero() {
		task.next = task.schedule.Next(now)
		if !task.runOnStart {
			s.mu.Unlock()
			s.logger.Debug("periodic task scheduled",
				slog.String("task_name", task.name),
				slog.Time("next_run", task.next))
			return
		}
	} else if task.next.After(now) {
		s.mu.Unlock()
		return
	} else {
		task.next = task.schedule.Next(now)
	}
	next := task.next
	s.mu.Unlock()

	if !task.running.CompareAndSwap(false, true) {
		s.logger.Warn("periodic task still running, skipping",
			slog.String("task_name", task.name))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer task.running.Store(false)
		s.execute(ctx, task, next)
	}()
}

func (s *Scheduler) execute(ctx context.Context, task *scheduledTask, next time.Time) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("periodic task panicked",
				slog.String("task_name", task.name),
				slog.Any("panic", r))
		}
	}()

	if task.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.timeout)
		defer cancel()
	}

	if err := task.fn(ctx); err != nil {
		s.logger.Error("periodic task failed",
			slog.String("task_name", task.name),
			logger.Duration(time.Since(start)),
			logger.Error(err))
		return
	}
	s.logger.Info("periodic task completed",
		slog.String("task_name", task.name),
		logger.Duration(time.Since(start)),
		slog.Time("next_run", next))
}

// RemoveTask removes a periodic task from the scheduler
func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, name)
	s.logger.Info("removed periodic task", slog.String("task_name", name))
}

// ListTasks returns the registered task names in order.
func (s *Scheduler) ListTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NextRun reports when name is due next. It is zero before the first check.
func (s *Scheduler) NextRun(name string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[name]
	if !ok {
		return time.Time{}, fmt.Errorf("periodic task %q not registered", name)
	}
	return task.next, nil
}
