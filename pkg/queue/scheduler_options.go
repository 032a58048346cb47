package queue

import (
	"log/slog"
	"time"
)

// SchedulerOption is a functional option for configuring a scheduler
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	checkInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// WithCheckInterval sets how often scheduler checks for due tasks
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.checkInterval = d
		}
	}
}

// WithSchedulerLogger sets the logger for the scheduler
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSchedulerClock replaces the time source, for tests.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(o *schedulerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// TaskOption is a functional option for configuring a scheduled task
type TaskOption func(*scheduledTask)

// RunOnStart makes the first check run the task instead of waiting for
// its first scheduled time.
func RunOnStart() TaskOption {
	return func(t *scheduledTask) {
		t.runOnStart = true
	}
}

// WithTaskTimeout bounds a single run of the task.
func WithTaskTimeout(d time.Duration) TaskOption {
	return func(t *scheduledTask) {
		if d > 0 {
			t.timeout = d
		}
	}
}
