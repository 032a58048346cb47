package queue

import "errors"

var (
	// ErrTaskAlreadyRegistered is returned when a periodic task name is reused.
	ErrTaskAlreadyRegistered = errors.New("task already registered")

	// ErrSchedulerNotConfigured is returned when the scheduler has no tasks.
	ErrSchedulerNotConfigured = errors.New("scheduler has no registered tasks")

	// ErrNoScheduleSpecified is returned when a periodic task has no schedule.
	ErrNoScheduleSpecified = errors.New("no schedule specified for periodic task")

	// ErrNilTask is returned when a periodic task has no function.
	ErrNilTask = errors.New("task function cannot be nil")
)
