package queue

import "time"

// Config holds the configuration for background work.
type Config struct {
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"8"`
	TaskTimeout        time.Duration `env:"QUEUE_TASK_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout    time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	CheckInterval      time.Duration `env:"QUEUE_CHECK_INTERVAL" envDefault:"1m"`
}
