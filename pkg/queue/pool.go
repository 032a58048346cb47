package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeabuu/pdfworld/pkg/logger"
)

// Pool runs fire-and-forget work with bounded concurrency.
type Pool struct {
	sem     chan struct{}
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *slog.Logger

	stopMu   sync.Mutex // guards stopping and wg.Add
	stopping bool
}

// NewPool creates a pool from cfg. A nil logger uses slog.Default.
func NewPool(cfg Config, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	size := max(cfg.MaxConcurrentTasks, 1)
	timeout := cfg.TaskTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pool{
		sem:     make(chan struct{}, size),
		timeout: timeout,
		logger:  log,
	}
}

// Dispatch runs fn in the background. It runs fn on the caller's goroutine
// when every slot is busy or the pool is shutting down.
func (p *Pool) Dispatch(ctx context.Context, name string, fn func(ctx context.Context) error) {
	p.stopMu.Lock()
	if p.stopping {
		p.stopMu.Unlock()
		p.run(ctx, name, fn)
		return
	}

	select {
	case p.sem <- struct{}{}:
		p.wg.Add(1)
		p.stopMu.Unlock()
		go func() {
			defer p.wg.Done()
			defer func() { <-p.sem }()
			p.run(ctx, name, fn)
		}()
	default:
		p.stopMu.Unlock()
		p.logger.DebugContext(ctx, "all pool slots busy, running inline", slog.String("task", name))
		p.run(ctx, name, fn)
	}
}

func (p *Pool) run(parent context.Context, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.timeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in task: %v", r)
			}
		}()
		return fn(ctx)
	}()
	if err != nil {
		p.logger.WarnContext(ctx, "background task failed",
			slog.String("task", name),
			logger.Duration(time.Since(start)),
			logger.Error(err))
		return
	}
	p.logger.DebugContext(ctx, "background task completed",
		slog.String("task", name),
		logger.Duration(time.Since(start)))
}

// Shutdown stops accepting background work and waits for running tasks
// until ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopMu.Lock()
	p.stopping = true
	p.stopMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
