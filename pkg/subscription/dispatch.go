package subscription

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeabuu/pdfworld/pkg/logger"
)

// Dispatcher runs best-effort work after a unit of work has committed.
// Implementations must not let the work block the caller past its own
// deadline and must log failures themselves.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, fn func(ctx context.Context) error)
}

// inlineDispatcher runs work synchronously on a detached context bounded by timeout.
type inlineDispatcher struct {
	timeout time.Duration
	logger  *slog.Logger
}

func (d inlineDispatcher) Dispatch(ctx context.Context, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		d.logger.WarnContext(ctx, "side effect failed", slog.String("task", name), logger.Error(err))
	}
}
