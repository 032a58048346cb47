package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/codeabuu/pdfworld/pkg/binder"
	"github.com/codeabuu/pdfworld/pkg/logger"
	"github.com/codeabuu/pdfworld/pkg/requestid"
)

// ErrorClassifier maps an application error to an HTTPError or a
// ValidationError. It returns false when the error is not recognised.
type ErrorClassifier func(err error) (error, bool)

// ErrorHandlerConfig configures the default error handler
type ErrorHandlerConfig struct {
	// Classify translates domain errors before the built-in rules apply.
	Classify ErrorClassifier
}

// isClientError reports whether the status is a 4xx.
func isClientError(statusCode int) bool {
	return statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError
}

// determineLogLevel maps HTTP status codes to appropriate log levels
func determineLogLevel(statusCode int) slog.Level {
	if isClientError(statusCode) {
		return slog.LevelWarn
	}
	return slog.LevelError
}

// classifyError normalises err into something errorToDetail can render.
func classifyError(cfg ErrorHandlerConfig, err error) error {
	if cfg.Classify != nil {
		if mapped, ok := cfg.Classify(err); ok && mapped != nil {
			return mapped
		}
	}

	switch {
	case errors.Is(err, binder.ErrMissingContentType), errors.Is(err, binder.ErrUnsupportedMediaType):
		return ErrUnsupportedMediaType.WithMessage(err.Error())
	case errors.Is(err, binder.ErrFailedToParseJSON), errors.Is(err, binder.ErrInvalidPath):
		return ErrBadRequest.WithMessage(err.Error())
	}
	return err
}

// NewErrorHandler creates the default JSON error handler.
// Client errors are logged at warn level, everything else at error level
// together with the request id.
func NewErrorHandler(log *slog.Logger, cfg ErrorHandlerConfig) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		r := ctx.Request()
		resp := &jsonResponse{status: http.StatusInternalServerError}
		resp.body.Error = errorToDetail(classifyError(cfg, err), &resp.status)

		log.LogAttrs(r.Context(), determineLogLevel(resp.status), "request error",
			logger.RequestID(requestid.FromContext(r.Context())),
			logger.Error(err),
			slog.Int("status_code", resp.status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)

		if renderErr := resp.Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.Error("failed to render error response",
				logger.RequestID(requestid.FromContext(r.Context())),
				logger.Error(renderErr),
			)
		}
	}
}

type failResponse struct{ err error }

func (f failResponse) Render(http.ResponseWriter, *http.Request) error { return f.err }

// Fail returns a Response that hands err to the ErrorHandler configured on
// Wrap instead of writing anything itself.
func Fail(err error) Response {
	return failResponse{err: err}
}
