package billing

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/codeabuu/pdfworld/handler"
	"github.com/codeabuu/pdfworld/pkg/logger"
)

// UserIDHeader carries the authenticated caller, set by the upstream auth layer.
const UserIDHeader = "X-User-ID"

var userIDKey = handler.NewContextKey("billing.user_id")

// RequireUser rejects requests without a valid X-User-ID header and stores
// the parsed id on the request context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(UserIDHeader)))
		if err != nil || id == uuid.Nil {
			resp := handler.JSONError(handler.ErrUnauthorized.WithMessage("missing or invalid " + UserIDHeader + " header"))
			_ = resp.Render(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
	})
}

// WithUserID returns a copy of ctx carrying the caller id.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID returns the caller id stored by RequireUser.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	return handler.ContextValueOK[uuid.UUID](ctx, userIDKey)
}

// LoggerExtractor adds user_id to log records emitted within an authenticated request.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		id, ok := UserID(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return logger.UserID(id), true
	}
}

func callerID(ctx context.Context) uuid.UUID {
	id, _ := UserID(ctx)
	return id
}
