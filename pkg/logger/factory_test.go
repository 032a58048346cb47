package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeabuu/pdfworld/pkg/logger"
)

type ctxKey struct{}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestNew_ProductionJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := logger.New(
		logger.WithOutput(&buf),
		logger.WithEnvironment("production", "billing"),
	)
	l.Debug("hidden")
	assert.Zero(t, buf.Len())

	l.Info("webhook accepted", logger.EventType("charge.success"), logger.Reference("ref_1"))
	rec := decode(t, &buf)
	assert.Equal(t, "billing", rec["service"])
	assert.Equal(t, logger.EnvProduction, rec["env"])
	assert.Equal(t, "charge.success", rec["event_type"])
	assert.Equal(t, "ref_1", rec["reference"])
}

func TestNew_DevelopmentText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := logger.New(logger.WithOutput(&buf), logger.WithEnvironment("anything", "billing"))
	l.Debug("sweep started")
	assert.Contains(t, buf.String(), "sweep started")
	assert.Contains(t, buf.String(), "env=development")
}

func TestNew_ContextExtractors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := logger.New(
		logger.WithOutput(&buf),
		logger.WithContextValue("request_id", ctxKey{}),
		logger.WithContextExtractors(nil, func(ctx context.Context) (slog.Attr, bool) {
			return slog.String("component", "ingestor"), true
		}),
	)

	ctx := context.WithValue(context.Background(), ctxKey{}, "req-42")
	l.InfoContext(ctx, "processed")
	rec := decode(t, &buf)
	assert.Equal(t, "req-42", rec["request_id"])
	assert.Equal(t, "ingestor", rec["component"])

	buf.Reset()
	l.With("k", "v").InfoContext(context.Background(), "no request")
	rec = decode(t, &buf)
	assert.NotContains(t, rec, "request_id")
	assert.Equal(t, "v", rec["k"])
}

func TestWithFormat_PanicsOnUnknown(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { logger.New(logger.WithFormat("xml")) })
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("nonsense"))
}
