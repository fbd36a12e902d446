package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/levenlabs/go-llog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLogger(t *testing.T) {
	ctx := context.Background()

	l1 := Ctx(ctx)
	require.NotNil(t, l1)
	assert.Equal(t, defaultLogger, l1, "Ctx should return defaultLogger")

	var buf bytes.Buffer
	customLogger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx = With(ctx, customLogger)
	assert.Equal(t, customLogger, Ctx(ctx))

	t.Run("WithAttrs", func(t *testing.T) {
		ctx := WithAttrs(ctx, slog.String("siteID", "mall"))
		Ctx(ctx).InfoContext(ctx, "loaded", slog.Int("days", 3))

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "mall", rec["siteID"])
		assert.Equal(t, "loaded", rec["msg"])
		assert.EqualValues(t, 3, rec["days"])
	})
}

func TestLevelFromLLog(t *testing.T) {
	for l, want := range map[llog.Level]slog.Level{
		llog.DebugLevel: slog.LevelDebug,
		llog.InfoLevel:  slog.LevelInfo,
		llog.WarnLevel:  slog.LevelWarn,
		llog.ErrorLevel: slog.LevelError,
	} {
		got, err := LevelFromLLog(l)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSetDefaultLogLevel(t *testing.T) {
	t.Cleanup(func() { SetDefaultLogLevel(slog.LevelInfo) })
	ctx := context.Background()

	SetDefaultLogLevel(slog.LevelWarn)
	assert.False(t, Ctx(ctx).Enabled(ctx, slog.LevelInfo))
	SetDefaultLogLevel(slog.LevelDebug)
	assert.True(t, Ctx(ctx).Enabled(ctx, slog.LevelDebug))
}
