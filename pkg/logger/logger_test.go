package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"oldmarket/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDIsAttached(t *testing.T) {
	var buf bytes.Buffer
	prev := globalLogger
	globalLogger = New(&buf, "info", "json")
	t.Cleanup(func() { globalLogger = prev })

	ctx := WithRequestID(context.Background(), "req-1")
	Info(ctx, "order placed", "order_id", 7)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "order placed", line["msg"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.EqualValues(t, 7, line["order_id"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "text")

	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("whatever"))
}

func TestInitFileOutput(t *testing.T) {
	prev := globalLogger
	t.Cleanup(func() {
		globalLogger = prev
		if prev != nil {
			slog.SetDefault(prev)
		}
	})

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	require.NoError(t, Init(config.LogConfig{Output: "file", FilePath: path, MaxSize: 1}))
	Get().Info("written to file")
	assert.FileExists(t, path)
}
