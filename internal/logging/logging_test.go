package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCloser struct{ closed bool }

func (f *failingCloser) Close() error {
	f.closed = true
	return errors.New("close failed")
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelDebug, false)

	LogError(logger, "fetch failed", errors.New("boom"), slog.String("feed", "ace"))

	line := decodeLine(t, &buf)
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "fetch failed", line["msg"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "ace", line["feed"])
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, false)

	LogOperation(logger, "segments_loaded", slog.Int("count", 3))

	line := decodeLine(t, &buf)
	assert.Equal(t, "segments_loaded", line["operation"])
	assert.EqualValues(t, 3, line["count"])
}

func TestLogHTTPRequestLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "INFO"},
		{404, "WARN"},
		{503, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := NewLogger(&buf, slog.LevelDebug, false)
		LogHTTPRequest(logger, "GET", "/api/v1/alerts", tt.status, 1.5)
		line := decodeLine(t, &buf)
		assert.Equal(t, tt.level, line["level"], "status %d", tt.status)
	}
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	logger := NewLogger(&bytes.Buffer{}, slog.LevelInfo, true)
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}

func TestSafeCloseWithLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, false)
	c := &failingCloser{}

	SafeCloseWithLogging(c, logger, "response_body")

	assert.True(t, c.closed)
	line := decodeLine(t, &buf)
	assert.Equal(t, "response_body", line["resource"])

	// nil closers are ignored
	SafeCloseWithLogging(nil, logger, "nothing")
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "req-1", RequestID(context.WithoutCancel(ctx)), "survives detaching from the caller")
}
