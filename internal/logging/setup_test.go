package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupHandlerText(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		logAt    slog.Level
		want     bool
	}{
		{name: "debug handler passes debug", logLevel: "debug", logAt: slog.LevelDebug, want: true},
		{name: "info handler drops debug", logLevel: "info", logAt: slog.LevelDebug, want: false},
		{name: "warn handler drops info", logLevel: "warn", logAt: slog.LevelInfo, want: false},
		{name: "error handler passes error", logLevel: "error", logAt: slog.LevelError, want: true},
		{name: "unknown level defaults to info", logLevel: "bogus", logAt: slog.LevelInfo, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := SetupHandlerText(tt.logLevel, &buf)
			require.NotNil(t, handler)
			assert.Equal(t, tt.want, handler.Enabled(context.Background(), tt.logAt))
		})
	}
}

func TestSetupHandlerJSON(t *testing.T) {
	var buf bytes.Buffer
	handler := SetupHandlerJSON("debug", &buf)
	require.NotNil(t, handler)

	logger := slog.New(handler)
	logger.Debug("json output", "key", "value")

	out := buf.String()
	assert.True(t, strings.Contains(out, `"msg":"json output"`), "expected JSON output, got: %s", out)
	assert.True(t, strings.Contains(out, `"key":"value"`))
}

func TestSetupLogger(t *testing.T) {
	SetupLogger("debug")
	require.NotNil(t, slog.Default())
}
