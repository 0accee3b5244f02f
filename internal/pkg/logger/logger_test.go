package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"debug text", "debug", "text"},
		{"info json", "info", "json"},
		{"warn text", "warn", "text"},
		{"error json", "error", "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level, tt.format)
			if logger == nil {
				t.Fatal("New() returned nil")
			}
			if logger.Logger == nil {
				t.Fatal("New() returned logger with nil slog.Logger")
			}
		})
	}
}

func TestLogger_WithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json")

	// Context without query ID
	l := logger.WithContext(context.Background())
	if l != logger {
		t.Error("WithContext() without query ID should return the same logger")
	}

	ctx := ContextWithQueryID(context.Background(), "q-123")
	logger.WithContext(ctx).Info("planned")

	if !strings.Contains(buf.String(), `"query_id":"q-123"`) {
		t.Errorf("output should carry query_id, got: %s", buf.String())
	}
}

func TestLogger_WithStage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json")

	logger.WithStage("inject").Info("done")

	if !strings.Contains(buf.String(), `"stage":"inject"`) {
		t.Errorf("output should carry stage, got: %s", buf.String())
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "text")

	logger.WithError(errors.New("boom")).Warn("retrying")

	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("output should carry error, got: %s", buf.String())
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json")

	logger.WithComponent("watcher").With("path", "/etc/overrides.yaml").WithError(nil).Info("reloaded")

	out := buf.String()
	if !strings.Contains(out, `"component":"watcher"`) || !strings.Contains(out, `"path":"/etc/overrides.yaml"`) {
		t.Errorf("output should carry component and path, got: %s", out)
	}
	if strings.Contains(out, `"error"`) {
		t.Errorf("nil error should add nothing, got: %s", out)
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
	if Discard() == nil {
		t.Fatal("Discard() returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"WARNING", slog.LevelWarn},
		{" Debug ", slog.LevelDebug},
		{"unknown", slog.LevelInfo}, // default
		{"", slog.LevelInfo},        // default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", "text")

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at warn level, got: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn should be emitted, got: %s", out)
	}
}
