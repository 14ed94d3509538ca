package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")

	logger.Info("rows parsed", "rows", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "rows parsed" {
		t.Errorf("msg = %v, want rows parsed", entry["msg"])
	}
	if entry["rows"] != float64(3) {
		t.Errorf("rows = %v, want 3", entry["rows"])
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "text")

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn line missing: %s", out)
	}
}

func TestFromContext_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "text"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	WithFields(ctx, "session_id", "s1").Info("commit started")

	out := buf.String()
	if !strings.Contains(out, "request_id=req-42") {
		t.Errorf("missing request_id: %s", out)
	}
	if !strings.Contains(out, "session_id=s1") {
		t.Errorf("missing session_id: %s", out)
	}
}
