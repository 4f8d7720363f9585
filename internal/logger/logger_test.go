package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWithExecutionID_And_ExecutionIDFromContext(t *testing.T) {
	ctx := context.Background()
	executionID := "exec-12345"

	if got := ExecutionIDFromContext(ctx); got != "" {
		t.Errorf("ExecutionIDFromContext() on empty ctx = %v, want empty", got)
	}

	ctx = WithExecutionID(ctx, executionID)
	if got := ExecutionIDFromContext(ctx); got != executionID {
		t.Errorf("ExecutionIDFromContext() = %v, want %v", got, executionID)
	}
}

func TestFromContext_WithExecutionID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Console: true, Format: "json", Writer: &buf})

	ctx := WithExecutionID(context.Background(), "exec-67890")
	FromContext(ctx, base).Info("hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", buf.String(), err)
	}
	if record["execution_id"] != "exec-67890" {
		t.Errorf("got execution_id %v, want exec-67890", record["execution_id"])
	}
}

func TestNew_ConsoleDisabled(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Console: false, Writer: &buf})
	l.Error("dropped")

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestNew_TextConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Console: true, Level: "warn", Writer: &buf})
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn line missing, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTee_WritesExecutionLog(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	fileHandler, closer, path, err := OpenExecutionLog(dir, "exec-1", slog.LevelInfo)
	if err != nil {
		t.Fatalf("OpenExecutionLog failed: %v", err)
	}

	l := slog.New(Tee(NewHandler(Options{Console: true, Format: "json", Writer: &console}), fileHandler))
	l.With("step", "import").Info("processed")
	closer.Close()

	if path != filepath.Join(dir, "exec-1", "batch.log") {
		t.Errorf("unexpected path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	for name, out := range map[string]string{"file": string(data), "console": console.String()} {
		if !strings.Contains(out, `"step":"import"`) || !strings.Contains(out, "processed") {
			t.Errorf("%s output missing record: %q", name, out)
		}
	}
}

func TestFromContext_PrefersContextLogger(t *testing.T) {
	var baseBuf, ctxBuf bytes.Buffer
	base := New(Options{Console: true, Format: "json", Writer: &baseBuf})
	carried := New(Options{Console: true, Format: "json", Writer: &ctxBuf})

	ctx := NewContext(context.Background(), carried)
	FromContext(ctx, base).Info("routed")

	if baseBuf.Len() != 0 {
		t.Errorf("expected base logger to stay silent, got %q", baseBuf.String())
	}
	if !strings.Contains(ctxBuf.String(), "routed") {
		t.Errorf("expected context logger to receive the record, got %q", ctxBuf.String())
	}
}
