package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	return New(Config{Level: level, Component: ComponentApp, Output: buf})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" INFO ", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, slog.LevelInfo)

	logger.WithComponent(ComponentExport).Info("done", FieldRows, 3)
	out := buf.String()
	if !strings.Contains(out, "component=export") || !strings.Contains(out, "rows=3") {
		t.Fatalf("unexpected output %q", out)
	}

	buf.Reset()
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug record written at info level: %q", buf.String())
	}
}

func TestComponentNotRepeated(t *testing.T) {
	var buf bytes.Buffer
	logger := Wrap(newBufferLogger(&buf, slog.LevelInfo).Logger, ComponentHTTP).
		WithComponent(ComponentTrace).
		With(FieldRequestID, "req-7").
		WithComponent(ComponentHTTP)

	logger.Info("completed")
	out := buf.String()
	if n := strings.Count(out, "component="); n != 1 || !strings.Contains(out, "component=http") {
		t.Fatalf("expected one component=http, got %q", out)
	}
	if !strings.Contains(out, "request_id=req-7") {
		t.Fatalf("attributes lost on rename: %q", out)
	}
	if logger.Component() != ComponentHTTP {
		t.Fatalf("Component() = %q", logger.Component())
	}

	buf.Reset()
	logger.LogError(context.Background(), "render failed", errors.New("boom"), ErrorTypeInternal,
		FieldComponent, ComponentTemplate)
	out = buf.String()
	if n := strings.Count(out, "component="); n != 1 || !strings.Contains(out, "component=template") {
		t.Fatalf("explicit component not kept alone: %q", out)
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, slog.LevelInfo)

	logger.LogError(context.Background(), "load failed", errors.New("boom"), ErrorTypeDatabase, FieldDataset, "tips.csv")
	out := buf.String()
	for _, want := range []string{"level=ERROR", "error=boom", "error_type=database_error", "dataset=tips.csv"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestMiddlewareStoresLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, slog.LevelInfo)

	handler := Middleware(logger.With(FieldRequestID, "req-1"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("inside")
		}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req-1") || !strings.Contains(buf.String(), "msg=inside") {
		t.Fatalf("context logger not used: %q", buf.String())
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf, slog.LevelInfo))
	req := httptest.NewRequest(http.MethodGet, "/sales?start=2019-01-01", nil)

	sl.LogHTTPEnd(context.Background(), req, http.StatusBadRequest, 12, "10.0.0.1")
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "status_code=400") || !strings.Contains(out, "component=http") {
		t.Fatalf("unexpected HTTP log %q", out)
	}

	buf.Reset()
	sl.LogExport(context.Background(), "tips.csv", "xlsx", 7)
	if out := buf.String(); !strings.Contains(out, "format=xlsx") || !strings.Contains(out, "rows=7") {
		t.Fatalf("unexpected export log %q", out)
	}

	buf.Reset()
	sl.LogNoData(context.Background(), "sales", "2030-01-01", "", nil)
	if out := buf.String(); !strings.Contains(out, "page=sales") || strings.Contains(out, "end=") {
		t.Fatalf("unexpected no-data log %q", out)
	}
}
