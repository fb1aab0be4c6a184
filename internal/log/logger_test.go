package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
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
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf, Component: ComponentReconcile})

	logger.Info("loaded", FieldRows, 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if rec[FieldComponent] != ComponentReconcile {
		t.Errorf("component = %v, want %s", rec[FieldComponent], ComponentReconcile)
	}
	if rec[FieldRows] != float64(3) {
		t.Errorf("rows = %v, want 3", rec[FieldRows])
	}
}

func TestFieldsBuilder(t *testing.T) {
	fields := NewFields().
		WithCashEntry("e1", "2024-01-15").
		WithError(errors.New("boom")).
		WithPeriod("2024-01-01..2024-01-31")

	if fields[FieldEntryID] != "e1" || fields[FieldEntryDate] != "2024-01-15" {
		t.Errorf("unexpected entry fields: %v", fields)
	}
	if fields[FieldError] != "boom" {
		t.Errorf("error = %v, want boom", fields[FieldError])
	}
	if len(fields.ToSlice()) != 2*len(fields) {
		t.Errorf("ToSlice should flatten key/value pairs")
	}
}

func TestMiddlewareLogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Output: &buf})

	var fromCtx *Logger
	h := middleware.RequestID(Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/reconciliation?year=2024", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if fromCtx == nil || fromCtx.Component() != ComponentHTTP {
		t.Fatalf("request logger not placed in context")
	}
	line := buf.String()
	for _, want := range []string{`"status_code":418`, `"path":"/api/reconciliation"`, `"request_id"`, `"level":"WARN"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %s missing %s", line, want)
		}
	}
}

func TestFromContextFallback(t *testing.T) {
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Errorf("component = %q, want unknown", got.Component())
	}
}
