package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	l := Discard().WithComponent(ComponentHTTP)
	ctx := NewContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatal("FromContext did not return the stored logger")
	}
	if got := FromContext(context.Background()).Component(); got != "unknown" {
		t.Errorf("fallback component = %q, want unknown", got)
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogHTTPEndLevelFollowsStatus(t *testing.T) {
	tests := map[int]string{200: "INFO", 404: "WARN", 503: "ERROR"}
	for status, want := range tests {
		var buf bytes.Buffer
		sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Format: FormatJSON, Component: ComponentTrace, Output: &buf}))
		sl.LogHTTPEnd(context.Background(), httptest.NewRequest("GET", "/api/v1/budgets", nil), status, 12, "10.0.0.1")

		lines := decodeLines(t, &buf)
		if len(lines) != 1 {
			t.Fatalf("status %d: got %d lines", status, len(lines))
		}
		if lines[0]["level"] != want {
			t.Errorf("status %d: level = %v, want %s", status, lines[0]["level"], want)
		}
		if lines[0][FieldComponent] != ComponentTrace {
			t.Errorf("status %d: component = %v", status, lines[0][FieldComponent])
		}
	}
}

func TestLogErrorAddsOperation(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Format: FormatJSON, Component: ComponentWorker, Output: &buf}))
	sl.LogError(context.Background(), "audit failed", errors.New("disk full"), OpAudit, nil)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[0][FieldOperation] != OpAudit || lines[0][FieldError] != "disk full" {
		t.Errorf("unexpected entry %v", lines[0])
	}
}
