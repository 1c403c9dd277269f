package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Component: ComponentLedger, Output: &buf})

	logger.Info("aggregate updated", FieldUserID, "u1", FieldDeltaCents, int64(500))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry[FieldComponent] != ComponentLedger {
		t.Errorf("component = %v", entry[FieldComponent])
	}
	if entry[FieldUserID] != "u1" {
		t.Errorf("user_id = %v", entry[FieldUserID])
	}
}

func TestWithComponentKeepsAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: FormatText, Component: ComponentApp, Output: &buf}).With(FieldRequestID, "r-1")

	base.WithComponent(ComponentWorker).Warn("drift")

	out := buf.String()
	if !strings.Contains(out, "component=worker") || !strings.Contains(out, "request_id=r-1") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.Count(out, "component=") != 1 {
		t.Errorf("component logged more than once: %q", out)
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: FormatPretty, Component: ComponentApp, Output: &buf})
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug entry written at info level: %q", buf.String())
	}
}

func TestFieldsBuilder(t *testing.T) {
	f := NewFields().WithAggregate("u1", "EXPENSE", -250, 1000).WithOperation(OpApply)
	if f[FieldDeltaCents] != int64(-250) || f[FieldAfterCents] != int64(1000) {
		t.Errorf("aggregate fields = %v", f)
	}
	if len(f.ToSlice()) != 2*len(f) {
		t.Errorf("ToSlice length mismatch")
	}
}
