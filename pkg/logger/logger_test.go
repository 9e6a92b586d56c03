package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug", "json")
	l.Debug("span clustered", "label", "<sense>")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if rec["label"] != "<sense>" {
		t.Errorf("label = %v, want <sense>", rec["label"])
	}
}

func TestNewLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "text")
	l.Info("dropped")
	l.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn record should be written")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "run-42")
	if got := RequestID(ctx); got != "run-42" {
		t.Errorf("RequestID() = %q, want run-42", got)
	}
	if got := RequestID(context.Background()); got != "" {
		t.Errorf("RequestID() on empty context = %q", got)
	}
	if parseLevel("nonsense") != slog.LevelInfo {
		t.Error("unknown level should default to info")
	}
}

func TestParseLevelIgnoresCase(t *testing.T) {
	if parseLevel("DEBUG") != slog.LevelDebug || parseLevel("Warn") != slog.LevelWarn {
		t.Error("level names should be case-insensitive")
	}
}
