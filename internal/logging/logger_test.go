package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput(LevelWarn, &buf)

	logger.Info("hidden")
	logger.Warn("shown", WithField("id", "a"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("entry is not JSON: %v", err)
	}
	if entry["msg"] != "shown" {
		t.Errorf("msg = %v, want shown", entry["msg"])
	}
	if entry["id"] != "a" {
		t.Errorf("id = %v, want a", entry["id"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"WARN", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEntryCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput(LevelDebug, &buf)

	logger.With(WithField("view", "history")).Info("mounted", WithFields(map[string]interface{}{"count": 3}))

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("entry is not JSON: %v", err)
	}
	if entry["view"] != "history" || entry["count"] != float64(3) {
		t.Errorf("unexpected fields: %v", entry)
	}
}
