package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestWithComponentJSON(t *testing.T) {
	var buf bytes.Buffer
	previous := Logger()
	SetLogger(New(&buf, "debug", "json"))
	defer SetLogger(previous)

	InfoWithComponent(ComponentPool, "job accepted", "job_id", "abc")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if record["component"] != ComponentPool {
		t.Errorf("Expected component %q, got %v", ComponentPool, record["component"])
	}
	if record["job_id"] != "abc" {
		t.Errorf("Expected job_id abc, got %v", record["job_id"])
	}
}

func TestTextHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	previous := Logger()
	SetLogger(New(&buf, "warn", "text"))
	defer SetLogger(previous)

	Info("hidden")
	Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected info record to be filtered, got %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("Expected warn record in output, got %q", out)
	}
}
