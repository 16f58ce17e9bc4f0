package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerWithWriter_Formats(t *testing.T) {
	tests := []struct {
		format string
		want   []string
	}{
		{"text", []string{"task finished", "task_id=build"}},
		{"json", []string{`"msg":"task finished"`, `"task_id":"build"`}},
		{"", []string{"task_id=build"}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		NewLoggerWithWriter(slog.LevelInfo, tt.format, &buf).Info("task finished", "task_id", "build")
		for _, w := range tt.want {
			if !strings.Contains(buf.String(), w) {
				t.Errorf("format %q: expected %q in output, got: %s", tt.format, w, buf.String())
			}
		}
	}
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(ParseLevel("CRITICAL"), "text", &buf)

	logger.Warn("should not appear")
	logger.Error("should appear")

	output := buf.String()
	if strings.Contains(output, "should not appear") {
		t.Errorf("WARN message should be filtered at CRITICAL level, got: %s", output)
	}
	if !strings.Contains(output, "should appear") {
		t.Errorf("ERROR message should appear at CRITICAL level, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"CRITICAL", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLookupLevel_RejectsUnknown(t *testing.T) {
	for _, name := range Levels {
		if _, err := LookupLevel(name); err != nil {
			t.Errorf("LookupLevel(%q): %v", name, err)
		}
	}
	if _, err := LookupLevel("verbose"); err == nil {
		t.Error("LookupLevel(verbose) should fail")
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing to see")
}
