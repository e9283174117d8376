package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(dir, LevelInfo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Info("stage created", "stage", 3, "workflow", "build")
	if err := logger.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "stagehand.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "stage created" {
		t.Errorf("msg = %v, want %q", entry["msg"], "stage created")
	}
	if entry["workflow"] != "build" {
		t.Errorf("workflow = %v, want %q", entry["workflow"], "build")
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(dir, LevelWarn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Debug("dropped")
	logger.Info("also dropped")
	logger.Warn("kept")
	logger.Close()

	data, _ := os.ReadFile(filepath.Join(dir, "stagehand.log"))
	content := string(data)
	if strings.Contains(content, "dropped") {
		t.Errorf("log contains filtered entries: %s", content)
	}
	if !strings.Contains(content, "kept") {
		t.Errorf("log missing warn entry: %s", content)
	}
}

func TestWith_CarriesAttributes(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(dir, LevelInfo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.With("stage", 7).Info("phase start")
	logger.Close()

	data, _ := os.ReadFile(filepath.Join(dir, "stagehand.log"))
	if !strings.Contains(string(data), `"stage":7`) {
		t.Errorf("attribute not carried: %s", string(data))
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestDiscard_DoesNotPanic(t *testing.T) {
	logger := Discard()
	logger.Info("nowhere")
	if err := logger.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
}
