package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Pipeline.MaxRetryPerStep != 3 {
		t.Errorf("MaxRetryPerStep = %d, want 3", cfg.Pipeline.MaxRetryPerStep)
	}
	if cfg.Pipeline.FailedThresholdPercent != 30.0 {
		t.Errorf("FailedThresholdPercent = %v, want 30", cfg.Pipeline.FailedThresholdPercent)
	}
	if cfg.Pipeline.MaxToolTurns != 25 {
		t.Errorf("MaxToolTurns = %d, want 25", cfg.Pipeline.MaxToolTurns)
	}
	if cfg.Pipeline.FlowDir != "flow" {
		t.Errorf("FlowDir = %q, want %q", cfg.Pipeline.FlowDir, "flow")
	}
	if cfg.LLM.Model == "" {
		t.Error("expected a default model")
	}
	if len(cfg.Scanner.IgnoredDirs) == 0 {
		t.Error("expected default ignored dirs")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.MaxRetryPerStep != 3 {
		t.Errorf("MaxRetryPerStep = %d, want 3", cfg.Pipeline.MaxRetryPerStep)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	content := "pipeline:\n  max_retry_per_step: 5\n  flow_dir: pipeline\nllm:\n  model: anthropic/claude-sonnet\n"
	if err := os.WriteFile(filepath.Join(dir, "stagehand.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.MaxRetryPerStep != 5 {
		t.Errorf("MaxRetryPerStep = %d, want 5", cfg.Pipeline.MaxRetryPerStep)
	}
	if cfg.Pipeline.FlowDir != "pipeline" {
		t.Errorf("FlowDir = %q, want %q", cfg.Pipeline.FlowDir, "pipeline")
	}
	if cfg.LLM.Model != "anthropic/claude-sonnet" {
		t.Errorf("Model = %q, want override", cfg.LLM.Model)
	}
	// Untouched keys keep defaults.
	if cfg.Pipeline.MaxToolTurns != 25 {
		t.Errorf("MaxToolTurns = %d, want default 25", cfg.Pipeline.MaxToolTurns)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "stagehand.yaml"), []byte("{not yaml:::"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for malformed config, got nil")
	}
}
