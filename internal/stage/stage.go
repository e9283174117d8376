// Package stage manages the flow/ directory of a project: numbered stage
// directories holding each run's meta, artifacts and execution log, plus
// the cross-stage project context file.
//
// All writes go through a temp-file-and-rename so a crash never leaves a
// half-written document behind.
package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Stage statuses.
const (
	StatusRunning         = "running"
	StatusCompleted       = "completed"
	StatusFailed          = "failed"
	StatusPartial         = "partial"
	StatusCriticalFailure = "critical_failure"
	StatusPaused          = "paused"
)

// Terminal reports whether a status ends the stage's lifecycle.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusPartial, StatusCriticalFailure:
		return true
	}
	return false
}

// Meta is the stage's meta.yaml document.
type Meta struct {
	Stage              int    `yaml:"stage"`
	Workflow           string `yaml:"workflow"`
	Query              string `yaml:"query"`
	Status             string `yaml:"status"`
	StartedAt          string `yaml:"started_at"`
	FinishedAt         string `yaml:"finished_at"`
	PreviousStagesRead []int  `yaml:"previous_stages_read"`
}

// Stage is one stage directory and its loaded meta.
type Stage struct {
	Dir  string
	Meta Meta
}

// Num returns the stage number.
func (s *Stage) Num() int { return s.Meta.Stage }

// Workflow returns the workflow that produced this stage.
func (s *Stage) Workflow() string { return s.Meta.Workflow }

// Status returns the current status.
func (s *Stage) Status() string { return s.Meta.Status }

// ArtifactsDir returns the directory holding this stage's artifacts.
func (s *Stage) ArtifactsDir() string { return filepath.Join(s.Dir, "artifacts") }

// UpdateStatus persists a status change. Terminal statuses also record the
// finish time.
func (s *Stage) UpdateStatus(status string) error {
	s.Meta.Status = status
	if Terminal(status) {
		s.Meta.FinishedAt = nowISO()
	}
	return s.saveMeta()
}

// MarkPreviousRead records which earlier stages this stage consulted,
// deduplicated.
func (s *Stage) MarkPreviousRead(nums ...int) error {
	seen := make(map[int]bool, len(s.Meta.PreviousStagesRead))
	for _, n := range s.Meta.PreviousStagesRead {
		seen[n] = true
	}
	for _, n := range nums {
		if !seen[n] {
			s.Meta.PreviousStagesRead = append(s.Meta.PreviousStagesRead, n)
			seen[n] = true
		}
	}
	return s.saveMeta()
}

func (s *Stage) saveMeta() error {
	return writeYAML(filepath.Join(s.Dir, "meta.yaml"), s.Meta)
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// writeYAML marshals v and writes it atomically via temp file and rename.
func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
