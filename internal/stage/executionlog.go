package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Step statuses recorded in the execution log.
const (
	StepCompleted = "completed"
	StepFailed    = "failed"
	StepBlocked   = "blocked"
	StepSkipped   = "skipped"
)

// LogEntry records the outcome of one plan step.
type LogEntry struct {
	StepNumber  int     `yaml:"step_number"`
	ChecklistID string  `yaml:"checklist_id,omitempty"`
	Description string  `yaml:"description"`
	Status      string  `yaml:"status"`
	Elapsed     float64 `yaml:"elapsed"`
	Error       string  `yaml:"error,omitempty"`
}

// LogStats aggregates entry statuses.
type LogStats struct {
	Completed int `yaml:"completed"`
	Failed    int `yaml:"failed"`
	Blocked   int `yaml:"blocked"`
	Skipped   int `yaml:"skipped"`
}

// LogMeta describes the run that produced the log. Status and FinishedAt
// stay empty until the run's final snapshot, so a log carrying them is a
// finished run and a log without them was interrupted mid-step.
type LogMeta struct {
	Workflow   string `yaml:"workflow,omitempty"`
	StartedAt  string `yaml:"started_at,omitempty"`
	FinishedAt string `yaml:"finished_at,omitempty"`
	Status     string `yaml:"status,omitempty"`
	Resumed    bool   `yaml:"resumed,omitempty"`
}

// ExecutionLog is the execution_log.yaml document.
type ExecutionLog struct {
	Meta  LogMeta    `yaml:"meta"`
	Stats LogStats   `yaml:"stats"`
	Steps []LogEntry `yaml:"steps"`
}

// ComputeStats tallies entry statuses.
func ComputeStats(entries []LogEntry) LogStats {
	var stats LogStats
	for _, e := range entries {
		switch e.Status {
		case StepCompleted:
			stats.Completed++
		case StepFailed:
			stats.Failed++
		case StepBlocked:
			stats.Blocked++
		case StepSkipped:
			stats.Skipped++
		}
	}
	return stats
}

// SaveExecutionLog writes the full log snapshot, recomputing stats, along
// with a markdown rendering. Called after every step so an interrupted run
// loses at most the step in flight.
func (s *Stage) SaveExecutionLog(meta LogMeta, entries []LogEntry) error {
	doc := ExecutionLog{
		Meta:  meta,
		Stats: ComputeStats(entries),
		Steps: entries,
	}
	if err := writeYAML(filepath.Join(s.Dir, "execution_log.yaml"), doc); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(s.Dir, "execution_log.md"), []byte(renderLogMarkdown(doc)))
}

// LoadExecutionLog reads the log. Returns nil (no error) when it does not
// exist yet.
func (s *Stage) LoadExecutionLog() (*ExecutionLog, error) {
	var doc ExecutionLog
	if err := readYAML(filepath.Join(s.Dir, "execution_log.yaml"), &doc); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// CompletedStepIDs returns the checklist IDs of completed steps. These are
// the only results a resumed run trusts; failed and blocked steps are
// retried fresh.
func (l *ExecutionLog) CompletedStepIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, e := range l.Steps {
		if e.Status == StepCompleted && e.ChecklistID != "" {
			ids[e.ChecklistID] = true
		}
	}
	return ids
}

func renderLogMarkdown(doc ExecutionLog) string {
	var b strings.Builder
	b.WriteString("# Execution Log\n")
	for _, e := range doc.Steps {
		marker := " "
		if e.Status == StepCompleted {
			marker = "x"
		}
		fmt.Fprintf(&b, "\n- [%s] Step %d: %s [%s] (%.1fs)", marker, e.StepNumber, e.Description, e.Status, e.Elapsed)
		if e.Error != "" {
			fmt.Fprintf(&b, "\n  Error: %s", e.Error)
		}
	}
	b.WriteString("\n\n## Stats\n")
	fmt.Fprintf(&b, "\n- completed: %d", doc.Stats.Completed)
	fmt.Fprintf(&b, "\n- failed: %d", doc.Stats.Failed)
	fmt.Fprintf(&b, "\n- blocked: %d", doc.Stats.Blocked)
	fmt.Fprintf(&b, "\n- skipped: %d", doc.Stats.Skipped)
	b.WriteString("\n")
	return b.String()
}
