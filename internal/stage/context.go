package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const contextFileName = "context.yaml"

// ProjectContext is the cross-stage summary stored at flow/context.yaml.
// It feeds classification and planning prompts so later requests know what
// earlier stages did.
type ProjectContext struct {
	ProjectName      string   `yaml:"project_name"`
	Stack            []string `yaml:"stack"`
	Summary          string   `yaml:"summary"`
	StagesCompleted  int      `yaml:"stages_completed"`
	LastStageSummary string   `yaml:"last_stage_summary"`
	KnownIssues      []string `yaml:"known_issues"`
}

// ContextPath returns where the project context file lives.
func (m *Manager) ContextPath() string {
	return filepath.Join(m.FlowDir, contextFileName)
}

// LoadContext reads the project context, returning a zero value when the
// file does not exist.
func (m *Manager) LoadContext() (*ProjectContext, error) {
	var ctx ProjectContext
	if err := readYAML(m.ContextPath(), &ctx); err != nil {
		if os.IsNotExist(err) {
			return &ProjectContext{}, nil
		}
		return nil, err
	}
	return &ctx, nil
}

// SaveContext persists the project context, creating the flow dir first.
func (m *Manager) SaveContext(ctx *ProjectContext) error {
	if err := os.MkdirAll(m.FlowDir, 0o755); err != nil {
		return fmt.Errorf("failed to create flow dir: %w", err)
	}
	return writeYAML(m.ContextPath(), ctx)
}

// ContextExists reports whether the context file exists.
func (m *Manager) ContextExists() bool {
	_, err := os.Stat(m.ContextPath())
	return err == nil
}

// UpdateContextAfterStage merges a finished stage's outcome into the
// project context. stack entries accumulate across stages; issues replace
// the previous list when non-empty.
func (m *Manager) UpdateContextAfterStage(s *Stage, summary string, stack, issues []string) error {
	ctx, err := m.LoadContext()
	if err != nil {
		return err
	}

	ctx.StagesCompleted = s.Num()
	if summary == "" {
		query := s.Meta.Query
		if len(query) > 100 {
			query = query[:100]
		}
		summary = fmt.Sprintf("[%s] %s", s.Workflow(), query)
	}
	ctx.LastStageSummary = summary

	if len(stack) > 0 {
		existing := make(map[string]bool, len(ctx.Stack))
		for _, item := range ctx.Stack {
			existing[item] = true
		}
		for _, item := range stack {
			existing[item] = true
		}
		merged := make([]string, 0, len(existing))
		for item := range existing {
			merged = append(merged, item)
		}
		sort.Strings(merged)
		ctx.Stack = merged
	}
	if len(issues) > 0 {
		ctx.KnownIssues = issues
	}

	if err := m.SaveContext(ctx); err != nil {
		return err
	}
	m.log.Info("context updated", "stage", s.Num())
	return nil
}

// ForLLM renders the context as prompt lines, empty when nothing useful is
// known yet.
func (c *ProjectContext) ForLLM() string {
	if c.Summary == "" && c.LastStageSummary == "" {
		return ""
	}
	var lines []string
	if c.ProjectName != "" {
		lines = append(lines, "Project: "+c.ProjectName)
	}
	if len(c.Stack) > 0 {
		lines = append(lines, "Stack: "+strings.Join(c.Stack, ", "))
	}
	if c.Summary != "" {
		lines = append(lines, "Description: "+c.Summary)
	}
	if c.LastStageSummary != "" {
		lines = append(lines, "Last action: "+c.LastStageSummary)
	}
	if c.StagesCompleted > 0 {
		lines = append(lines, fmt.Sprintf("Stages completed: %d", c.StagesCompleted))
	}
	if len(c.KnownIssues) > 0 {
		lines = append(lines, "Known issues: "+strings.Join(c.KnownIssues, "; "))
	}
	return strings.Join(lines, "\n")
}
