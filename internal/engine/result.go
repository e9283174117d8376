package engine

// Run statuses beyond the stage statuses.
const (
	StatusNeedsClarification = "needs_clarification"
	StatusNeedsProject       = "needs_project"
)

// StepStats aggregates the implement phase outcome.
type StepStats struct {
	Total         int     `yaml:"total"`
	Completed     int     `yaml:"completed"`
	Failed        int     `yaml:"failed"`
	Blocked       int     `yaml:"blocked"`
	FailedPercent float64 `yaml:"failed_percent"`
}

// RunResult is what a workflow run returns to its caller.
type RunResult struct {
	Workflow string
	Status   string
	Message  string
	StageNum int
	// Questions is set when Status is needs_clarification.
	Questions []string
	// Warnings collects non-fatal issues (e.g. document validation gaps).
	Warnings []string
	// Implementation holds step stats when an implement phase ran.
	Implementation *StepStats
	// Summary, Stack and Issues feed the project context update.
	Summary string
	Stack   []string
	Issues  []string
}
