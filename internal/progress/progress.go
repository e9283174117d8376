// Package progress decouples the engine from its presentation. The engine
// reports events through a Sink; the CLI installs the console sink, tests
// install Nop or a recorder.
package progress

// Sink receives execution events as they happen.
type Sink interface {
	// PhaseStart announces that a workflow phase is beginning.
	PhaseStart(workflow, phase string)
	// StepStart announces a plan step, with its position in the plan.
	StepStart(stepNumber, total int, description string)
	// StepDone reports a step's outcome using execution-log statuses.
	StepDone(stepNumber int, status string, err string)
	// Message surfaces free-form text for the user (answers, reports).
	Message(text string)
	// ReviewRequest asks for plan feedback. The returned text is the
	// user's response; empty means approve as-is.
	ReviewRequest(document string) string
	// Done reports the final run status.
	Done(status string)
}

// Nop discards all events and approves all reviews.
type Nop struct{}

func (Nop) PhaseStart(string, string) {}

func (Nop) StepStart(int, int, string) {}

func (Nop) StepDone(int, string, string) {}

func (Nop) Message(string) {}

func (Nop) ReviewRequest(string) string { return "" }

func (Nop) Done(string) {}
