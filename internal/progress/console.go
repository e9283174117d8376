package progress

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pablasso/stagehand/internal/stage"
)

var (
	primaryColor   = lipgloss.Color("#7D56F4")
	secondaryColor = lipgloss.Color("#6C6C6C")
	successColor   = lipgloss.Color("#73F59F")
	errorColor     = lipgloss.Color("#FF6B6B")
	warnColor      = lipgloss.Color("#F5D573")

	phaseStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	stepStyle    = lipgloss.NewStyle().Foreground(secondaryColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	warnStyle    = lipgloss.NewStyle().Foreground(warnColor)
)

// Console renders events as styled lines and reads review feedback from
// its reader.
type Console struct {
	out io.Writer
	in  *bufio.Reader
}

// NewConsole creates a console sink. in may be nil, in which case reviews
// auto-approve.
func NewConsole(out io.Writer, in io.Reader) *Console {
	c := &Console{out: out}
	if in != nil {
		c.in = bufio.NewReader(in)
	}
	return c
}

func (c *Console) PhaseStart(workflow, phase string) {
	fmt.Fprintln(c.out, phaseStyle.Render(fmt.Sprintf("[%s] %s", workflow, phase)))
}

func (c *Console) StepStart(stepNumber, total int, description string) {
	fmt.Fprintln(c.out, stepStyle.Render(fmt.Sprintf("  step %d/%d: %s", stepNumber, total, description)))
}

func (c *Console) StepDone(stepNumber int, status string, errText string) {
	var line string
	switch status {
	case stage.StepCompleted:
		line = successStyle.Render(fmt.Sprintf("  step %d done", stepNumber))
	case stage.StepFailed:
		line = errorStyle.Render(fmt.Sprintf("  step %d failed: %s", stepNumber, errText))
	case stage.StepBlocked:
		line = warnStyle.Render(fmt.Sprintf("  step %d blocked: %s", stepNumber, errText))
	default:
		line = stepStyle.Render(fmt.Sprintf("  step %d %s", stepNumber, status))
	}
	fmt.Fprintln(c.out, line)
}

func (c *Console) Message(text string) {
	fmt.Fprintln(c.out, text)
}

// ReviewRequest prints the document and reads one line of feedback. An
// empty line (or no reader) approves the plan as written.
func (c *Console) ReviewRequest(document string) string {
	fmt.Fprintln(c.out, document)
	fmt.Fprintln(c.out, stepStyle.Render("Press enter to approve, or describe changes:"))
	if c.in == nil {
		return ""
	}
	line, err := c.in.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}

func (c *Console) Done(status string) {
	style := successStyle
	switch status {
	case stage.StatusFailed, stage.StatusCriticalFailure:
		style = errorStyle
	case stage.StatusPartial, stage.StatusPaused:
		style = warnStyle
	}
	fmt.Fprintln(c.out, style.Render("run "+status))
}
