package tool

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandContext is the function used to create exec.Cmd instances.
// It can be replaced in tests to mock command execution.
var CommandContext = exec.CommandContext

// defaultCommandTimeout bounds a single execute_command call when the
// incoming context carries no deadline.
const defaultCommandTimeout = 5 * time.Minute

type executeCommand struct{}

func (*executeCommand) Name() string { return "execute_command" }
func (*executeCommand) Description() string {
	return "Run a shell command in the project directory and return its combined output."
}
func (*executeCommand) Parameters() map[string]any {
	return objectSchema(map[string]string{
		"command": "Shell command to run",
		"cwd":     "Working directory (defaults to the project root)",
	}, "command")
}

func (*executeCommand) Run(ctx context.Context, args map[string]any) (string, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return "", err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCommandTimeout)
		defer cancel()
	}

	cmd := CommandContext(ctx, "sh", "-c", command)
	if cwd := optionalString(args, "cwd"); cwd != "" {
		cmd.Dir = cwd
	}

	output, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(output))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("command timed out: %s", command)
		}
		if text == "" {
			return "", fmt.Errorf("command failed: %w", err)
		}
		return "", fmt.Errorf("command failed: %w\noutput:\n%s", err, text)
	}
	if text == "" {
		return "(no output)", nil
	}
	return text, nil
}
