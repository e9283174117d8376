// Package guard enforces path containment for tool arguments.
// Every destructive tool call passes its path arguments through Resolve
// before dispatch, so file operations are provably confined to the project
// root regardless of which tool is invoked.
package guard

import (
	"fmt"
	"path/filepath"
	"strings"
)

// EscapeError indicates a path argument resolved outside the project root.
type EscapeError struct {
	Raw  string
	Root string
}

func (e *EscapeError) Error() string {
	return fmt.Sprintf("path %q escapes project root %q", e.Raw, e.Root)
}

// Resolve resolves raw against root and verifies the result stays inside root.
// Relative paths are resolved against root; absolute paths are cleaned as-is.
// Returns the resolved absolute path, or an *EscapeError if the result is
// neither root itself nor a descendant of it. Resolve has no side effects.
func Resolve(raw, root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root %q: %w", root, err)
	}
	absRoot = filepath.Clean(absRoot)

	var resolved string
	if filepath.IsAbs(raw) {
		resolved = filepath.Clean(raw)
	} else {
		resolved = filepath.Clean(filepath.Join(absRoot, raw))
	}

	if !Contains(absRoot, resolved) {
		return "", &EscapeError{Raw: raw, Root: absRoot}
	}
	return resolved, nil
}

// Contains reports whether path equals root or is a descendant of root.
// Both arguments must be absolute, cleaned paths.
func Contains(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// PathArgs is the set of tool argument keys treated as path-bearing.
// Values under these keys are resolved and guarded before dispatch.
var PathArgs = map[string]bool{
	"path":        true,
	"directory":   true,
	"source":      true,
	"destination": true,
	"cwd":         true,
}
