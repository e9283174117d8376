// Package git inspects the target project's worktree so implementation
// phases can refuse to touch a dirty tree unless the user overrides.
package git

import (
	"os/exec"
	"strings"
)

// Status is the worktree state of a project directory.
type Status struct {
	Clean bool
	Files []string
}

// IsRepo reports whether dir is inside a git worktree. Projects without
// git skip the dirty-tree gate entirely.
func IsRepo(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// GetStatus returns the worktree status for dir (current directory when
// empty), counting staged, unstaged and untracked files.
func GetStatus(dir string) (*Status, error) {
	cmd := exec.Command("git", "status", "--porcelain")
	if dir != "" {
		cmd.Dir = dir
	}
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(string(output), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		// Porcelain format: XY filename. Keep unexpected lines whole so
		// nothing is silently dropped.
		if len(line) > 3 {
			files = append(files, line[3:])
		} else {
			files = append(files, strings.TrimSpace(line))
		}
	}

	return &Status{Clean: len(files) == 0, Files: files}, nil
}

// IsClean reports whether dir has no uncommitted changes.
func IsClean(dir string) (bool, error) {
	status, err := GetStatus(dir)
	if err != nil {
		return false, err
	}
	return status.Clean, nil
}

// GetDirtyFiles lists files with uncommitted changes.
func GetDirtyFiles(dir string) ([]string, error) {
	status, err := GetStatus(dir)
	if err != nil {
		return nil, err
	}
	return status.Files, nil
}
