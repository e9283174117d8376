package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxReadBytes caps file reads so a single tool result cannot flood the
// conversation history.
const maxReadBytes = 200_000

type readFile struct{}

func (*readFile) Name() string        { return "read_file" }
func (*readFile) Description() string { return "Read the contents of a file." }
func (*readFile) Parameters() map[string]any {
	return objectSchema(map[string]string{"path": "File path to read"}, "path")
}

func (*readFile) Run(_ context.Context, args map[string]any) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) > maxReadBytes {
		return string(data[:maxReadBytes]) + "\n... (truncated)", nil
	}
	return string(data), nil
}

type writeFile struct{}

func (*writeFile) Name() string { return "write_file" }
func (*writeFile) Description() string {
	return "Write content to a file, creating parent directories as needed."
}
func (*writeFile) Parameters() map[string]any {
	return objectSchema(map[string]string{
		"path":    "File path to write",
		"content": "Full file content",
	}, "path", "content")
}

func (*writeFile) Run(_ context.Context, args map[string]any) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
}

type editFile struct{}

func (*editFile) Name() string { return "edit_file" }
func (*editFile) Description() string {
	return "Replace an exact text fragment in a file. The old text must occur exactly once."
}
func (*editFile) Parameters() map[string]any {
	return objectSchema(map[string]string{
		"path":     "File path to edit",
		"old_text": "Exact text to replace",
		"new_text": "Replacement text",
	}, "path", "old_text", "new_text")
}

func (*editFile) Run(_ context.Context, args map[string]any) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	oldText, err := stringArg(args, "old_text")
	if err != nil {
		return "", err
	}
	newText, err := stringArg(args, "new_text")
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	content := string(data)

	count := strings.Count(content, oldText)
	if count == 0 {
		return "", fmt.Errorf("old_text not found in %s", path)
	}
	if count > 1 {
		return "", fmt.Errorf("old_text occurs %d times in %s, must be unique", count, path)
	}

	content = strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return fmt.Sprintf("Edited %s", path), nil
}

type deleteFile struct{}

func (*deleteFile) Name() string        { return "delete_file" }
func (*deleteFile) Description() string { return "Delete a file." }
func (*deleteFile) Parameters() map[string]any {
	return objectSchema(map[string]string{"path": "File path to delete"}, "path")
}

func (*deleteFile) Run(_ context.Context, args map[string]any) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return fmt.Sprintf("Deleted %s", path), nil
}

type moveFile struct{}

func (*moveFile) Name() string        { return "move_file" }
func (*moveFile) Description() string { return "Move or rename a file." }
func (*moveFile) Parameters() map[string]any {
	return objectSchema(map[string]string{
		"source":      "Current file path",
		"destination": "New file path",
	}, "source", "destination")
}

func (*moveFile) Run(_ context.Context, args map[string]any) (string, error) {
	src, err := stringArg(args, "source")
	if err != nil {
		return "", err
	}
	dst, err := stringArg(args, "destination")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", src, err)
	}
	return fmt.Sprintf("Moved %s to %s", src, dst), nil
}

type listDirectory struct{}

func (*listDirectory) Name() string        { return "list_directory" }
func (*listDirectory) Description() string { return "List the entries of a directory." }
func (*listDirectory) Parameters() map[string]any {
	return objectSchema(map[string]string{"directory": "Directory path to list"}, "directory")
}

func (*listDirectory) Run(_ context.Context, args map[string]any) (string, error) {
	dir, err := stringArg(args, "directory")
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var sb strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			sb.WriteString(e.Name() + "/\n")
		} else {
			sb.WriteString(e.Name() + "\n")
		}
	}
	if sb.Len() == 0 {
		return "(empty directory)", nil
	}
	return sb.String(), nil
}
