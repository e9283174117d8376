package util

import "fmt"

// GenerateTaskID returns a checklist task ID in the format t01, t02, ..., t99, t100, etc.
func GenerateTaskID(index int) string {
	return fmt.Sprintf("t%02d", index+1)
}
