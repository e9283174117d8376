// Package checklist models the dependency-linked task list derived from a
// parsed request. The implement phase consults it to decide which plan
// steps are blocked by earlier failures.
package checklist

// Task is a single checklist item.
type Task struct {
	ID        string   `yaml:"id" json:"id"`
	Category  string   `yaml:"category,omitempty" json:"category,omitempty"`
	Title     string   `yaml:"title" json:"title"`
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Status    string   `yaml:"status,omitempty" json:"status,omitempty"`
}

// Task status constants.
const (
	TaskPending   = "pending"
	TaskCompleted = "completed"
)

// Checklist is the full task set for one stage.
type Checklist struct {
	Summary string `yaml:"summary,omitempty" json:"summary,omitempty"`
	Tasks   []Task `yaml:"checklist" json:"checklist"`
}

// DependsOn returns the dependency set for the task with the given id.
// An id with no matching task yields an empty set: a step whose checklist
// id is unknown is never blocked by dependency, only by its own failure.
func (c *Checklist) DependsOn(id string) map[string]bool {
	deps := make(map[string]bool)
	for i := range c.Tasks {
		if c.Tasks[i].ID == id {
			for _, d := range c.Tasks[i].DependsOn {
				deps[d] = true
			}
			break
		}
	}
	return deps
}

// BlockedBy reports whether the task with the given id depends on any id
// in failed.
func (c *Checklist) BlockedBy(id string, failed map[string]bool) bool {
	for dep := range c.DependsOn(id) {
		if failed[dep] {
			return true
		}
	}
	return false
}

// MarkCompleted sets the matching task's status to completed. Unknown ids
// are ignored.
func (c *Checklist) MarkCompleted(id string) {
	for i := range c.Tasks {
		if c.Tasks[i].ID == id {
			c.Tasks[i].Status = TaskCompleted
			return
		}
	}
}

// Find returns the task with the given id, or nil.
func (c *Checklist) Find(id string) *Task {
	for i := range c.Tasks {
		if c.Tasks[i].ID == id {
			return &c.Tasks[i]
		}
	}
	return nil
}
