// Package plan models the implementation plan document: the ordered steps
// the implement phase executes, each bound to a checklist id.
package plan

// Step is one atomic unit of work inside the implement phase.
type Step struct {
	StepNumber    int      `yaml:"step_number" json:"step_number"`
	ChecklistID   string   `yaml:"checklist_id,omitempty" json:"checklist_id,omitempty"`
	Description   string   `yaml:"description" json:"description"`
	Target        string   `yaml:"target,omitempty" json:"target,omitempty"`
	FilesToModify []string `yaml:"files_to_modify,omitempty" json:"files_to_modify,omitempty"`
}

// Document is the implementation plan artifact.
type Document struct {
	Overview string `yaml:"overview,omitempty" json:"overview,omitempty"`
	Steps    []Step `yaml:"steps" json:"steps"`
}

// Pending returns the steps whose checklist id is not in completed, in the
// original order. Steps with an empty checklist id are always pending: with
// nothing durable to match against, re-attempting is the safe direction.
func (d *Document) Pending(completed map[string]bool) []Step {
	var pending []Step
	for _, s := range d.Steps {
		if s.ChecklistID != "" && completed[s.ChecklistID] {
			continue
		}
		pending = append(pending, s)
	}
	return pending
}
