package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Plan is the stage-root tracking document (plan.yaml next to meta.yaml):
// the workflow's phase tree plus the implementation steps, kept separate
// from the artifacts so a human can see the run's shape at a glance.
type Plan struct {
	Workflow string      `yaml:"workflow"`
	Phases   []PlanPhase `yaml:"phases"`
	Steps    []PlanStep  `yaml:"steps,omitempty"`
}

// PlanPhase is one phase of the tracked workflow.
type PlanPhase struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Status      string `yaml:"status"`
}

// PlanPending is the initial status for tracked phases and steps.
const PlanPending = "pending"

// PlanStep is one implementation step of the tracked plan.
type PlanStep struct {
	StepNumber  int    `yaml:"step_number"`
	Description string `yaml:"description"`
	Status      string `yaml:"status"`
}

// SavePlan writes the tracking document as plan.yaml and a plan.md
// rendering at the stage root.
func (s *Stage) SavePlan(p *Plan) error {
	if err := writeYAML(filepath.Join(s.Dir, "plan.yaml"), p); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(s.Dir, "plan.md"), []byte(renderPlanTracking(p)))
}

// LoadPlan reads the tracking document. Returns nil (no error) when the
// stage has none.
func (s *Stage) LoadPlan() (*Plan, error) {
	var p Plan
	if err := readYAML(filepath.Join(s.Dir, "plan.yaml"), &p); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func renderPlanTracking(p *Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s plan\n\n## Phases\n", p.Workflow)
	for _, ph := range p.Phases {
		marker := " "
		if ph.Status == StepCompleted {
			marker = "x"
		}
		fmt.Fprintf(&b, "\n- [%s] %s", marker, ph.Name)
		if ph.Description != "" {
			fmt.Fprintf(&b, ": %s", ph.Description)
		}
	}
	if len(p.Steps) > 0 {
		b.WriteString("\n\n## Steps\n")
		for _, st := range p.Steps {
			marker := " "
			if st.Status == StepCompleted {
				marker = "x"
			}
			fmt.Fprintf(&b, "\n- [%s] Step %d: %s", marker, st.StepNumber, st.Description)
		}
	}
	b.WriteString("\n")
	return b.String()
}
