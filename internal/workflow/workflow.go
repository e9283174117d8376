// Package workflow defines the catalog of workflows the agent can run and
// the classifier that maps a free-form user request to one of them.
//
// A workflow is an ordered list of phases. Phases are declarative: the
// engine decides how each one executes, the definition only states what
// exists, what may be skipped, and which artifacts a phase produces.
package workflow

import (
	"sort"
	"strings"
)

// Phase is one sequential unit of a workflow.
type Phase struct {
	Name        string
	Description string
	Skippable   bool
	RequiresLLM bool
	// RequiresTools marks phases that run the tool loop against the project.
	RequiresTools bool
	Artifacts     []string
}

// Def describes a complete workflow.
type Def struct {
	Name        string
	Description string
	Phases      []Phase
	// CreatesStage is false for workflows that answer inline (chat) or
	// operate on an existing stage (resume).
	CreatesStage      bool
	ArtifactsProduced []string
}

// Phase names shared across workflows.
const (
	PhaseParseRequest        = "parse_request"
	PhaseScanProject         = "scan_project"
	PhaseScanAffected        = "scan_affected"
	PhaseGenerateDigest      = "generate_digest"
	PhaseGenerateChecklist   = "generate_checklist"
	PhaseGenerateWalkthrough = "generate_walkthrough"
	PhaseGeneratePlan        = "generate_plan"
	PhaseInvestigate         = "investigate"
	PhaseAnalyze             = "analyze"
	PhaseResearch            = "research"
	PhaseSynthesize          = "synthesize"
	PhaseGenerateReport      = "generate_report"
	PhaseReview              = "review"
	PhaseImplement           = "implement"
	PhaseVerify              = "verify"
	PhaseRespond             = "respond"
	PhaseLoadPrevious        = "load_previous"
	PhaseRecalculate         = "recalculate"
)

var build = Def{
	Name:        "build",
	Description: "Create a new project or a large feature with a full planning cycle",
	Phases: []Phase{
		{Name: PhaseParseRequest, Description: "Break the request into goals, actions and constraints", RequiresLLM: true, Artifacts: []string{"parsed_request.yaml"}},
		{Name: PhaseScanProject, Description: "Scan the project structure and files", RequiresTools: true, Skippable: true, Artifacts: []string{"scan_results.yaml"}},
		{Name: PhaseGenerateDigest, Description: "Produce a project digest", RequiresLLM: true, Artifacts: []string{"project_digest.yaml"}},
		{Name: PhaseGenerateChecklist, Description: "Generate atomic tasks with dependencies", RequiresLLM: true, Artifacts: []string{"checklist.yaml", "checklist.md"}},
		{Name: PhaseGenerateWalkthrough, Description: "Describe the planned changes block by block", RequiresLLM: true, Artifacts: []string{"walkthrough.yaml", "walkthrough.md"}},
		{Name: PhaseGeneratePlan, Description: "Implementation steps tied to checklist tasks", RequiresLLM: true, Artifacts: []string{"implementation_plan.yaml", "implementation_plan.md"}},
		{Name: PhaseReview, Description: "Wait for user feedback on the plan", Skippable: true},
		{Name: PhaseImplement, Description: "Execute the plan steps in order", RequiresTools: true},
		{Name: PhaseVerify, Description: "Check results and compute statistics"},
	},
	CreatesStage: true,
	ArtifactsProduced: []string{
		"parsed_request.yaml", "project_digest.yaml",
		"checklist.yaml", "walkthrough.yaml", "implementation_plan.yaml",
	},
}

var modify = Def{
	Name:        "modify",
	Description: "Targeted change to existing code without large-scale planning",
	Phases: []Phase{
		{Name: PhaseParseRequest, Description: "Break down the request", RequiresLLM: true, Artifacts: []string{"parsed_request.yaml"}},
		{Name: PhaseScanAffected, Description: "Scan the affected files", RequiresTools: true, Artifacts: []string{"affected_files.yaml"}},
		{Name: PhaseGeneratePlan, Description: "Short change plan", RequiresLLM: true, Artifacts: []string{"change_plan.yaml", "change_plan.md"}},
		{Name: PhaseImplement, Description: "Execute the steps", RequiresTools: true},
		{Name: PhaseVerify, Description: "Check the result"},
	},
	CreatesStage:      true,
	ArtifactsProduced: []string{"parsed_request.yaml", "affected_files.yaml", "change_plan.yaml"},
}

var fix = Def{
	Name:        "fix",
	Description: "Fix a bug or error, including root cause investigation",
	Phases: []Phase{
		{Name: PhaseParseRequest, Description: "Break down the problem description", RequiresLLM: true, Artifacts: []string{"parsed_request.yaml"}},
		{Name: PhaseInvestigate, Description: "Find the cause, analyze the affected modules", RequiresLLM: true, RequiresTools: true, Artifacts: []string{"investigation.yaml", "investigation.md"}},
		{Name: PhaseGeneratePlan, Description: "Fix plan", RequiresLLM: true, Artifacts: []string{"fix_plan.yaml", "fix_plan.md"}},
		{Name: PhaseImplement, Description: "Apply the fix", RequiresTools: true},
		{Name: PhaseVerify, Description: "Verify the bug is gone"},
	},
	CreatesStage:      true,
	ArtifactsProduced: []string{"parsed_request.yaml", "investigation.yaml", "fix_plan.yaml"},
}

var analyze = Def{
	Name:        "analyze",
	Description: "Analyze the project or a part of it without making changes",
	Phases: []Phase{
		{Name: PhaseParseRequest, Description: "Determine the scope and depth of analysis", RequiresLLM: true, Artifacts: []string{"parsed_request.yaml"}},
		{Name: PhaseScanProject, Description: "Scan the project", RequiresTools: true, Artifacts: []string{"scan_results.yaml"}},
		{Name: PhaseAnalyze, Description: "Deep analysis using tools", RequiresLLM: true, RequiresTools: true},
		{Name: PhaseGenerateReport, Description: "Produce the report", RequiresLLM: true, Artifacts: []string{"analysis_report.md"}},
	},
	CreatesStage:      true,
	ArtifactsProduced: []string{"parsed_request.yaml", "scan_results.yaml", "analysis_report.md"},
}

var research = Def{
	Name:        "research",
	Description: "Research a topic or technology, gathering information",
	Phases: []Phase{
		{Name: PhaseParseRequest, Description: "Determine the topic and criteria", RequiresLLM: true, Artifacts: []string{"parsed_request.yaml"}},
		{Name: PhaseResearch, Description: "Gather information from web sources and documentation", RequiresLLM: true, RequiresTools: true, Artifacts: []string{"sources.yaml"}},
		{Name: PhaseSynthesize, Description: "Analyze and compare the findings", RequiresLLM: true},
		{Name: PhaseGenerateReport, Description: "Produce the report with recommendations", RequiresLLM: true, Artifacts: []string{"research_report.md"}},
	},
	CreatesStage:      true,
	ArtifactsProduced: []string{"parsed_request.yaml", "sources.yaml", "research_report.md"},
}

var chat = Def{
	Name:        "chat",
	Description: "Simple question and answer without planning or file operations",
	Phases: []Phase{
		{Name: PhaseRespond, Description: "Direct answer", RequiresLLM: true},
	},
}

var resume = Def{
	Name:        "resume",
	Description: "Resume an interrupted stage",
	Phases: []Phase{
		{Name: PhaseLoadPrevious, Description: "Read the interrupted stage"},
		{Name: PhaseRecalculate, Description: "Recompute the remaining steps"},
		{Name: PhaseImplement, Description: "Continue execution from the stopping point", RequiresTools: true},
		{Name: PhaseVerify, Description: "Check the final result"},
	},
}

// Registry holds the workflow catalog.
type Registry struct {
	workflows map[string]Def
}

// NewRegistry returns the registry populated with the built-in workflows.
func NewRegistry() *Registry {
	r := &Registry{workflows: make(map[string]Def)}
	for _, wf := range []Def{build, modify, fix, analyze, research, chat, resume} {
		r.workflows[wf.Name] = wf
	}
	return r
}

// Get returns the named workflow and whether it exists.
func (r *Registry) Get(name string) (Def, bool) {
	wf, ok := r.workflows[name]
	return wf, ok
}

// Names returns all workflow names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DescriptionsForLLM lists the classifiable workflows as prompt lines.
// chat and resume are excluded: chat is the classifier's own fallback and
// resume is matched heuristically before the LLM is consulted.
func (r *Registry) DescriptionsForLLM() string {
	var lines []string
	for _, name := range r.Names() {
		if name == "chat" || name == "resume" {
			continue
		}
		lines = append(lines, "- "+name+": "+r.workflows[name].Description)
	}
	return strings.Join(lines, "\n")
}
