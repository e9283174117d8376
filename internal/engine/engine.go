// Package engine walks a workflow's phases against a stage: document
// generation, project scanning, the review loop, and the step execution
// loop with its retry and dependency-blocking rules.
package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pablasso/stagehand/internal/bridge"
	"github.com/pablasso/stagehand/internal/checklist"
	"github.com/pablasso/stagehand/internal/config"
	"github.com/pablasso/stagehand/internal/llm"
	"github.com/pablasso/stagehand/internal/logging"
	"github.com/pablasso/stagehand/internal/plan"
	"github.com/pablasso/stagehand/internal/progress"
	"github.com/pablasso/stagehand/internal/scanner"
	"github.com/pablasso/stagehand/internal/stage"
	"github.com/pablasso/stagehand/internal/workflow"
)

// Engine executes workflow phases for one stage at a time.
type Engine struct {
	client   llm.Client
	bridge   *bridge.Bridge
	scanner  *scanner.Scanner
	gen      *generator
	cfg      config.PipelineConfig
	progress progress.Sink
	log      *logging.Logger
}

// New creates an Engine. sink and logger may be nil.
func New(client llm.Client, b *bridge.Bridge, sc *scanner.Scanner, cfg *config.Config, sink progress.Sink, logger *logging.Logger) *Engine {
	if sink == nil {
		sink = progress.Nop{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{
		client:  client,
		bridge:  b,
		scanner: sc,
		gen: &generator{
			client:         client,
			tempAnalysis:   cfg.LLM.TemperatureAnalysis,
			tempGeneration: cfg.LLM.TemperatureGeneration,
		},
		cfg:      cfg.Pipeline,
		progress: sink,
		log:      logger,
	}
}

// documents is the state accumulated across phases of one run.
type documents struct {
	parsed       *ParsedRequest
	digest       *Digest
	cl           *checklist.Checklist
	wt           *Walkthrough
	pl           *plan.Document
	fileTree     string
	fileContents string
}

// Run executes every phase of wf against st, in order. Non-implement phase
// errors abort the run; the caller decides the stage's terminal status
// from the returned result or error.
func (e *Engine) Run(ctx context.Context, wf workflow.Def, st *stage.Stage, query, priorContext, projectDir string) (*RunResult, error) {
	result := &RunResult{Workflow: wf.Name, Status: stage.StatusCompleted, StageNum: st.Num()}
	docs := &documents{}

	for _, phase := range wf.Phases {
		e.progress.PhaseStart(wf.Name, phase.Name)
		e.log.Info("phase", "workflow", wf.Name, "phase", phase.Name)

		switch phase.Name {
		case workflow.PhaseParseRequest:
			parsed, err := e.gen.parseRequest(ctx, query, priorContext)
			if err != nil {
				return nil, err
			}
			docs.parsed = parsed
			if err := st.SaveArtifact("parsed_request.yaml", parsed); err != nil {
				return nil, err
			}
			if len(parsed.ClarificationNeeded) > 0 {
				result.Status = StatusNeedsClarification
				result.Questions = parsed.ClarificationNeeded
				result.Message = "Clarification needed before work can start."
				return result, nil
			}

		case workflow.PhaseScanProject:
			if err := e.scanProject(st, docs, query, projectDir, 0); err != nil {
				return nil, err
			}

		case workflow.PhaseScanAffected:
			if err := e.scanProject(st, docs, query, projectDir, 20); err != nil {
				return nil, err
			}

		case workflow.PhaseGenerateDigest:
			digest, err := e.gen.generateDigest(ctx, docs.fileTree, docs.fileContents, docs.parsed)
			if err != nil {
				return nil, err
			}
			docs.digest = digest
			if err := st.SaveArtifact("project_digest.yaml", digest); err != nil {
				return nil, err
			}

		case workflow.PhaseGenerateChecklist:
			cl, err := e.gen.generateChecklist(ctx, docs.digest, docs.parsed, "")
			if err != nil {
				return nil, err
			}
			docs.cl = cl
			if err := e.saveChecklist(st, cl); err != nil {
				return nil, err
			}

		case workflow.PhaseGenerateWalkthrough:
			wt, err := e.gen.generateWalkthrough(ctx, docs.digest, docs.parsed, docs.cl, "")
			if err != nil {
				return nil, err
			}
			docs.wt = wt
			if err := e.saveWalkthrough(st, wt); err != nil {
				return nil, err
			}

		case workflow.PhaseGeneratePlan:
			if err := e.generatePlanPhase(ctx, wf, st, docs, query, priorContext, result); err != nil {
				return nil, err
			}

		case workflow.PhaseReview:
			if err := e.runReview(ctx, wf, st, docs); err != nil {
				return nil, err
			}

		case workflow.PhaseImplement:
			steps := []plan.Step{}
			if docs.pl != nil {
				steps = docs.pl.Steps
			}
			meta := stage.LogMeta{Workflow: wf.Name, StartedAt: time.Now().UTC().Format(time.RFC3339)}
			stats, err := e.executeSteps(ctx, st, steps, docs.cl, docs.digest, projectDir, meta, nil)
			if err != nil {
				return nil, err
			}
			result.Implementation = stats
			result.Status = e.classifyRun(stats)

		case workflow.PhaseVerify:
			// Stats are already folded into the result; nothing to verify
			// beyond what the execution log records.

		case workflow.PhaseInvestigate:
			inv, err := e.gen.investigate(ctx, query, docs.parsed, docs.fileTree)
			if err != nil {
				return nil, err
			}
			if err := st.SaveArtifact("investigation.yaml", inv); err != nil {
				return nil, err
			}
			if err := st.SaveArtifact("investigation.md", inv.Report); err != nil {
				return nil, err
			}

		case workflow.PhaseAnalyze, workflow.PhaseResearch, workflow.PhaseSynthesize, workflow.PhaseGenerateReport:
			report, err := e.runReportPhase(ctx, phase.Name, wf.Name, query, docs, priorContext, projectDir)
			if err != nil {
				return nil, err
			}
			if err := st.SaveArtifact(reportArtifactName(phase.Name, wf.Name), report); err != nil {
				return nil, err
			}
			if phase.Name == workflow.PhaseGenerateReport {
				result.Message = report
			}

		case workflow.PhaseRespond:
			// Chat answers inline through the router; a stage-bound respond
			// phase has nothing to persist.

		default:
			return nil, fmt.Errorf("unknown phase %q in workflow %q", phase.Name, wf.Name)
		}
	}

	if docs.digest != nil {
		result.Summary = docs.digest.Summary
		result.Stack = docs.digest.Stack
		result.Issues = docs.digest.Issues
	}
	return result, nil
}

// ResumePending finishes a previously interrupted stage in place: only the
// steps whose checklist ids are not yet completed run, and earlier log
// entries are preserved in the checkpoint file.
func (e *Engine) ResumePending(ctx context.Context, st *stage.Stage, projectDir string) (*RunResult, error) {
	result := &RunResult{Workflow: "resume", StageNum: st.Num()}

	pl, err := e.loadPlanArtifact(st)
	if err != nil {
		return nil, err
	}
	if pl == nil {
		return nil, fmt.Errorf("stage-%d has no plan to resume", st.Num())
	}

	completed := map[string]bool{}
	var prior []stage.LogEntry
	logDoc, err := st.LoadExecutionLog()
	if err != nil {
		return nil, err
	}
	if logDoc != nil {
		completed = logDoc.CompletedStepIDs()
		prior = logDoc.Steps
	}

	pending := pl.Pending(completed)
	if len(pending) == 0 {
		result.Status = stage.StatusCompleted
		result.Message = "All steps already completed."
		return result, nil
	}
	e.log.Info("resuming stage", "stage", st.Num(), "pending", len(pending), "total", len(pl.Steps))

	var cl checklist.Checklist
	if err := st.LoadArtifact("checklist.yaml", &cl); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	var digest Digest
	if err := st.LoadArtifact("project_digest.yaml", &digest); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	meta := stage.LogMeta{
		Workflow:  st.Workflow(),
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Resumed:   true,
	}
	stats, err := e.executeSteps(ctx, st, pending, &cl, &digest, projectDir, meta, prior)
	if err != nil {
		return nil, err
	}
	result.Implementation = stats
	result.Status = e.classifyRun(stats)
	return result, nil
}

// Chat answers a free-form question through the tool loop, optionally
// scoped to the active project.
func (e *Engine) Chat(ctx context.Context, text, projectDir string) (string, error) {
	e.bridge.Append(llm.Message{Role: llm.RoleUser, Content: text})
	return e.bridge.Step(ctx, projectDir)
}

// ResetConversation drops the accumulated tool-loop history.
func (e *Engine) ResetConversation() {
	e.bridge.Reset()
}

func (e *Engine) scanProject(st *stage.Stage, docs *documents, query, projectDir string, limit int) error {
	if projectDir == "" {
		return nil
	}
	if _, err := os.Stat(projectDir); err != nil {
		return nil
	}
	files, err := e.scanner.Scan(projectDir)
	if err != nil {
		return err
	}
	prioritized := e.scanner.Prioritize(files, query)
	if limit > 0 && len(prioritized) > limit {
		prioritized = prioritized[:limit]
	}

	if limit > 0 {
		docs.fileTree = scanner.FileTree(prioritized)
		paths := make([]string, len(prioritized))
		for i, f := range prioritized {
			paths[i] = f.Path
		}
		if err := st.SaveArtifact("affected_files.yaml", map[string][]string{"files": paths}); err != nil {
			return err
		}
	} else {
		docs.fileTree = scanner.FileTree(files)
		if err := st.SaveArtifact("scan_results.yaml", map[string]any{
			"files_count": len(files),
			"file_tree":   docs.fileTree,
		}); err != nil {
			return err
		}
	}

	contents := e.scanner.ReadFiles(prioritized, 0)
	var parts []string
	for _, f := range prioritized {
		if body, ok := contents[f.Path]; ok {
			parts = append(parts, fmt.Sprintf("--- %s ---\n%s", f.Path, body))
		}
	}
	docs.fileContents = strings.Join(parts, "\n\n")
	return nil
}

func (e *Engine) generatePlanPhase(ctx context.Context, wf workflow.Def, st *stage.Stage, docs *documents, query, priorContext string, result *RunResult) error {
	var (
		pl  *plan.Document
		err error
	)
	if wf.Name == "build" {
		pl, err = e.gen.generatePlan(ctx, docs.digest, docs.parsed, docs.cl, docs.wt, "")
	} else {
		pl, err = e.gen.generateLightPlan(ctx, wf.Name, query, docs.parsed, docs.fileTree, priorContext)
	}
	if err != nil {
		return err
	}
	docs.pl = pl

	if wf.Name == "build" && docs.cl != nil && docs.wt != nil {
		if issues := validateDocuments(docs.cl, docs.wt, pl); len(issues) > 0 {
			e.log.Warn("document validation issues", "issues", strings.Join(issues, "; "))
			result.Warnings = append(result.Warnings, issues...)
		}
	}
	if err := e.savePlan(st, wf.Name, pl); err != nil {
		return err
	}
	return st.SavePlan(trackingPlan(wf, pl))
}

// trackingPlan builds the stage-root phase/step tree for a freshly
// generated plan.
func trackingPlan(wf workflow.Def, pl *plan.Document) *stage.Plan {
	p := &stage.Plan{Workflow: wf.Name}
	for _, ph := range wf.Phases {
		p.Phases = append(p.Phases, stage.PlanPhase{Name: ph.Name, Description: ph.Description, Status: stage.PlanPending})
	}
	for _, s := range pl.Steps {
		p.Steps = append(p.Steps, stage.PlanStep{StepNumber: s.StepNumber, Description: s.Description, Status: stage.PlanPending})
	}
	return p
}

func (e *Engine) runReportPhase(ctx context.Context, phaseName, workflowName, query string, docs *documents, priorContext, projectDir string) (string, error) {
	var prompt string
	switch {
	case phaseName == workflow.PhaseAnalyze:
		prompt = fmt.Sprintf(
			"Deeply analyze the project.\nRequest: %s\n"+
				"Project structure:\n%s\n"+
				"Key file contents:\n%s\n"+
				"Parsed request: %s\n\n"+
				"Cover: stack, architecture, entry points, data flows, technical debt, recommendations.",
			query, truncate(docs.fileTree, 4000), truncate(docs.fileContents, 8000), compactJSON(docs.parsed),
		)
	case phaseName == workflow.PhaseResearch:
		prompt = fmt.Sprintf(
			"Research the topic and gather information.\nRequest: %s\n"+
				"Parsed request: %s\n%s\n\n"+
				"Use web_fetch to collect data. For each source give the URL and a short summary.",
			query, compactJSON(docs.parsed), contextBlock(priorContext),
		)
	case phaseName == workflow.PhaseGenerateReport:
		prompt = fmt.Sprintf(
			"Write the final %s report.\nRequest: %s\n"+
				"Parsed request: %s\n"+
				"Project structure:\n%s\n%s\n\n"+
				"Format: markdown with sections, findings and recommendations.",
			workflowName, query, compactJSON(docs.parsed), truncate(docs.fileTree, 3000), contextBlock(priorContext),
		)
	default:
		prompt = fmt.Sprintf(
			"Perform the '%s' phase of the '%s' workflow.\n\nRequest: %s\n"+
				"Parsed request: %s\n"+
				"Project structure:\n%s\n%s",
			phaseName, workflowName, query, compactJSON(docs.parsed), truncate(docs.fileTree, 3000), contextBlock(priorContext),
		)
	}

	e.bridge.Append(llm.Message{Role: llm.RoleUser, Content: prompt})
	return e.bridge.Step(ctx, projectDir)
}

func reportArtifactName(phaseName, workflowName string) string {
	switch phaseName {
	case workflow.PhaseAnalyze:
		return "analysis.md"
	case workflow.PhaseResearch:
		return "sources.yaml"
	case workflow.PhaseSynthesize:
		return "synthesis.md"
	case workflow.PhaseGenerateReport:
		if workflowName == "analyze" {
			return "analysis_report.md"
		}
		return workflowName + "_report.md"
	}
	return phaseName + ".md"
}

// planArtifactName is the per-workflow name of the plan document.
func planArtifactName(workflowName string) string {
	switch workflowName {
	case "build":
		return "implementation_plan.yaml"
	case "modify":
		return "change_plan.yaml"
	case "fix":
		return "fix_plan.yaml"
	}
	return workflowName + "_plan.yaml"
}

func (e *Engine) loadPlanArtifact(st *stage.Stage) (*plan.Document, error) {
	for _, name := range []string{"implementation_plan.yaml", planArtifactName(st.Workflow())} {
		if !st.HasArtifact(name) {
			continue
		}
		var pl plan.Document
		if err := st.LoadArtifact(name, &pl); err != nil {
			return nil, err
		}
		return &pl, nil
	}
	return nil, nil
}

func (e *Engine) saveChecklist(st *stage.Stage, cl *checklist.Checklist) error {
	if err := st.SaveArtifact("checklist.yaml", cl); err != nil {
		return err
	}
	return st.SaveArtifact("checklist.md", renderChecklistMarkdown(cl))
}

func (e *Engine) saveWalkthrough(st *stage.Stage, wt *Walkthrough) error {
	if err := st.SaveArtifact("walkthrough.yaml", wt); err != nil {
		return err
	}
	return st.SaveArtifact("walkthrough.md", renderWalkthroughMarkdown(wt))
}

func (e *Engine) savePlan(st *stage.Stage, workflowName string, pl *plan.Document) error {
	if err := st.SaveArtifact(planArtifactName(workflowName), pl); err != nil {
		return err
	}
	base := strings.TrimSuffix(planArtifactName(workflowName), ".yaml")
	return st.SaveArtifact(base+".md", renderPlanMarkdown(pl))
}
