package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pablasso/stagehand/internal/checklist"
	"github.com/pablasso/stagehand/internal/llm"
	"github.com/pablasso/stagehand/internal/plan"
	"github.com/pablasso/stagehand/internal/stage"
	"github.com/pablasso/stagehand/internal/util"
)

// compactJSON inlines a document into a prompt. Marshal failures cannot
// happen for these types; an empty object is the safe fallback regardless.
func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ParsedRequest is the structured breakdown of the user's request.
type ParsedRequest struct {
	Goal                string   `yaml:"goal" json:"goal"`
	Actions             []string `yaml:"actions,omitempty" json:"actions,omitempty"`
	Constraints         []string `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	ClarificationNeeded []string `yaml:"clarification_needed,omitempty" json:"clarification_needed,omitempty"`
}

// Digest is the condensed description of the project under work.
type Digest struct {
	Name        string   `yaml:"name,omitempty" json:"name,omitempty"`
	Summary     string   `yaml:"summary,omitempty" json:"summary,omitempty"`
	Stack       []string `yaml:"stack,omitempty" json:"stack,omitempty"`
	EntryPoints []string `yaml:"entry_points,omitempty" json:"entry_points,omitempty"`
	KeyFiles    []string `yaml:"key_files,omitempty" json:"key_files,omitempty"`
	Issues      []string `yaml:"issues,omitempty" json:"issues,omitempty"`
}

// WalkthroughFile describes one file touched by a walkthrough block.
type WalkthroughFile struct {
	Operation          string `yaml:"operation" json:"operation"`
	Path               string `yaml:"path" json:"path"`
	ChangesDescription string `yaml:"changes_description,omitempty" json:"changes_description,omitempty"`
}

// WalkthroughBlock groups related changes and ties them to checklist ids.
type WalkthroughBlock struct {
	Name         string            `yaml:"name" json:"name"`
	Purpose      string            `yaml:"purpose,omitempty" json:"purpose,omitempty"`
	Files        []WalkthroughFile `yaml:"files,omitempty" json:"files,omitempty"`
	ChecklistIDs []string          `yaml:"checklist_ids,omitempty" json:"checklist_ids,omitempty"`
	Risks        []string          `yaml:"risks,omitempty" json:"risks,omitempty"`
}

// Walkthrough is the block-by-block change description artifact.
type Walkthrough struct {
	Title   string             `yaml:"title,omitempty" json:"title,omitempty"`
	Summary string             `yaml:"summary,omitempty" json:"summary,omitempty"`
	Blocks  []WalkthroughBlock `yaml:"blocks" json:"blocks"`
}

// Investigation is the root-cause analysis artifact of the fix workflow.
type Investigation struct {
	RootCause     string   `yaml:"root_cause" json:"root_cause"`
	AffectedFiles []string `yaml:"affected_files,omitempty" json:"affected_files,omitempty"`
	FixStrategy   string   `yaml:"fix_strategy,omitempty" json:"fix_strategy,omitempty"`
	Report        string   `yaml:"report,omitempty" json:"report,omitempty"`
}

// ReviewDecision is the model's reading of review feedback.
type ReviewDecision struct {
	DocumentsToRegenerate []string `yaml:"documents_to_regenerate" json:"documents_to_regenerate"`
	Summary               string   `yaml:"summary,omitempty" json:"summary,omitempty"`
}

// generator produces the planning documents through JSON-constrained LLM
// calls. Prompts inline the accumulated documents; responses are validated
// by unmarshaling into the typed artifact.
type generator struct {
	client         llm.Client
	tempAnalysis   float64
	tempGeneration float64
}

func (g *generator) parseRequest(ctx context.Context, request, projectContext string) (*ParsedRequest, error) {
	if projectContext != "" {
		request = fmt.Sprintf("Request: %s\n\nProject context:\n%s", request, projectContext)
	}
	prompt := fmt.Sprintf(
		"Break the user's request into structured parts.\n\n"+
			"Request:\n%s\n\n"+
			"Return ONLY JSON: {\"goal\": \"...\", \"actions\": [...], \"constraints\": [...], "+
			"\"clarification_needed\": [...]}\n"+
			"clarification_needed lists questions that MUST be answered before work can start; "+
			"leave it empty when the request is actionable as-is.",
		request,
	)
	var out ParsedRequest
	if err := llm.CompleteJSON(ctx, g.client, prompt, g.tempAnalysis, &out); err != nil {
		return nil, fmt.Errorf("parse_request: %w", err)
	}
	return &out, nil
}

func (g *generator) generateDigest(ctx context.Context, fileTree, fileContents string, parsed *ParsedRequest) (*Digest, error) {
	prompt := fmt.Sprintf(
		"Produce a concise digest of this project.\n\n"+
			"File tree:\n%s\n\n"+
			"Key file contents:\n%s\n\n"+
			"Parsed request: %s\n\n"+
			"Return ONLY JSON: {\"name\", \"summary\", \"stack\": [...], "+
			"\"entry_points\": [...], \"key_files\": [...], \"issues\": [...]}",
		fileTree, fileContents, compactJSON(parsed),
	)
	var out Digest
	if err := llm.CompleteJSON(ctx, g.client, prompt, g.tempAnalysis, &out); err != nil {
		return nil, fmt.Errorf("generate_digest: %w", err)
	}
	return &out, nil
}

func (g *generator) generateChecklist(ctx context.Context, digest *Digest, parsed *ParsedRequest, comments string) (*checklist.Checklist, error) {
	prompt := fmt.Sprintf(
		"Generate an atomic task checklist for this work.\n\n"+
			"Project digest: %s\n"+
			"Parsed request: %s\n%s\n"+
			"Each task: {\"id\": \"t01\", \"category\", \"title\", \"depends_on\": [ids]}\n"+
			"depends_on may only reference ids in this same checklist.\n"+
			"Return ONLY JSON: {\"summary\": \"...\", \"checklist\": [tasks]}",
		compactJSON(digest), compactJSON(parsed), reviewBlock(comments),
	)
	var out checklist.Checklist
	if err := llm.CompleteJSON(ctx, g.client, prompt, g.tempGeneration, &out); err != nil {
		return nil, fmt.Errorf("generate_checklist: %w", err)
	}
	// Models occasionally drop ids; assign positional ones so dependency
	// tracking and the plan mapping stay usable.
	for i := range out.Tasks {
		if out.Tasks[i].ID == "" {
			out.Tasks[i].ID = util.GenerateTaskID(i)
		}
	}
	return &out, nil
}

func (g *generator) generateWalkthrough(ctx context.Context, digest *Digest, parsed *ParsedRequest, cl *checklist.Checklist, comments string) (*Walkthrough, error) {
	prompt := fmt.Sprintf(
		"Describe the planned changes block by block.\n\n"+
			"Project digest: %s\n"+
			"Parsed request: %s\n"+
			"Checklist: %s\n%s\n"+
			"Each block: {\"name\", \"purpose\", \"files\": [{\"operation\", \"path\", "+
			"\"changes_description\"}], \"checklist_ids\": [...], \"risks\": [...]}\n"+
			"Every checklist id must appear in some block's checklist_ids.\n"+
			"Return ONLY JSON: {\"title\", \"summary\", \"blocks\": [...]}",
		compactJSON(digest), compactJSON(parsed), compactJSON(cl), reviewBlock(comments),
	)
	var out Walkthrough
	if err := llm.CompleteJSON(ctx, g.client, prompt, g.tempGeneration, &out); err != nil {
		return nil, fmt.Errorf("generate_walkthrough: %w", err)
	}
	return &out, nil
}

func (g *generator) generatePlan(ctx context.Context, digest *Digest, parsed *ParsedRequest, cl *checklist.Checklist, wt *Walkthrough, comments string) (*plan.Document, error) {
	prompt := fmt.Sprintf(
		"Produce the ordered implementation plan.\n\n"+
			"Project digest: %s\n"+
			"Parsed request: %s\n"+
			"Checklist: %s\n"+
			"Walkthrough: %s\n%s\n"+
			"Each step: {\"step_number\", \"checklist_id\", \"description\", \"target\", "+
			"\"files_to_modify\": [...]}\n"+
			"Every checklist id must be covered by at least one step.\n"+
			"Return ONLY JSON: {\"overview\", \"steps\": [...]}",
		compactJSON(digest), compactJSON(parsed), compactJSON(cl), compactJSON(wt), reviewBlock(comments),
	)
	var out plan.Document
	if err := llm.CompleteJSON(ctx, g.client, prompt, g.tempGeneration, &out); err != nil {
		return nil, fmt.Errorf("generate_plan: %w", err)
	}
	return &out, nil
}

// generateLightPlan is the short planning path for modify and fix: no
// checklist or walkthrough, just steps.
func (g *generator) generateLightPlan(ctx context.Context, workflowName, query string, parsed *ParsedRequest, fileTree, priorContext string) (*plan.Document, error) {
	prompt := fmt.Sprintf(
		"Create a short plan for a '%s' task.\n\n"+
			"Request: %s\n"+
			"Parsed request: %s\n"+
			"Project files:\n%s\n%s\n"+
			"Return ONLY JSON with a 'steps' array.\n"+
			"Each step: {\"step_number\", \"description\", \"files_to_modify\", \"checklist_id\"}",
		workflowName, query, compactJSON(parsed), truncate(fileTree, 2000), contextBlock(priorContext),
	)
	var out plan.Document
	if err := llm.CompleteJSON(ctx, g.client, prompt, g.tempGeneration, &out); err != nil {
		return nil, fmt.Errorf("generate_plan (%s): %w", workflowName, err)
	}
	return &out, nil
}

func (g *generator) investigate(ctx context.Context, query string, parsed *ParsedRequest, fileTree string) (*Investigation, error) {
	prompt := fmt.Sprintf(
		"Investigate the reported problem.\n\n"+
			"Description: %s\n"+
			"Parsed request: %s\n"+
			"Project structure:\n%s\n\n"+
			"Return ONLY JSON: {\"root_cause\", \"affected_files\": [...], \"fix_strategy\", \"report\"}",
		query, compactJSON(parsed), truncate(fileTree, 3000),
	)
	var out Investigation
	if err := llm.CompleteJSON(ctx, g.client, prompt, g.tempAnalysis, &out); err != nil {
		return nil, fmt.Errorf("investigate: %w", err)
	}
	return &out, nil
}

func (g *generator) parseReviewComments(ctx context.Context, comments string, cl *checklist.Checklist, wt *Walkthrough, pl *plan.Document) (*ReviewDecision, error) {
	prompt := fmt.Sprintf(
		"The user reviewed the planning documents and left comments. Decide "+
			"which documents must be regenerated.\n\n"+
			"Comments:\n%s\n\n"+
			"Checklist: %s\n"+
			"Walkthrough: %s\n"+
			"Plan: %s\n\n"+
			"Return ONLY JSON: {\"documents_to_regenerate\": "+
			"[\"checklist\"|\"walkthrough\"|\"plan\"], \"summary\": \"...\"}",
		comments, compactJSON(cl), compactJSON(wt), compactJSON(pl),
	)
	var out ReviewDecision
	if err := llm.CompleteJSON(ctx, g.client, prompt, g.tempAnalysis, &out); err != nil {
		return nil, fmt.Errorf("parse review comments: %w", err)
	}
	return &out, nil
}

// validateDocuments cross-checks that every checklist id is covered by the
// walkthrough and the plan. Gaps are warnings, not errors.
func validateDocuments(cl *checklist.Checklist, wt *Walkthrough, pl *plan.Document) []string {
	ids := make(map[string]bool, len(cl.Tasks))
	for _, t := range cl.Tasks {
		ids[t.ID] = true
	}

	var issues []string
	wtCovered := make(map[string]bool)
	for _, block := range wt.Blocks {
		for _, id := range block.ChecklistIDs {
			wtCovered[id] = true
		}
	}
	if missing := uncovered(ids, wtCovered); len(missing) > 0 {
		issues = append(issues, "checklist ids not covered by walkthrough: "+strings.Join(missing, ", "))
	}

	planCovered := make(map[string]bool)
	for _, step := range pl.Steps {
		if step.ChecklistID != "" {
			planCovered[step.ChecklistID] = true
		}
	}
	if missing := uncovered(ids, planCovered); len(missing) > 0 {
		issues = append(issues, "checklist ids not covered by plan: "+strings.Join(missing, ", "))
	}
	return issues
}

func uncovered(ids, covered map[string]bool) []string {
	var missing []string
	for id := range ids {
		if !covered[id] {
			missing = append(missing, id)
		}
	}
	// Map order is random; keep the message stable.
	sort.Strings(missing)
	return missing
}

// Markdown renderings of the planning documents, written next to the YAML
// so users can read and annotate them.

func renderChecklistMarkdown(cl *checklist.Checklist) string {
	var b strings.Builder
	b.WriteString("# Checklist\n")
	for _, t := range cl.Tasks {
		marker := " "
		if t.Status == checklist.TaskCompleted {
			marker = "x"
		}
		fmt.Fprintf(&b, "\n- [%s] %s [%s] %s", marker, t.ID, t.Category, t.Title)
		if len(t.DependsOn) > 0 {
			fmt.Fprintf(&b, "\n  Depends on: %s", strings.Join(t.DependsOn, ", "))
		}
	}
	b.WriteString("\n")
	return b.String()
}

func renderWalkthroughMarkdown(wt *Walkthrough) string {
	var b strings.Builder
	title := wt.Title
	if title == "" {
		title = "Walkthrough"
	}
	fmt.Fprintf(&b, "# %s\n\n%s\n", title, wt.Summary)
	for _, block := range wt.Blocks {
		fmt.Fprintf(&b, "\n## %s\nPurpose: %s", block.Name, block.Purpose)
		for _, f := range block.Files {
			fmt.Fprintf(&b, "\n- [%s] %s - %s", f.Operation, f.Path, f.ChangesDescription)
		}
		if len(block.ChecklistIDs) > 0 {
			fmt.Fprintf(&b, "\nChecklist: %s", strings.Join(block.ChecklistIDs, ", "))
		}
		if len(block.Risks) > 0 {
			fmt.Fprintf(&b, "\nRisks: %s", strings.Join(block.Risks, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderPlanMarkdown(pl *plan.Document) string {
	var b strings.Builder
	b.WriteString("# Implementation Plan\n")
	for _, step := range pl.Steps {
		fmt.Fprintf(&b, "\n- [ ] Step %d: %s", step.StepNumber, step.Description)
		if step.Target != "" {
			fmt.Fprintf(&b, "\n  File: %s", step.Target)
		}
	}
	b.WriteString("\n")
	return b.String()
}

var inlineCommentPattern = regexp.MustCompile(`(?s)<!--\s*COMMENT:\s*(.*?)\s*-->`)

// extractInlineComments collects <!-- COMMENT: ... --> annotations the
// user left inside the rendered planning documents.
func extractInlineComments(artifactsDir string) string {
	var comments []string
	for _, name := range []string{"checklist.md", "walkthrough.md", "implementation_plan.md"} {
		data, err := os.ReadFile(filepath.Join(artifactsDir, name))
		if err != nil {
			continue
		}
		for _, m := range inlineCommentPattern.FindAllStringSubmatch(string(data), -1) {
			comments = append(comments, fmt.Sprintf("[%s] %s", name, strings.TrimSpace(m[1])))
		}
	}
	return strings.Join(comments, "\n")
}

// markStepCompleted flips the first matching unchecked checklist.md entry
// to checked, rewriting the artifact atomically. A stage without the
// rendering (or without a matching entry) is not an error.
func markStepCompleted(st *stage.Stage, checklistID string) error {
	text, err := st.LoadArtifactText("checklist.md")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	pattern := regexp.MustCompile(`(- \[) \](\s*` + regexp.QuoteMeta(checklistID) + `\b)`)
	updated := replaceFirst(pattern, text, "${1}x]${2}")
	if updated == text {
		return nil
	}
	return st.SaveArtifact("checklist.md", updated)
}

func replaceFirst(re *regexp.Regexp, s, repl string) string {
	done := false
	return re.ReplaceAllStringFunc(s, func(m string) string {
		if done {
			return m
		}
		done = true
		return re.ReplaceAllString(m, repl)
	})
}

func reviewBlock(comments string) string {
	if comments == "" {
		return ""
	}
	return "Review comments to address:\n" + comments + "\n"
}

func contextBlock(priorContext string) string {
	if priorContext == "" {
		return ""
	}
	return "Context: " + priorContext
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
