package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pablasso/stagehand/internal/llm"
	"github.com/pablasso/stagehand/internal/logging"
)

// Classification names that are commands rather than workflows.
const (
	ClassReset        = "reset"
	ClassServeProject = "serve_project"
)

// ConfidenceThreshold is the minimum classification confidence to act on a
// workflow without asking the user to clarify.
const ConfidenceThreshold = 0.7

// Classification is the outcome of classifying one request.
type Classification struct {
	Workflow   string  `json:"workflow"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

var resumeKeywords = []string{"resume", "continue", "pick up where", "carry on", "finish what"}

var resetKeywords = []string{"reset", "start over"}

var analyzeKeywords = []string{
	"analyze", "analyse", "code review", "review the code", "audit",
	"describe the architecture", "find weak spots", "what's wrong here",
	"show the structure",
}

var researchKeywords = []string{
	"research", "compare", "what are the options", "best way to implement",
	"technology overview", "look into",
}

var fixKeywords = []string{
	"fix", "bug", "error", "doesn't work", "does not work", "broken",
	"crash", "failing",
}

var buildKeywords = []string{
	"create", "build", "new project", "implement from scratch",
	"write an app", "scaffold", "generate a project",
}

// Classifier maps a user request to a workflow in two passes: cheap keyword
// heuristics first, then the LLM when the heuristic is absent or weak.
type Classifier struct {
	registry *Registry
	client   llm.Client
	log      *logging.Logger
}

// NewClassifier creates a Classifier. client may be nil, in which case only
// the heuristic pass runs. logger may be nil.
func NewClassifier(registry *Registry, client llm.Client, logger *logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Classifier{registry: registry, client: client, log: logger}
}

// Heuristic classifies by keywords alone. It returns nil when no rule
// matches.
func (c *Classifier) Heuristic(text string) *Classification {
	lower := strings.ToLower(strings.TrimSpace(text))

	if containsAny(lower, resetKeywords) && len(strings.Fields(lower)) <= 3 {
		return &Classification{Workflow: ClassReset, Confidence: 1.0, Reasoning: "reset command"}
	}
	if containsAny(lower, resumeKeywords) {
		return &Classification{Workflow: "resume", Confidence: 0.95, Reasoning: "resume keyword"}
	}
	if ExtractPath(text) != "" && len(strings.Fields(text)) <= 4 {
		return &Classification{Workflow: ClassServeProject, Confidence: 0.85, Reasoning: "directory path"}
	}
	if containsAny(lower, fixKeywords) {
		return &Classification{Workflow: "fix", Confidence: 0.8, Reasoning: "fix/bug keywords"}
	}
	if containsAny(lower, analyzeKeywords) {
		return &Classification{Workflow: "analyze", Confidence: 0.8, Reasoning: "analysis keywords"}
	}
	if containsAny(lower, researchKeywords) {
		return &Classification{Workflow: "research", Confidence: 0.8, Reasoning: "research keywords"}
	}
	if containsAny(lower, buildKeywords) {
		return &Classification{Workflow: "build", Confidence: 0.75, Reasoning: "build keywords"}
	}
	return nil
}

// Classify runs the heuristic pass and falls back to the LLM when the
// heuristic result is missing or below 0.8 confidence. If both produce a
// result, the more confident one wins.
func (c *Classifier) Classify(ctx context.Context, text, projectContext string) Classification {
	heuristic := c.Heuristic(text)
	if heuristic != nil && heuristic.Confidence >= 0.8 {
		c.log.Info("heuristic classification", "workflow", heuristic.Workflow, "confidence", heuristic.Confidence)
		return *heuristic
	}
	if c.client == nil {
		if heuristic != nil {
			return *heuristic
		}
		return Classification{Workflow: "chat", Confidence: 0.5, Reasoning: "no classifier model configured"}
	}

	result := c.classifyLLM(ctx, text, projectContext)
	if heuristic != nil && result.Confidence < heuristic.Confidence {
		return *heuristic
	}
	return result
}

func (c *Classifier) classifyLLM(ctx context.Context, text, projectContext string) Classification {
	var ctxBlock string
	if projectContext != "" {
		ctxBlock = "\nProject context:\n" + projectContext + "\n"
	}

	prompt := fmt.Sprintf(
		"You are a request classifier. Decide which workflow fits the user's request.\n\n"+
			"Available workflows:\n%s\n"+
			"- chat: simple question/answer that needs no tools or file changes\n"+
			"%s\n"+
			"User request: %s\n\n"+
			"Return ONLY JSON:\n"+
			`{"workflow": "build|modify|fix|analyze|research|chat", `+
			`"confidence": 0.0-1.0, "reasoning": "brief justification"}`,
		c.registry.DescriptionsForLLM(), ctxBlock, text,
	)

	var result Classification
	if err := llm.CompleteJSON(ctx, c.client, prompt, 0.1, &result); err != nil {
		c.log.Error("llm classification failed", "error", err)
		return Classification{Workflow: "chat", Confidence: 0.3, Reasoning: fmt.Sprintf("classification error: %v", err)}
	}

	if result.Workflow == "" {
		result.Workflow = "chat"
	}
	if _, ok := c.registry.Get(result.Workflow); !ok {
		c.log.Warn("llm returned unknown workflow", "workflow", result.Workflow)
		result.Workflow = "chat"
		result.Confidence = 0.4
	}

	c.log.Info("llm classification", "workflow", result.Workflow, "confidence", result.Confidence)
	return result
}

// ExtractPath returns the first token in text that looks like a filesystem
// path and actually exists, made absolute. Empty string when none does.
func ExtractPath(text string) string {
	for _, token := range strings.Fields(text) {
		if !strings.HasPrefix(token, "/") && !strings.HasPrefix(token, "./") && !strings.HasPrefix(token, "~/") {
			continue
		}
		expanded := token
		if strings.HasPrefix(token, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				continue
			}
			expanded = filepath.Join(home, token[2:])
		}
		if _, err := os.Stat(expanded); err != nil {
			continue
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			continue
		}
		return abs
	}
	return ""
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
