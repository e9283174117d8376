// Package router is the front door for user requests: it recognizes the
// fast-path commands (reset, resume, serve a project), classifies everything
// else into a workflow, and drives the engine against a fresh stage with
// the run lock held.
package router

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pablasso/stagehand/internal/config"
	"github.com/pablasso/stagehand/internal/engine"
	"github.com/pablasso/stagehand/internal/git"
	"github.com/pablasso/stagehand/internal/logging"
	"github.com/pablasso/stagehand/internal/memory"
	"github.com/pablasso/stagehand/internal/progress"
	"github.com/pablasso/stagehand/internal/stage"
	"github.com/pablasso/stagehand/internal/workflow"
)

// Router dispatches user requests to workflows.
type Router struct {
	cfg        *config.Config
	registry   *workflow.Registry
	classifier *workflow.Classifier
	engine     *engine.Engine
	mem        *memory.Store
	progress   progress.Sink
	log        *logging.Logger

	projectDir string
	allowDirty bool
}

// New creates a Router. mem, sink and logger may be nil.
func New(cfg *config.Config, registry *workflow.Registry, classifier *workflow.Classifier, eng *engine.Engine, mem *memory.Store, sink progress.Sink, logger *logging.Logger) *Router {
	if sink == nil {
		sink = progress.Nop{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Router{
		cfg:        cfg,
		registry:   registry,
		classifier: classifier,
		engine:     eng,
		mem:        mem,
		progress:   sink,
		log:        logger,
	}
}

// SetProject makes dir the active project. The directory must exist.
func (r *Router) SetProject(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve project path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("project directory %s: %w", abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", abs)
	}
	r.projectDir = abs
	return nil
}

// ProjectDir returns the active project directory, empty when unset.
func (r *Router) ProjectDir() string { return r.projectDir }

// AllowDirty disables the uncommitted-changes gate for stage-creating
// workflows.
func (r *Router) AllowDirty(allow bool) { r.allowDirty = allow }

// Handle processes one user request end to end.
func (r *Router) Handle(ctx context.Context, text string) (*engine.RunResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &engine.RunResult{Workflow: "chat", Status: stage.StatusCompleted, Message: "Nothing to do."}, nil
	}

	// Fast paths never touch the model.
	if h := r.classifier.Heuristic(text); h != nil {
		switch h.Workflow {
		case workflow.ClassReset:
			return r.reset(), nil
		case "resume":
			return r.Resume(ctx)
		case workflow.ClassServeProject:
			return r.serveProject(text)
		}
	}

	var (
		mgr          *stage.Manager
		priorContext string
	)
	if r.projectDir != "" {
		var err error
		mgr, err = stage.NewManager(r.projectDir, r.cfg.Pipeline.FlowDir, r.log)
		if err != nil {
			return nil, err
		}
		if pc, err := mgr.LoadContext(); err == nil {
			priorContext = pc.ForLLM()
		}
	}

	cls := r.classifier.Classify(ctx, text, priorContext)
	r.log.Info("classified request", "workflow", cls.Workflow, "confidence", cls.Confidence, "reasoning", cls.Reasoning)

	if cls.Confidence < workflow.ConfidenceThreshold && cls.Workflow != "chat" {
		return &engine.RunResult{
			Workflow: cls.Workflow,
			Status:   engine.StatusNeedsClarification,
			Questions: []string{fmt.Sprintf(
				"This looks like a '%s' task, but I am not confident (%.0f%%). Could you confirm or rephrase?",
				cls.Workflow, cls.Confidence*100,
			)},
		}, nil
	}

	if cls.Workflow == "chat" {
		return r.chat(ctx, text, priorContext)
	}

	wf, ok := r.registry.Get(cls.Workflow)
	if !ok {
		r.log.Warn("classifier produced unknown workflow, falling back to chat", "workflow", cls.Workflow)
		return r.chat(ctx, text, priorContext)
	}
	if wf.Name == "resume" {
		return r.Resume(ctx)
	}
	if wf.CreatesStage && r.projectDir == "" {
		return &engine.RunResult{
			Workflow: wf.Name,
			Status:   engine.StatusNeedsProject,
			Message:  "No active project. Point me at a project directory first.",
		}, nil
	}

	return r.runWorkflow(ctx, mgr, wf, text, priorContext)
}

// Resume finds the most recent resumable stage and finishes its pending
// steps.
func (r *Router) Resume(ctx context.Context) (*engine.RunResult, error) {
	if r.projectDir == "" {
		return &engine.RunResult{
			Workflow: "resume",
			Status:   engine.StatusNeedsProject,
			Message:  "No active project to resume in.",
		}, nil
	}
	mgr, err := stage.NewManager(r.projectDir, r.cfg.Pipeline.FlowDir, r.log)
	if err != nil {
		return nil, err
	}
	st, err := mgr.FindResumable()
	if err != nil {
		return nil, err
	}
	if st == nil {
		return &engine.RunResult{
			Workflow: "resume",
			Status:   stage.StatusCompleted,
			Message:  "No resumable stage found.",
		}, nil
	}

	lock := stage.NewLock(mgr.FlowDir)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	defer lock.Release()

	r.progress.Message(fmt.Sprintf("Resuming stage-%d (%s).", st.Num(), st.Workflow()))
	r.engine.ResetConversation()
	result, err := r.engine.ResumePending(ctx, st, r.projectDir)
	if err != nil {
		if uerr := st.UpdateStatus(stage.StatusFailed); uerr != nil {
			r.log.Error("failed to update stage status", "stage", st.Num(), "error", uerr)
		}
		return nil, err
	}
	result.StageNum = st.Num()
	if err := st.UpdateStatus(result.Status); err != nil {
		return nil, err
	}
	r.recordEpisode(fmt.Sprintf("resume stage-%d", st.Num()), "resume", result.Status, result.Message)
	r.progress.Done(result.Status)
	return result, nil
}

func (r *Router) runWorkflow(ctx context.Context, mgr *stage.Manager, wf workflow.Def, query, priorContext string) (*engine.RunResult, error) {
	if !r.allowDirty && git.IsRepo(r.projectDir) {
		clean, err := git.IsClean(r.projectDir)
		if err == nil && !clean {
			return nil, fmt.Errorf("working tree at %s has uncommitted changes; commit or stash them, or pass --allow-dirty", r.projectDir)
		}
	}

	lock := stage.NewLock(mgr.FlowDir)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	defer lock.Release()

	st, err := mgr.Create(wf.Name, query)
	if err != nil {
		return nil, err
	}
	r.log.Info("stage created", "stage", st.Num(), "workflow", wf.Name)

	if r.mem != nil {
		if ep, err := r.mem.FindSimilar(query, memory.DefaultSimilarityCutoff); err == nil && ep != nil {
			r.progress.Message(fmt.Sprintf("A similar run (%q) finished with status %s.", ep.Goal, ep.Status))
		}
	}

	r.engine.ResetConversation()
	result, err := r.engine.Run(ctx, wf, st, query, priorContext, r.projectDir)
	if err != nil {
		if uerr := st.UpdateStatus(stage.StatusFailed); uerr != nil {
			r.log.Error("failed to update stage status", "stage", st.Num(), "error", uerr)
		}
		r.recordEpisode(query, wf.Name, stage.StatusFailed, err.Error())
		r.progress.Done(stage.StatusFailed)
		return nil, err
	}

	if result.Status == engine.StatusNeedsClarification {
		// The stage stays on disk so answers can pick it back up.
		if err := st.UpdateStatus(stage.StatusPaused); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := st.UpdateStatus(result.Status); err != nil {
		return nil, err
	}
	if err := mgr.UpdateContextAfterStage(st, result.Summary, result.Stack, result.Issues); err != nil {
		r.log.Warn("failed to update project context", "error", err)
	}
	r.recordEpisode(query, wf.Name, result.Status, result.Summary)
	r.progress.Done(result.Status)
	return result, nil
}

func (r *Router) reset() *engine.RunResult {
	r.engine.ResetConversation()
	return &engine.RunResult{
		Workflow: "chat",
		Status:   stage.StatusCompleted,
		Message:  "Conversation context cleared.",
	}
}

func (r *Router) serveProject(text string) (*engine.RunResult, error) {
	path := workflow.ExtractPath(text)
	if path == "" {
		return &engine.RunResult{
			Workflow: "chat",
			Status:   engine.StatusNeedsProject,
			Message:  "That does not look like an existing directory.",
		}, nil
	}
	if err := r.SetProject(path); err != nil {
		return nil, err
	}

	mgr, err := stage.NewManager(r.projectDir, r.cfg.Pipeline.FlowDir, r.log)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("Serving project %s.", r.projectDir)
	if pc, err := mgr.LoadContext(); err == nil && pc.Summary != "" {
		msg += " " + pc.Summary
	}
	if st, err := mgr.FindResumable(); err == nil && st != nil {
		msg += fmt.Sprintf(" Stage-%d (%s, %s) can be resumed.", st.Num(), st.Workflow(), st.Status())
	}
	return &engine.RunResult{Workflow: "chat", Status: stage.StatusCompleted, Message: msg}, nil
}

func (r *Router) chat(ctx context.Context, text, priorContext string) (*engine.RunResult, error) {
	question := text
	if priorContext != "" {
		question = priorContext + "\n\n" + text
	}
	answer, err := r.engine.Chat(ctx, question, r.projectDir)
	if err != nil {
		return nil, err
	}
	r.recordEpisode(text, "chat", stage.StatusCompleted, firstLine(answer))
	return &engine.RunResult{Workflow: "chat", Status: stage.StatusCompleted, Message: answer}, nil
}

func (r *Router) recordEpisode(goal, workflowName, status, summary string) {
	if r.mem == nil {
		return
	}
	ep := &memory.Episode{Goal: goal, Workflow: workflowName, Status: status, Summary: summary}
	if err := r.mem.Add(ep); err != nil {
		r.log.Warn("failed to record episode", "error", err)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
