package router

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pablasso/stagehand/internal/bridge"
	"github.com/pablasso/stagehand/internal/config"
	"github.com/pablasso/stagehand/internal/engine"
	"github.com/pablasso/stagehand/internal/llm"
	"github.com/pablasso/stagehand/internal/memory"
	"github.com/pablasso/stagehand/internal/scanner"
	"github.com/pablasso/stagehand/internal/stage"
	"github.com/pablasso/stagehand/internal/tool"
	"github.com/pablasso/stagehand/internal/workflow"
)

// markerClient routes responses by prompt markers, covering classification,
// document generation and the tool loop with one fake.
type markerClient struct {
	calls   []string
	respond func(prompt string) (string, bool)
}

func (c *markerClient) Complete(_ context.Context, req llm.Request) (*llm.Turn, error) {
	prompt := req.Messages[len(req.Messages)-1].Content
	c.calls = append(c.calls, prompt)
	if c.respond != nil {
		if text, ok := c.respond(prompt); ok {
			return &llm.Turn{Text: text}, nil
		}
	}
	switch {
	case strings.Contains(prompt, "You are a request classifier"):
		return &llm.Turn{Text: `{"workflow": "chat", "confidence": 0.9, "reasoning": "question"}`}, nil
	case strings.Contains(prompt, "Break the user's request"):
		return &llm.Turn{Text: `{"goal": "fix the crash", "actions": ["patch"]}`}, nil
	case strings.Contains(prompt, "Investigate the reported problem"):
		return &llm.Turn{Text: `{"root_cause": "nil deref", "report": "## Cause\nnil deref"}`}, nil
	case strings.Contains(prompt, "Create a short plan"):
		return &llm.Turn{Text: `{"steps": [{"step_number": 1, "checklist_id": "f1", "description": "guard the pointer"}]}`}, nil
	default:
		return &llm.Turn{Text: "done"}, nil
	}
}

func newTestRouter(t *testing.T, client llm.Client, mem *memory.Store) *Router {
	t.Helper()
	cfg := config.Default()
	reg := workflow.NewRegistry()
	cls := workflow.NewClassifier(reg, client, nil)
	b := bridge.New(client, tool.NewRegistry(), "", nil)
	eng := engine.New(client, b, scanner.New(cfg.Scanner, nil), cfg, nil, nil)
	return New(cfg, reg, cls, eng, mem, nil, nil)
}

func TestHandleResetFastPath(t *testing.T) {
	client := &markerClient{}
	r := newTestRouter(t, client, nil)

	result, err := r.Handle(context.Background(), "reset")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Message != "Conversation context cleared." {
		t.Errorf("message = %q", result.Message)
	}
	if len(client.calls) != 0 {
		t.Errorf("model consulted %d times for a reset", len(client.calls))
	}
}

func TestHandleServeProjectFastPath(t *testing.T) {
	r := newTestRouter(t, &markerClient{}, nil)
	dir := t.TempDir()

	result, err := r.Handle(context.Background(), dir)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(result.Message, "Serving project") {
		t.Errorf("message = %q", result.Message)
	}
	if r.ProjectDir() == "" {
		t.Error("project directory not set")
	}
}

func TestHandleServeProjectReportsResumable(t *testing.T) {
	r := newTestRouter(t, &markerClient{}, nil)
	dir := t.TempDir()
	m, err := stage.NewManager(dir, "flow", nil)
	if err != nil {
		t.Fatal(err)
	}
	st, err := m.Create("build", "earlier work")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.UpdateStatus(stage.StatusPartial); err != nil {
		t.Fatal(err)
	}

	result, err := r.Handle(context.Background(), dir)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(result.Message, "Stage-1") || !strings.Contains(result.Message, "can be resumed") {
		t.Errorf("message = %q", result.Message)
	}
}

func TestHandleNeedsProject(t *testing.T) {
	r := newTestRouter(t, &markerClient{}, nil)

	result, err := r.Handle(context.Background(), "fix the crash on startup")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Status != engine.StatusNeedsProject {
		t.Errorf("status = %q, want %q", result.Status, engine.StatusNeedsProject)
	}
}

func TestHandleLowConfidenceAsksClarification(t *testing.T) {
	client := &markerClient{
		respond: func(prompt string) (string, bool) {
			if strings.Contains(prompt, "You are a request classifier") {
				return `{"workflow": "modify", "confidence": 0.5, "reasoning": "unsure"}`, true
			}
			return "", false
		},
	}
	r := newTestRouter(t, client, nil)
	if err := r.SetProject(t.TempDir()); err != nil {
		t.Fatal(err)
	}

	result, err := r.Handle(context.Background(), "maybe tweak something somewhere")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Status != engine.StatusNeedsClarification {
		t.Errorf("status = %q, want %q", result.Status, engine.StatusNeedsClarification)
	}
	if len(result.Questions) == 0 {
		t.Error("no clarification question returned")
	}
}

func TestHandleChatInline(t *testing.T) {
	client := &markerClient{
		respond: func(prompt string) (string, bool) {
			if strings.Contains(prompt, "what is a goroutine") {
				return "A goroutine is a lightweight thread.", true
			}
			return "", false
		},
	}
	r := newTestRouter(t, client, nil)

	result, err := r.Handle(context.Background(), "what is a goroutine?")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Workflow != "chat" {
		t.Errorf("workflow = %q", result.Workflow)
	}
	if result.Message != "A goroutine is a lightweight thread." {
		t.Errorf("message = %q", result.Message)
	}
}

func TestHandleRunsWorkflowEndToEnd(t *testing.T) {
	client := &markerClient{}
	dbPath := filepath.Join(t.TempDir(), "episodes.db")
	mem, err := memory.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer mem.Close()

	r := newTestRouter(t, client, mem)
	project := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.SetProject(project); err != nil {
		t.Fatal(err)
	}

	result, err := r.Handle(context.Background(), "fix the crash in the parser")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Workflow != "fix" {
		t.Errorf("workflow = %q, want fix", result.Workflow)
	}
	if result.Status != stage.StatusCompleted {
		t.Errorf("status = %q", result.Status)
	}

	m, err := stage.NewManager(project, "flow", nil)
	if err != nil {
		t.Fatal(err)
	}
	st, err := m.Load(1)
	if err != nil || st == nil {
		t.Fatalf("stage-1 missing: %v", err)
	}
	if st.Status() != stage.StatusCompleted {
		t.Errorf("stage status = %q", st.Status())
	}
	if !st.HasArtifact("investigation.yaml") {
		t.Error("investigation artifact missing")
	}

	episodes, err := mem.Recent(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(episodes) != 1 || episodes[0].Workflow != "fix" {
		t.Errorf("episodes = %+v, want one fix episode", episodes)
	}
}

func TestHandleDirtyTreeGate(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	client := &markerClient{}
	r := newTestRouter(t, client, nil)
	project := t.TempDir()
	for _, args := range [][]string{
		{"init"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = project
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	if err := os.WriteFile(filepath.Join(project, "untracked.go"), []byte("package x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.SetProject(project); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Handle(context.Background(), "fix the crash in the parser"); err == nil {
		t.Fatal("expected dirty-tree error")
	} else if !strings.Contains(err.Error(), "--allow-dirty") {
		t.Errorf("error = %v", err)
	}

	r.AllowDirty(true)
	result, err := r.Handle(context.Background(), "fix the crash in the parser")
	if err != nil {
		t.Fatalf("Handle with --allow-dirty: %v", err)
	}
	if result.Status != stage.StatusCompleted {
		t.Errorf("status = %q", result.Status)
	}
}

func TestResumeWithoutProject(t *testing.T) {
	r := newTestRouter(t, &markerClient{}, nil)
	result, err := r.Resume(context.Background())
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if result.Status != engine.StatusNeedsProject {
		t.Errorf("status = %q", result.Status)
	}
}

func TestResumeNoResumableStage(t *testing.T) {
	r := newTestRouter(t, &markerClient{}, nil)
	if err := r.SetProject(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	result, err := r.Resume(context.Background())
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !strings.Contains(result.Message, "No resumable stage") {
		t.Errorf("message = %q", result.Message)
	}
}

func TestResumeFinishesPendingSteps(t *testing.T) {
	client := &markerClient{}
	r := newTestRouter(t, client, nil)
	project := t.TempDir()
	if err := r.SetProject(project); err != nil {
		t.Fatal(err)
	}

	m, err := stage.NewManager(project, "flow", nil)
	if err != nil {
		t.Fatal(err)
	}
	st, err := m.Create("fix", "fix the crash")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SaveArtifact("fix_plan.yaml", map[string]any{
		"steps": []map[string]any{
			{"step_number": 1, "checklist_id": "f1", "description": "guard the pointer"},
			{"step_number": 2, "checklist_id": "f2", "description": "add a test"},
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveExecutionLog(stage.LogMeta{Workflow: "fix"}, []stage.LogEntry{
		{StepNumber: 1, ChecklistID: "f1", Status: stage.StepCompleted},
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.UpdateStatus(stage.StatusPartial); err != nil {
		t.Fatal(err)
	}

	result, err := r.Resume(context.Background())
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if result.Status != stage.StatusCompleted {
		t.Errorf("status = %q", result.Status)
	}
	if result.StageNum != st.Num() {
		t.Errorf("stage = %d, want %d", result.StageNum, st.Num())
	}

	reloaded, err := m.Load(st.Num())
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Status() != stage.StatusCompleted {
		t.Errorf("stage status = %q", reloaded.Status())
	}
}
