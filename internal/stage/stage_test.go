package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCreateSequentialNumbers(t *testing.T) {
	m := newTestManager(t)

	for want := 1; want <= 3; want++ {
		s, err := m.Create("build", fmt.Sprintf("request %d", want))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if s.Num() != want {
			t.Errorf("stage num = %d, want %d", s.Num(), want)
		}
		if s.Status() != StatusRunning {
			t.Errorf("status = %q, want running", s.Status())
		}
	}

	if got := m.LatestNum(); got != 3 {
		t.Errorf("LatestNum = %d, want 3", got)
	}
}

func TestCreateSkipsGapsAndForeignDirs(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Create("build", "first"); err != nil {
		t.Fatal(err)
	}
	// Simulate a deleted middle stage and unrelated directories.
	if err := os.MkdirAll(filepath.Join(m.FlowDir, "stage-7"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(m.FlowDir, "stage-bogus"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(m.FlowDir, "notes"), 0o755); err != nil {
		t.Fatal(err)
	}

	s, err := m.Create("fix", "after gap")
	if err != nil {
		t.Fatal(err)
	}
	if s.Num() != 8 {
		t.Errorf("stage num = %d, want 8", s.Num())
	}
}

func TestLoadMissingStageReturnsNil(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Load(5)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s != nil {
		t.Errorf("Load(5) = %+v, want nil", s)
	}
}

func TestUpdateStatusSetsFinishedAtOnTerminal(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Create("build", "q")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateStatus(StatusPaused); err != nil {
		t.Fatal(err)
	}
	if s.Meta.FinishedAt != "" {
		t.Error("paused should not set finished_at")
	}

	if err := s.UpdateStatus(StatusCompleted); err != nil {
		t.Fatal(err)
	}
	if s.Meta.FinishedAt == "" {
		t.Error("completed should set finished_at")
	}

	reloaded, err := m.Load(s.Num())
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Status() != StatusCompleted {
		t.Errorf("reloaded status = %q", reloaded.Status())
	}
	if reloaded.Meta.FinishedAt == "" {
		t.Error("finished_at not persisted")
	}
}

func TestFindResumable(t *testing.T) {
	m := newTestManager(t)

	s1, _ := m.Create("build", "one")
	s1.UpdateStatus(StatusCompleted)
	s2, _ := m.Create("fix", "two")
	s2.UpdateStatus(StatusPartial)
	s3, _ := m.Create("modify", "three")
	s3.UpdateStatus(StatusFailed)

	got, err := m.FindResumable()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Num() != 2 {
		t.Fatalf("FindResumable = %+v, want stage 2", got)
	}

	s2r, _ := m.Load(2)
	s2r.UpdateStatus(StatusCompleted)
	got, err = m.FindResumable()
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("FindResumable = %+v, want nil when all terminal", got)
	}
}

func TestMarkPreviousReadDeduplicates(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Create("build", "q")

	if err := s.MarkPreviousRead(1, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkPreviousRead(2, 3); err != nil {
		t.Fatal(err)
	}

	reloaded, _ := m.Load(s.Num())
	want := []int{1, 2, 3}
	if len(reloaded.Meta.PreviousStagesRead) != len(want) {
		t.Fatalf("previous_stages_read = %v, want %v", reloaded.Meta.PreviousStagesRead, want)
	}
	for i, n := range want {
		if reloaded.Meta.PreviousStagesRead[i] != n {
			t.Errorf("previous_stages_read[%d] = %d, want %d", i, reloaded.Meta.PreviousStagesRead[i], n)
		}
	}
}

func TestList(t *testing.T) {
	m := newTestManager(t)
	s1, _ := m.Create("build", strings.Repeat("long query ", 20))
	s1.UpdateStatus(StatusCompleted)
	m.Create("analyze", "short")

	list, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("List len = %d", len(list))
	}
	if len(list[0].Query) > 100 {
		t.Errorf("query not truncated: %d chars", len(list[0].Query))
	}
	if list[0].Status != StatusCompleted || list[1].Status != StatusRunning {
		t.Errorf("statuses = %q, %q", list[0].Status, list[1].Status)
	}
}

func TestArtifactStringAndStruct(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Create("build", "q")

	if err := s.SaveArtifact("report.md", "# Report\nbody"); err != nil {
		t.Fatal(err)
	}
	text, err := s.LoadArtifactText("report.md")
	if err != nil {
		t.Fatal(err)
	}
	if text != "# Report\nbody" {
		t.Errorf("text = %q", text)
	}

	type digest struct {
		Name  string   `yaml:"name"`
		Files []string `yaml:"files"`
	}
	in := digest{Name: "proj", Files: []string{"a.go", "b.go"}}
	if err := s.SaveArtifact("project_digest.yaml", in); err != nil {
		t.Fatal(err)
	}
	var out digest
	if err := s.LoadArtifact("project_digest.yaml", &out); err != nil {
		t.Fatal(err)
	}
	if out.Name != "proj" || len(out.Files) != 2 {
		t.Errorf("roundtrip = %+v", out)
	}
	if !s.HasArtifact("project_digest.yaml") {
		t.Error("HasArtifact = false")
	}
	if s.HasArtifact("missing.yaml") {
		t.Error("HasArtifact(missing) = true")
	}
}

func TestArtifactLegacyJSONFallback(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Create("build", "q")

	legacy := filepath.Join(s.ArtifactsDir(), "parsed_request.json")
	if err := os.WriteFile(legacy, []byte(`{"goal": "ship it"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var out struct {
		Goal string `yaml:"goal" json:"goal"`
	}
	if err := s.LoadArtifact("parsed_request.yaml", &out); err != nil {
		t.Fatalf("LoadArtifact legacy: %v", err)
	}
	if out.Goal != "ship it" {
		t.Errorf("goal = %q", out.Goal)
	}
	if !s.HasArtifact("parsed_request.yaml") {
		t.Error("HasArtifact should see the legacy twin")
	}
}

func TestExecutionLogRoundtrip(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Create("build", "q")

	entries := []LogEntry{
		{StepNumber: 1, ChecklistID: "t01", Description: "setup", Status: StepCompleted, Elapsed: 1.5},
		{StepNumber: 2, ChecklistID: "t02", Description: "api", Status: StepFailed, Elapsed: 2.0, Error: "boom"},
		{StepNumber: 3, ChecklistID: "t03", Description: "ui", Status: StepBlocked, Error: "dependency failed"},
	}
	if err := s.SaveExecutionLog(LogMeta{Workflow: "build"}, entries); err != nil {
		t.Fatal(err)
	}

	doc, err := s.LoadExecutionLog()
	if err != nil {
		t.Fatal(err)
	}
	if doc == nil {
		t.Fatal("LoadExecutionLog = nil")
	}
	if doc.Stats.Completed != 1 || doc.Stats.Failed != 1 || doc.Stats.Blocked != 1 {
		t.Errorf("stats = %+v", doc.Stats)
	}
	if len(doc.Steps) != 3 {
		t.Errorf("steps = %d", len(doc.Steps))
	}

	completed := doc.CompletedStepIDs()
	if !completed["t01"] || completed["t02"] || completed["t03"] {
		t.Errorf("completed ids = %v", completed)
	}

	md, err := os.ReadFile(filepath.Join(s.Dir, "execution_log.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(md), "[x] Step 1") || !strings.Contains(string(md), "Error: boom") {
		t.Errorf("markdown rendering:\n%s", md)
	}
}

func TestExecutionLogTerminalMetaRoundtrip(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Create("build", "q")

	entries := []LogEntry{{StepNumber: 1, ChecklistID: "t01", Status: StepCompleted}}
	meta := LogMeta{
		Workflow:   "build",
		StartedAt:  "2026-08-26T10:00:00Z",
		FinishedAt: "2026-08-26T10:05:00Z",
		Status:     StatusCompleted,
	}
	if err := s.SaveExecutionLog(meta, entries); err != nil {
		t.Fatal(err)
	}

	doc, err := s.LoadExecutionLog()
	if err != nil {
		t.Fatal(err)
	}
	if doc.Meta.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", doc.Meta.Status, StatusCompleted)
	}
	if doc.Meta.FinishedAt != "2026-08-26T10:05:00Z" {
		t.Errorf("finished_at = %q", doc.Meta.FinishedAt)
	}
}

func TestPlanTrackingRoundtrip(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Create("build", "q")

	p := &Plan{
		Workflow: "build",
		Phases: []PlanPhase{
			{Name: "parse_request", Description: "break down the request", Status: PlanPending},
			{Name: "implement", Status: PlanPending},
		},
		Steps: []PlanStep{
			{StepNumber: 1, Description: "create main.go", Status: PlanPending},
			{StepNumber: 2, Description: "wire the handler", Status: PlanPending},
		},
	}
	if err := s.SavePlan(p); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadPlan()
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil {
		t.Fatal("LoadPlan = nil")
	}
	if len(loaded.Phases) != 2 || len(loaded.Steps) != 2 {
		t.Errorf("loaded plan = %+v", loaded)
	}
	if loaded.Phases[0].Status != PlanPending {
		t.Errorf("phase status = %q", loaded.Phases[0].Status)
	}

	md, err := os.ReadFile(filepath.Join(s.Dir, "plan.md"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# build plan", "- [ ] parse_request: break down the request", "- [ ] Step 2: wire the handler"} {
		if !strings.Contains(string(md), want) {
			t.Errorf("plan.md missing %q:\n%s", want, md)
		}
	}
}

func TestLoadPlanMissing(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Create("build", "q")
	p, err := s.LoadPlan()
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Errorf("plan = %+v, want nil", p)
	}
}

func TestLoadExecutionLogMissing(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Create("build", "q")
	doc, err := s.LoadExecutionLog()
	if err != nil {
		t.Fatal(err)
	}
	if doc != nil {
		t.Errorf("doc = %+v, want nil", doc)
	}
}

func TestProjectContextLifecycle(t *testing.T) {
	m := newTestManager(t)

	ctx, err := m.LoadContext()
	if err != nil {
		t.Fatal(err)
	}
	if ctx.ForLLM() != "" {
		t.Errorf("empty context ForLLM = %q", ctx.ForLLM())
	}

	s, _ := m.Create("build", "make a web app")
	if err := m.UpdateContextAfterStage(s, "built the app", []string{"go", "sqlite"}, []string{"no tests yet"}); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateContextAfterStage(s, "", []string{"go", "cobra"}, nil); err != nil {
		t.Fatal(err)
	}

	ctx, err = m.LoadContext()
	if err != nil {
		t.Fatal(err)
	}
	if ctx.StagesCompleted != 1 {
		t.Errorf("stages_completed = %d", ctx.StagesCompleted)
	}
	wantStack := []string{"cobra", "go", "sqlite"}
	if len(ctx.Stack) != len(wantStack) {
		t.Fatalf("stack = %v, want %v", ctx.Stack, wantStack)
	}
	for i, item := range wantStack {
		if ctx.Stack[i] != item {
			t.Errorf("stack[%d] = %q, want %q", i, ctx.Stack[i], item)
		}
	}
	if len(ctx.KnownIssues) != 1 {
		t.Errorf("known_issues = %v", ctx.KnownIssues)
	}

	rendered := ctx.ForLLM()
	if !strings.Contains(rendered, "Stack: cobra, go, sqlite") {
		t.Errorf("ForLLM missing stack:\n%s", rendered)
	}
	if !strings.Contains(rendered, "Last action: [build] make a web app") {
		t.Errorf("ForLLM missing last action:\n%s", rendered)
	}
}

func TestLockAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	l := NewLock(dir)
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// Re-acquire by the same process succeeds because the PID matches a
	// live process, so the second Acquire must fail.
	l2 := NewLock(dir)
	if err := l2.Acquire(); err == nil {
		t.Fatal("second Acquire should fail while lock is held")
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := l2.Acquire(); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	l2.Release()
	// Release is idempotent.
	if err := l2.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestLockStaleCleanup(t *testing.T) {
	dir := t.TempDir()
	// PID 1 belongs to init, which we cannot signal, and a huge PID does
	// not exist. Use a value beyond pid_max.
	if err := os.WriteFile(filepath.Join(dir, "run.lock"), []byte("99999999"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLock(dir)
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire over stale lock: %v", err)
	}
	l.Release()
}

func TestLockInvalidContents(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "run.lock"), []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLock(dir)
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire over invalid lock: %v", err)
	}
	l.Release()
}
