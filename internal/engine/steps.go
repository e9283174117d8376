package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pablasso/stagehand/internal/checklist"
	"github.com/pablasso/stagehand/internal/llm"
	"github.com/pablasso/stagehand/internal/plan"
	"github.com/pablasso/stagehand/internal/stage"
)

// executeSteps runs the implement phase step loop. Steps execute in plan
// order; a step whose checklist dependency already failed is recorded as
// blocked without touching the model. Each step gets one log entry with
// its final outcome, and the whole log is checkpointed after every step.
//
// prior carries entries from an earlier run of the same stage so the
// checkpoint file keeps the full history across a resume. failedIDs always
// starts empty: only completed results are sticky.
func (e *Engine) executeSteps(ctx context.Context, st *stage.Stage, steps []plan.Step, cl *checklist.Checklist, digest *Digest, projectDir string, meta stage.LogMeta, prior []stage.LogEntry) (*StepStats, error) {
	if len(steps) == 0 {
		return &StepStats{}, nil
	}

	entries := append([]stage.LogEntry{}, prior...)
	failedIDs := make(map[string]bool)
	if cl == nil {
		cl = &checklist.Checklist{}
	}

	for _, step := range steps {
		if cl.BlockedBy(step.ChecklistID, failedIDs) {
			e.log.Warn("step blocked by failed dependency", "step", step.StepNumber, "checklist_id", step.ChecklistID)
			entries = append(entries, stage.LogEntry{
				StepNumber:  step.StepNumber,
				ChecklistID: step.ChecklistID,
				Description: step.Description,
				Status:      stage.StepBlocked,
				Elapsed:     0,
				Error:       "dependency failed",
			})
			if err := st.SaveExecutionLog(meta, entries); err != nil {
				return nil, fmt.Errorf("checkpoint failed: %w", err)
			}
			e.progress.StepDone(step.StepNumber, stage.StepBlocked, "dependency failed")
			continue
		}

		e.progress.StepStart(step.StepNumber, len(steps), step.Description)
		e.log.Info("step", "number", step.StepNumber, "description", step.Description)
		start := time.Now()
		status := stage.StepFailed
		errText := ""

		for attempt := 0; attempt < e.cfg.MaxRetryPerStep; attempt++ {
			if err := e.runStepTurn(ctx, step, digest, entries, projectDir); err != nil {
				e.log.Error("step attempt failed", "step", step.StepNumber, "attempt", attempt+1, "error", err)
				errText = err.Error()
				continue
			}
			status = stage.StepCompleted
			errText = ""
			if step.ChecklistID != "" {
				if err := markStepCompleted(st, step.ChecklistID); err != nil {
					e.log.Warn("failed to update checklist.md", "step", step.StepNumber, "error", err)
				}
			}
			break
		}

		if status == stage.StepFailed && step.ChecklistID != "" {
			failedIDs[step.ChecklistID] = true
		}

		entries = append(entries, stage.LogEntry{
			StepNumber:  step.StepNumber,
			ChecklistID: step.ChecklistID,
			Description: step.Description,
			Status:      status,
			Elapsed:     time.Since(start).Seconds(),
			Error:       errText,
		})
		if err := st.SaveExecutionLog(meta, entries); err != nil {
			return nil, fmt.Errorf("checkpoint failed: %w", err)
		}
		e.progress.StepDone(step.StepNumber, status, errText)
	}

	// Stats cover this run's steps only, not prior entries.
	runEntries := entries[len(prior):]
	stats := &StepStats{Total: len(steps)}
	for _, entry := range runEntries {
		switch entry.Status {
		case stage.StepCompleted:
			stats.Completed++
		case stage.StepFailed:
			stats.Failed++
		case stage.StepBlocked:
			stats.Blocked++
		}
	}
	if stats.Total > 0 {
		stats.FailedPercent = float64(stats.Failed) / float64(stats.Total) * 100
	}

	// Final snapshot carries the terminal metadata; until now the log had
	// no status, which is what marks an interrupted run.
	meta.Status = e.classifyRun(stats)
	meta.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	if err := st.SaveExecutionLog(meta, entries); err != nil {
		return nil, fmt.Errorf("checkpoint failed: %w", err)
	}
	return stats, nil
}

// runStepTurn feeds one step into the tool loop. The prompt carries the
// project digest and a window of trailing log entries so the model knows
// what already happened.
func (e *Engine) runStepTurn(ctx context.Context, step plan.Step, digest *Digest, entries []stage.LogEntry, projectDir string) error {
	window := entries
	if e.cfg.LogWindow > 0 && len(window) > e.cfg.LogWindow {
		window = window[len(window)-e.cfg.LogWindow:]
	}
	windowJSON, _ := json.Marshal(window)

	e.bridge.Append(llm.Message{
		Role: llm.RoleSystem,
		Content: fmt.Sprintf(
			"You are executing a step of the implementation plan.\n"+
				"The absolute project root is %s\n"+
				"ALL file paths MUST stay inside %s.",
			projectDir, projectDir,
		),
	})
	e.bridge.Append(llm.Message{
		Role: llm.RoleUser,
		Content: fmt.Sprintf(
			"Execute this step:\n%s\n\n"+
				"Project digest: %s\n"+
				"Recent step outcomes: %s\n\n"+
				"Use the available tools to make the change, then reply with a short summary.",
			compactJSON(step), compactJSON(digest), string(windowJSON),
		),
	})

	_, err := e.bridge.Step(ctx, projectDir)
	return err
}

// classifyRun maps implement-phase stats to a run status.
func (e *Engine) classifyRun(stats *StepStats) string {
	switch {
	case stats.FailedPercent > e.cfg.FailedThresholdPercent:
		return stage.StatusCriticalFailure
	case stats.Failed > 0:
		return stage.StatusPartial
	default:
		return stage.StatusCompleted
	}
}
