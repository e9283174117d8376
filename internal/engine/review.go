package engine

import (
	"context"
	"strings"

	"github.com/pablasso/stagehand/internal/stage"
	"github.com/pablasso/stagehand/internal/workflow"
)

// approvalWords are responses treated as a plain sign-off.
var approvalWords = map[string]bool{
	"": true, "ok": true, "okay": true, "yes": true, "y": true,
	"approve": true, "approved": true, "lgtm": true, "continue": true,
}

// runReview shows the planning documents to the user and folds their
// feedback back into the documents. Feedback comes two ways: the typed
// response, and <!-- COMMENT: ... --> annotations left inside the rendered
// markdown files. The loop is bounded; when iterations run out the current
// documents stand.
func (e *Engine) runReview(ctx context.Context, wf workflow.Def, st *stage.Stage, docs *documents) error {
	for i := 0; i < e.cfg.MaxReviewIterations; i++ {
		response := strings.TrimSpace(e.progress.ReviewRequest(reviewSummary(docs)))
		inline := extractInlineComments(st.ArtifactsDir())

		var parts []string
		if !approvalWords[strings.ToLower(response)] {
			parts = append(parts, response)
		}
		if inline != "" {
			parts = append(parts, inline)
		}
		if len(parts) == 0 {
			return nil
		}
		comments := strings.Join(parts, "\n")
		e.log.Info("review feedback received", "iteration", i+1)

		decision, err := e.gen.parseReviewComments(ctx, comments, docs.cl, docs.wt, docs.pl)
		if err != nil {
			return err
		}
		regen := make(map[string]bool)
		for _, doc := range decision.DocumentsToRegenerate {
			regen[strings.ToLower(doc)] = true
		}
		// Downstream documents are derived, so a regenerated checklist
		// invalidates the walkthrough and plan, and a regenerated
		// walkthrough invalidates the plan.
		if regen["checklist"] {
			regen["walkthrough"] = true
		}
		if regen["walkthrough"] {
			regen["plan"] = true
		}
		if len(regen) == 0 {
			regen["plan"] = true
		}

		if regen["checklist"] {
			cl, err := e.gen.generateChecklist(ctx, docs.digest, docs.parsed, comments)
			if err != nil {
				return err
			}
			docs.cl = cl
			if err := e.saveChecklist(st, cl); err != nil {
				return err
			}
		}
		if regen["walkthrough"] {
			wt, err := e.gen.generateWalkthrough(ctx, docs.digest, docs.parsed, docs.cl, comments)
			if err != nil {
				return err
			}
			docs.wt = wt
			if err := e.saveWalkthrough(st, wt); err != nil {
				return err
			}
		}
		if regen["plan"] {
			pl, err := e.gen.generatePlan(ctx, docs.digest, docs.parsed, docs.cl, docs.wt, comments)
			if err != nil {
				return err
			}
			docs.pl = pl
			if err := e.savePlan(st, wf.Name, pl); err != nil {
				return err
			}
			if err := st.SavePlan(trackingPlan(wf, pl)); err != nil {
				return err
			}
		}
	}
	e.log.Warn("review iterations exhausted, proceeding with current documents")
	return nil
}

func reviewSummary(docs *documents) string {
	var b strings.Builder
	b.WriteString("Planning documents are ready for review.\n\n")
	if docs.cl != nil {
		b.WriteString(renderChecklistMarkdown(docs.cl))
		b.WriteString("\n")
	}
	if docs.wt != nil {
		b.WriteString(renderWalkthroughMarkdown(docs.wt))
		b.WriteString("\n")
	}
	if docs.pl != nil {
		b.WriteString(renderPlanMarkdown(docs.pl))
	}
	return b.String()
}
