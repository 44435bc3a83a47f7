package assessment_analysis

import (
	"errors"
	"fmt"

	jobrt "github.com/yungbote/enneagram-backend/internal/jobs/runtime"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
	"github.com/yungbote/enneagram-backend/internal/services"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	id := jc.PayloadString("assessment_id")
	if id == "" {
		id = jc.Job.EntityID
	}
	if id == "" {
		jc.Fail("validate", fmt.Errorf("missing assessment_id"))
		return nil
	}

	jc.Progress("generate", 10, "Generating analysis")
	out, err := p.analysis.GetOrStartAnalysis(jc.Ctx, id)
	if err != nil {
		jc.Fail("generate", err)
		return nil
	}

	switch out.Status {
	case services.AnalysisReady:
	case services.AnalysisInProgress:
		// another process holds the flag; wait for its result
		jc.Progress("await", 40, "Waiting for a concurrent generation")
		res, err := services.AwaitAnalysis(jc.Ctx, p.analysis, id, p.policy)
		if err != nil {
			jc.Fail("await", err)
			return nil
		}
		if !res.Ready {
			jc.Fail("await", fmt.Errorf("analysis %s: %s after %d attempts", id, res.Status, res.Attempts))
			return nil
		}
	default:
		reason := out.Reason
		if reason == "" {
			reason = "analysis generation failed"
		}
		jc.Fail("generate", errors.New(reason))
		return nil
	}

	emailQueued := false
	if p.emailResults && p.jobs != nil {
		jc.Progress("notify", 90, "Queueing results email")
		_, created, err := p.jobs.EnqueueIfIdle(
			dbctx.Context{Ctx: jc.Ctx},
			services.JobTypeResultsEmail,
			services.EntityAssessment,
			id,
			map[string]any{"assessment_id": id},
		)
		if err != nil {
			p.log.Warn("enqueue results email failed", "assessment_id", id, "error", err)
		}
		emailQueued = created
	}

	jc.Succeed("done", map[string]any{
		"assessment_id": id,
		"email_queued":  emailQueued,
	})
	return nil
}
