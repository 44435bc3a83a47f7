package results_email

import (
	"fmt"

	jobrt "github.com/yungbote/enneagram-backend/internal/jobs/runtime"
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
	if p.delivery == nil {
		jc.Fail("validate", fmt.Errorf("results delivery not configured"))
		return nil
	}

	jc.Progress("send", 20, "Sending results email")
	receipt, err := p.delivery.Send(jc.Ctx, id)
	if err != nil {
		jc.Fail("send", err)
		return nil
	}
	stage := "done"
	if receipt.Skipped {
		stage = "skipped"
	}
	jc.Succeed(stage, map[string]any{
		"assessment_id": id,
		"skipped":       receipt.Skipped,
		"message_id":    receipt.MessageID,
		"to":            receipt.To,
	})
	return nil
}
