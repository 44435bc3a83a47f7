package results_email

import (
	"context"
	"errors"
	"testing"

	types "github.com/yungbote/enneagram-backend/internal/domain"
	jobstatus "github.com/yungbote/enneagram-backend/internal/domain/jobs"
	jobrt "github.com/yungbote/enneagram-backend/internal/jobs/runtime"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
	"github.com/yungbote/enneagram-backend/internal/services"
)

type fakeDelivery struct {
	receipt *services.DeliveryReceipt
	err     error
	sent    []string
}

func (f *fakeDelivery) Send(_ context.Context, id string) (*services.DeliveryReceipt, error) {
	f.sent = append(f.sent, id)
	return f.receipt, f.err
}

func (f *fakeDelivery) Chart(context.Context, string) ([]byte, error) { return nil, nil }

func newJob(payload string) *jobrt.Context {
	return jobrt.NewContext(context.Background(), &types.JobRun{
		ID:       "job-1",
		JobType:  services.JobTypeResultsEmail,
		EntityID: "a1",
		Status:   jobstatus.StatusRunning,
		Payload:  []byte(payload),
	}, nil, logger.Nop())
}

func TestRun(t *testing.T) {
	cases := []struct {
		name     string
		delivery *fakeDelivery
		status   string
		stage    string
	}{
		{"sent", &fakeDelivery{receipt: &services.DeliveryReceipt{MessageID: "m1", To: "a@example.com"}}, jobstatus.StatusSucceeded, "done"},
		{"mail disabled", &fakeDelivery{receipt: &services.DeliveryReceipt{Skipped: true}}, jobstatus.StatusSucceeded, "skipped"},
		{"provider error", &fakeDelivery{err: errors.New("503")}, jobstatus.StatusFailed, "send"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := New(logger.Nop(), c.delivery)
			jc := newJob(`{"assessment_id":"a1"}`)
			if err := p.Run(jc); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if jc.Job.Status != c.status || jc.Job.Stage != c.stage {
				t.Fatalf("status=%s stage=%s", jc.Job.Status, jc.Job.Stage)
			}
			if len(c.delivery.sent) != 1 || c.delivery.sent[0] != "a1" {
				t.Fatalf("sent: %v", c.delivery.sent)
			}
		})
	}
}

func TestRunWithoutDelivery(t *testing.T) {
	jc := newJob(`{}`)
	_ = New(logger.Nop(), nil).Run(jc)
	if jc.Job.Status != jobstatus.StatusFailed || jc.Job.Stage != "validate" {
		t.Fatalf("status=%s stage=%s", jc.Job.Status, jc.Job.Stage)
	}
}
