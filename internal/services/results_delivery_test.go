package services

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/enneagram-backend/internal/platform/apierr"
	"github.com/yungbote/enneagram-backend/internal/platform/sendgrid"
	"github.com/yungbote/enneagram-backend/internal/render"
)

func newDelivery(t *testing.T, f *fixture, mailer sendgrid.Mailer) ResultsDelivery {
	t.Helper()
	chart, err := render.NewChartRenderer("")
	if err != nil {
		t.Fatalf("NewChartRenderer: %v", err)
	}
	links, err := NewResultLinks("s3cret", time.Hour, "https://app.example/r")
	if err != nil {
		t.Fatalf("NewResultLinks: %v", err)
	}
	return NewResultsDelivery(f.log, f.svc, chart, links, mailer, f.lib, sendgrid.Address{Email: "results@example.com", Name: "Results"})
}

func TestResultsDeliverySend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mailer := &fakeMailer{}
	d := newDelivery(t, f, mailer)
	id := f.paid(t, "mail@example.com")

	receipt, err := d.Send(ctx, id)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if receipt.Skipped || receipt.MessageID != "msg-1" || receipt.To != "mail@example.com" {
		t.Fatalf("receipt: %+v", receipt)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(mailer.sent))
	}
	msg := mailer.sent[0]
	if msg.To[0].Email != "mail@example.com" || msg.Args["assessment_id"] != id {
		t.Fatalf("addressing: %+v", msg)
	}
	if !strings.Contains(msg.Text, "https://app.example/r/") || !strings.Contains(msg.HTML, "cid:results-chart") {
		t.Fatalf("body missing link or chart reference")
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].CID != "results-chart" {
		t.Fatalf("attachments: %+v", msg.Attachments)
	}
	if _, err := png.Decode(bytes.NewReader(msg.Attachments[0].Data)); err != nil {
		t.Fatalf("chart attachment is not a png: %v", err)
	}
	if strings.Index(msg.Text, "Type 4") > strings.Index(msg.Text, "Type 1") {
		t.Fatalf("top type should be listed first:\n%s", msg.Text)
	}
}

func TestResultsDeliveryEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.paid(t, "edge@example.com")

	skipped, err := newDelivery(t, f, nil).Send(ctx, id)
	if err != nil || !skipped.Skipped {
		t.Fatalf("nil mailer should skip: %+v %v", skipped, err)
	}

	failing := newDelivery(t, f, &fakeMailer{err: errBoom})
	if _, err := failing.Send(ctx, id); !errors.Is(err, errBoom) {
		t.Fatalf("mailer error should surface: %v", err)
	}

	unpaid := f.started(t, "nopay@example.com")
	mailer := &fakeMailer{}
	if _, err := newDelivery(t, f, mailer).Send(ctx, unpaid); !errors.Is(err, apierr.ErrForbidden) {
		t.Fatalf("unpaid: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("unpaid results must not be mailed")
	}
}

func TestResultsDeliveryChart(t *testing.T) {
	f := newFixture(t)
	d := newDelivery(t, f, nil)
	id := f.paid(t, "chart@example.com")

	b, err := d.Chart(context.Background(), id)
	if err != nil {
		t.Fatalf("Chart: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(b)); err != nil {
		t.Fatalf("not a png: %v", err)
	}
}
