package services

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/yungbote/enneagram-backend/internal/observability"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
	"github.com/yungbote/enneagram-backend/internal/platform/sendgrid"
	"github.com/yungbote/enneagram-backend/internal/render"
	"github.com/yungbote/enneagram-backend/internal/scoring"
)

type DeliveryReceipt struct {
	Skipped   bool   `json:"skipped"`
	MessageID string `json:"message_id,omitempty"`
	To        string `json:"to,omitempty"`
}

// ResultsDelivery emails a respondent their scores, chart and result link.
type ResultsDelivery interface {
	Send(ctx context.Context, assessmentID string) (*DeliveryReceipt, error)
	Chart(ctx context.Context, assessmentID string) ([]byte, error)
}

type resultsDelivery struct {
	log         *logger.Logger
	assessments AssessmentService
	chart       *render.ChartRenderer
	links       *ResultLinks
	mailer      sendgrid.Mailer
	library     *scoring.Library
	from        sendgrid.Address
}

// NewResultsDelivery accepts a nil mailer or links; a nil mailer turns Send
// into a logged no-op.
func NewResultsDelivery(
	baseLog *logger.Logger,
	assessments AssessmentService,
	chart *render.ChartRenderer,
	links *ResultLinks,
	mailer sendgrid.Mailer,
	library *scoring.Library,
	from sendgrid.Address,
) ResultsDelivery {
	return &resultsDelivery{
		log:         baseLog.With("service", "ResultsDelivery"),
		assessments: assessments,
		chart:       chart,
		links:       links,
		mailer:      mailer,
		library:     library,
		from:        from,
	}
}

func (d *resultsDelivery) Chart(ctx context.Context, assessmentID string) ([]byte, error) {
	res, err := d.assessments.GetResults(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	return d.chart.ScoreChart(chartTitle(res), res.Scores())
}

func (d *resultsDelivery) Send(ctx context.Context, assessmentID string) (*DeliveryReceipt, error) {
	res, err := d.assessments.GetResults(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if d.mailer == nil {
		observability.Current().IncEmail("skipped")
		d.log.Info("results email disabled; skipping", "assessment_id", assessmentID)
		return &DeliveryReceipt{Skipped: true}, nil
	}

	png, err := d.chart.ScoreChart(chartTitle(res), res.Scores())
	if err != nil {
		return nil, err
	}
	link := ""
	if d.links != nil {
		if link, err = d.links.URL(assessmentID); err != nil {
			return nil, err
		}
	}

	text, htmlBody := d.compose(res, link)
	out, err := d.mailer.Send(ctx, sendgrid.Message{
		From:    d.from,
		To:      []sendgrid.Address{{Email: res.UserInfo.Email, Name: strings.TrimSpace(res.UserInfo.FirstName + " " + res.UserInfo.LastName)}},
		Subject: "Your Enneagram results",
		Text:    text,
		HTML:    htmlBody,
		Tags:    []string{"results"},
		Args:    map[string]string{"assessment_id": assessmentID},
		Attachments: []sendgrid.Attachment{{
			Name: "enneagram-results.png",
			Type: "image/png",
			Data: png,
			CID:  "results-chart",
		}},
	})
	if err != nil {
		observability.Current().IncEmail("failed")
		return nil, fmt.Errorf("send results email: %w", err)
	}
	observability.Current().IncEmail("sent")
	d.log.Info("results email sent", "assessment_id", assessmentID, "message_id", out.MessageID)
	return &DeliveryReceipt{MessageID: out.MessageID, To: res.UserInfo.Email}, nil
}

func chartTitle(res *Results) string {
	name := strings.TrimSpace(res.UserInfo.FirstName)
	if name == "" {
		return "Enneagram results"
	}
	return name + "'s Enneagram results"
}

func (d *resultsDelivery) compose(res *Results, link string) (string, string) {
	var t, h strings.Builder
	fmt.Fprintf(&t, "Hi %s,\n\nHere are your Enneagram results.\n\n", res.UserInfo.FirstName)
	fmt.Fprintf(&h, "<p>Hi %s,</p><p>Here are your Enneagram results.</p><ol>", html.EscapeString(res.UserInfo.FirstName))
	for _, ts := range res.Results {
		name := d.library.Name(ts.Type)
		fmt.Fprintf(&t, "Type %s (%s): %.1f\n", ts.Type, name, ts.Score)
		fmt.Fprintf(&h, "<li>Type %s (%s): %.1f</li>", ts.Type, html.EscapeString(name), ts.Score)
	}
	h.WriteString(`</ol><p><img src="cid:results-chart" alt="Score chart"></p>`)
	if res.Analysis != nil {
		fmt.Fprintf(&t, "\n%s\n", *res.Analysis)
		for _, para := range strings.Split(*res.Analysis, "\n\n") {
			if p := strings.TrimSpace(para); p != "" {
				fmt.Fprintf(&h, "<p>%s</p>", html.EscapeString(p))
			}
		}
	}
	if link != "" {
		fmt.Fprintf(&t, "\nView your results online: %s\n", link)
		fmt.Fprintf(&h, `<p><a href="%s">View your results online</a></p>`, html.EscapeString(link))
	}
	return t.String(), h.String()
}
