package services

import (
	"context"
	"errors"
	"math"
	"testing"

	types "github.com/yungbote/enneagram-backend/internal/domain"
	"github.com/yungbote/enneagram-backend/internal/platform/apierr"
)

func TestStartAssessmentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := map[string]UserInfo{
		"missing first": {LastName: "L", Email: "a@example.com"},
		"missing last":  {FirstName: "F", Email: "a@example.com"},
		"missing email": {FirstName: "F", LastName: "L", Email: "  "},
		"bad email":     {FirstName: "F", LastName: "L", Email: "not-an-email"},
		"display name":  {FirstName: "F", LastName: "L", Email: "Ada <ada@example.com>"},
	}
	for name, info := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.StartAssessment(ctx, info)
			if !errors.Is(err, apierr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if status, _ := apierr.StatusOf(err); status != 400 {
				t.Fatalf("status=%d", status)
			}
		})
	}
}

func TestStartAssessmentNormalizesRespondent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.StartAssessment(ctx, UserInfo{FirstName: " Ada ", LastName: "Lovelace", Email: " Ada@Example.COM "})
	if err != nil {
		t.Fatalf("StartAssessment: %v", err)
	}
	second, err := f.svc.StartAssessment(ctx, UserInfo{FirstName: "Augusta", LastName: "King", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("StartAssessment: %v", err)
	}
	if first == second {
		t.Fatalf("each start must create a new assessment")
	}

	var respondents []types.Respondent
	if err := f.db.Find(&respondents).Error; err != nil {
		t.Fatalf("list respondents: %v", err)
	}
	if len(respondents) != 1 {
		t.Fatalf("expected 1 respondent, got %d", len(respondents))
	}
	r := respondents[0]
	if r.Email != "ada@example.com" || r.FirstName != "Augusta" || r.LastName != "King" {
		t.Fatalf("respondent not normalized/updated: %+v", r)
	}
	if f.status(t, first) != types.StatusCreated {
		t.Fatalf("new assessment should be CREATED")
	}
}

func TestSaveResponsesScores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.svc.StartAssessment(ctx, UserInfo{FirstName: "A", LastName: "B", Email: "scores@example.com"})
	if err != nil {
		t.Fatalf("StartAssessment: %v", err)
	}
	weights := map[string]float64{}
	rankings := map[int][]int{}
	for i, q := range f.bank.Ranking {
		weights[q.LikertID] = 100
		rankings[i] = []int{7, 8}
	}
	scores, err := f.svc.SaveResponses(ctx, id, weights, rankings)
	if err != nil {
		t.Fatalf("SaveResponses: %v", err)
	}
	if len(scores) != 9 {
		t.Fatalf("expected 9 scores, got %d", len(scores))
	}
	if math.Abs(scores["8"]-100) > 1e-6 || math.Abs(scores["9"]-50) > 1e-6 {
		t.Fatalf("unexpected scores: %v", scores)
	}

	// resubmitting replaces the previous rows
	rankings[0] = []int{0}
	if _, err := f.svc.SaveResponses(ctx, id, weights, rankings); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	rows, err := f.repos.Assessment.GetResults(dbcOf(ctx), id)
	if err != nil || len(rows) != 9 {
		t.Fatalf("GetResults: %d rows, %v", len(rows), err)
	}
	got := scoresFromRows(rows)
	if got["1"] <= 0 || got["8"] >= 100 {
		t.Fatalf("resubmitted scores not stored: %v", got)
	}
}

func TestSaveResponsesRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.svc.StartAssessment(ctx, UserInfo{FirstName: "A", LastName: "B", Email: "bad@example.com"})
	if err != nil {
		t.Fatalf("StartAssessment: %v", err)
	}
	likert := f.bank.Ranking[0].LikertID

	cases := []struct {
		name     string
		id       string
		weights  map[string]float64
		rankings map[int][]int
		kind     error
	}{
		{"empty id", "", nil, nil, apierr.ErrValidation},
		{"unknown likert", id, map[string]float64{"nope": 10}, nil, apierr.ErrValidation},
		{"weight too high", id, map[string]float64{likert: 101}, nil, apierr.ErrValidation},
		{"negative weight", id, map[string]float64{likert: -1}, nil, apierr.ErrValidation},
		{"question out of range", id, nil, map[int][]int{99: {0}}, apierr.ErrValidation},
		{"option out of range", id, nil, map[int][]int{0: {9}}, apierr.ErrValidation},
		{"repeated option", id, nil, map[int][]int{0: {2, 2}}, apierr.ErrValidation},
		{"unknown assessment", "missing", nil, nil, apierr.ErrNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := f.svc.SaveResponses(ctx, c.id, c.weights, c.rankings); !errors.Is(err, c.kind) {
				t.Fatalf("got %v want %v", err, c.kind)
			}
		})
	}
}

func TestSaveResponsesLockedAfterPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.paid(t, "locked@example.com")
	_, err := f.svc.SaveResponses(ctx, id, nil, nil)
	if !errors.Is(err, apierr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if status, code := apierr.StatusOf(err); status != 409 || code != "assessment_locked" {
		t.Fatalf("status=%d code=%s", status, code)
	}
}

func TestGetResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unpaid := f.started(t, "unpaid-results@example.com")
	if _, err := f.svc.GetResults(ctx, unpaid); !errors.Is(err, apierr.ErrForbidden) {
		t.Fatalf("unpaid: %v", err)
	}
	if _, err := f.svc.GetResults(ctx, "missing"); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("missing: %v", err)
	}

	id := f.paid(t, "results@example.com")
	res, err := f.svc.GetResults(ctx, id)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if res.AssessmentID != id || res.Status != types.StatusPaid || res.Analysis != nil {
		t.Fatalf("unexpected results: %+v", res)
	}
	if res.UserInfo.Email != "results@example.com" || res.UserInfo.FirstName != "Ada" {
		t.Fatalf("user info: %+v", res.UserInfo)
	}
	if len(res.Results) != 9 || res.Results[0].Type != "4" || res.Results[1].Type != "1" {
		t.Fatalf("results should be sorted highest first: %+v", res.Results)
	}
	if math.Abs(res.Scores()["4"]-100) > 1e-6 {
		t.Fatalf("Scores map: %v", res.Scores())
	}

	if _, err := f.repos.Analysis.Save(dbcOf(ctx), &types.Analysis{AssessmentID: id, Text: "narrative"}); err != nil {
		t.Fatalf("save analysis: %v", err)
	}
	res, err = f.svc.GetResults(ctx, id)
	if err != nil || res.Analysis == nil || *res.Analysis != "narrative" {
		t.Fatalf("analysis not attached: %+v %v", res, err)
	}
}
