package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/enneagram-backend/internal/data/repos"
	types "github.com/yungbote/enneagram-backend/internal/domain"
	"github.com/yungbote/enneagram-backend/internal/platform/apierr"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
	"github.com/yungbote/enneagram-backend/internal/scoring"
)

type UserInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type Results struct {
	AssessmentID string                 `json:"assessment_id"`
	UserInfo     UserInfo               `json:"user_info"`
	Status       types.AssessmentStatus `json:"status"`
	Results      []scoring.TypeScore    `json:"results"`
	Analysis     *string                `json:"analysis"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Scores returns the results as a map keyed by type.
func (r *Results) Scores() map[scoring.TypeID]float64 {
	out := make(map[scoring.TypeID]float64, len(r.Results))
	for _, ts := range r.Results {
		out[ts.Type] = ts.Score
	}
	return out
}

type AssessmentService interface {
	StartAssessment(ctx context.Context, info UserInfo) (string, error)
	SaveResponses(ctx context.Context, assessmentID string, weights map[string]float64, rankings map[int][]int) (map[scoring.TypeID]float64, error)
	GetResults(ctx context.Context, assessmentID string) (*Results, error)
	Bank() *scoring.Bank
}

type assessmentService struct {
	log         *logger.Logger
	assessments repos.AssessmentRepo
	analyses    repos.AnalysisRepo
	bank        *scoring.Bank
}

func NewAssessmentService(baseLog *logger.Logger, assessments repos.AssessmentRepo, analyses repos.AnalysisRepo, bank *scoring.Bank) AssessmentService {
	return &assessmentService{
		log:         baseLog.With("service", "AssessmentService"),
		assessments: assessments,
		analyses:    analyses,
		bank:        bank,
	}
}

func (s *assessmentService) Bank() *scoring.Bank { return s.bank }

func (s *assessmentService) StartAssessment(ctx context.Context, info UserInfo) (string, error) {
	info.FirstName = strings.TrimSpace(info.FirstName)
	info.LastName = strings.TrimSpace(info.LastName)
	info.Email = strings.ToLower(strings.TrimSpace(info.Email))
	switch {
	case info.FirstName == "":
		return "", apierr.Validation("missing_first_name", "first name is required")
	case info.LastName == "":
		return "", apierr.Validation("missing_last_name", "last name is required")
	case info.Email == "":
		return "", apierr.Validation("missing_email", "email is required")
	}
	if addr, err := mail.ParseAddress(info.Email); err != nil || addr.Address != info.Email {
		return "", apierr.Validation("invalid_email", "email %q is not valid", info.Email)
	}

	dbc := dbctx.Context{Ctx: ctx}
	r, err := s.assessments.UpsertRespondent(dbc, info.Email, info.FirstName, info.LastName)
	if err != nil {
		return "", fmt.Errorf("upsert respondent: %w", err)
	}
	a, err := s.assessments.Create(dbc, &types.Assessment{RespondentID: r.ID, Status: types.StatusCreated})
	if err != nil {
		return "", fmt.Errorf("create assessment: %w", err)
	}
	s.log.Info("assessment started", "assessment_id", a.ID, "respondent_id", r.ID)
	return a.ID, nil
}

func (s *assessmentService) SaveResponses(ctx context.Context, assessmentID string, weights map[string]float64, rankings map[int][]int) (map[scoring.TypeID]float64, error) {
	assessmentID = strings.TrimSpace(assessmentID)
	if assessmentID == "" {
		return nil, apierr.Validation("missing_assessment_id", "assessment id is required")
	}
	if err := s.validateResponses(weights, rankings); err != nil {
		return nil, err
	}

	dbc := dbctx.Context{Ctx: ctx}
	a, err := s.assessments.GetByID(dbc, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("load assessment: %w", err)
	}
	if a == nil {
		return nil, apierr.NotFound("assessment_not_found", "assessment %s not found", assessmentID)
	}
	if a.Status != types.StatusCreated {
		return nil, apierr.Conflict("assessment_locked", "assessment %s is %s; responses can no longer change", assessmentID, a.Status)
	}

	scores := scoring.ComputeScores(weights, rankings, s.bank.Ranking)

	rows := make([]types.TypeResult, 0, len(scoring.TypeIDs))
	for _, id := range scoring.TypeIDs {
		rows = append(rows, types.TypeResult{TypeID: string(id), Score: scores[id]})
	}
	wb, err := json.Marshal(weights)
	if err != nil {
		return nil, fmt.Errorf("marshal weights: %w", err)
	}
	rb, err := json.Marshal(rankings)
	if err != nil {
		return nil, fmt.Errorf("marshal rankings: %w", err)
	}
	if err := s.assessments.SaveResponses(dbc, assessmentID, wb, rb, rows); err != nil {
		return nil, fmt.Errorf("save responses: %w", err)
	}
	return scores, nil
}

func (s *assessmentService) validateResponses(weights map[string]float64, rankings map[int][]int) error {
	likert := s.bank.LikertIDs()
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !likert[k] {
			return apierr.Validation("invalid_weights", "unknown likert question %q", k)
		}
		if w := weights[k]; w < 0 || w > 100 {
			return apierr.Validation("invalid_weights", "weight for %q must be between 0 and 100, got %v", k, w)
		}
	}
	for qi, ranked := range rankings {
		if qi < 0 || qi >= len(s.bank.Ranking) {
			return apierr.Validation("invalid_rankings", "unknown ranking question index %d", qi)
		}
		seen := make(map[int]bool, len(ranked))
		for _, opt := range ranked {
			if opt < 0 || opt >= len(s.bank.Ranking[qi].Options) {
				return apierr.Validation("invalid_rankings", "question %d has no option %d", qi, opt)
			}
			if seen[opt] {
				return apierr.Validation("invalid_rankings", "question %d ranks option %d twice", qi, opt)
			}
			seen[opt] = true
		}
	}
	return nil
}

// GetResults assembles the result view. The analysis is nil until generated.
func (s *assessmentService) GetResults(ctx context.Context, assessmentID string) (*Results, error) {
	assessmentID = strings.TrimSpace(assessmentID)
	if assessmentID == "" {
		return nil, apierr.Validation("missing_assessment_id", "assessment id is required")
	}
	dbc := dbctx.Context{Ctx: ctx}
	a, err := s.assessments.GetWithRespondent(dbc, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("load assessment: %w", err)
	}
	if a == nil {
		return nil, apierr.NotFound("assessment_not_found", "assessment %s not found", assessmentID)
	}
	if !a.Status.Paid() {
		return nil, apierr.Forbidden("payment_required", "assessment %s is not paid", assessmentID)
	}
	if err := requireResults(assessmentID, a.Results); err != nil {
		return nil, err
	}

	out := &Results{
		AssessmentID: a.ID,
		Status:       a.Status,
		Results:      scoring.Sorted(scoresFromRows(a.Results)),
		CreatedAt:    a.CreatedAt,
	}
	if a.Respondent != nil {
		out.UserInfo = UserInfo{FirstName: a.Respondent.FirstName, LastName: a.Respondent.LastName, Email: a.Respondent.Email}
	}
	an, err := s.analyses.GetByAssessmentID(dbc, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("load analysis: %w", err)
	}
	if an != nil {
		text := an.Text
		out.Analysis = &text
	}
	return out, nil
}
