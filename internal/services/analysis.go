package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/enneagram-backend/internal/data/repos"
	types "github.com/yungbote/enneagram-backend/internal/domain"
	jobstatus "github.com/yungbote/enneagram-backend/internal/domain/jobs"
	"github.com/yungbote/enneagram-backend/internal/observability"
	"github.com/yungbote/enneagram-backend/internal/platform/apierr"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
	"github.com/yungbote/enneagram-backend/internal/poll"
	"github.com/yungbote/enneagram-backend/internal/scoring"
)

type AnalysisStatus string

const (
	AnalysisReady       AnalysisStatus = "ready"
	AnalysisInProgress  AnalysisStatus = "in-progress"
	AnalysisError       AnalysisStatus = "error"
	AnalysisUnavailable AnalysisStatus = "unavailable"
)

type AnalysisOutcome struct {
	Status AnalysisStatus `json:"status"`
	Text   string         `json:"analysis,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

// AnalysisSource is anything that can be asked for an assessment's analysis.
type AnalysisSource interface {
	GetOrStartAnalysis(ctx context.Context, assessmentID string) (*AnalysisOutcome, error)
}

type AnalysisService interface {
	AnalysisSource
	// FetchOrStart never generates inline. It reports ready/in-progress/error
	// and hands missing work to the job queue.
	FetchOrStart(ctx context.Context, assessmentID string) (*AnalysisOutcome, error)
	Stored(ctx context.Context, assessmentID string) (*types.Analysis, error)
}

type analysisService struct {
	log         *logger.Logger
	assessments repos.AssessmentRepo
	analyses    repos.AnalysisRepo
	generator   NarrativeGenerator
	tracker     *AnalysisTracker
	jobs        JobService
	timeout     time.Duration
	maxAttempts int
}

func NewAnalysisService(
	baseLog *logger.Logger,
	assessments repos.AssessmentRepo,
	analyses repos.AnalysisRepo,
	generator NarrativeGenerator,
	tracker *AnalysisTracker,
	jobs JobService,
	timeout time.Duration,
	maxAttempts int,
) AnalysisService {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if tracker == nil {
		tracker = NewAnalysisTracker(baseLog, nil, 0)
	}
	return &analysisService{
		log:         baseLog.With("service", "AnalysisService"),
		assessments: assessments,
		analyses:    analyses,
		generator:   generator,
		tracker:     tracker,
		jobs:        jobs,
		timeout:     timeout,
		maxAttempts: maxAttempts,
	}
}

func ready(text string) *AnalysisOutcome {
	return &AnalysisOutcome{Status: AnalysisReady, Text: text}
}

func (s *analysisService) Stored(ctx context.Context, assessmentID string) (*types.Analysis, error) {
	return s.analyses.GetByAssessmentID(dbctx.Context{Ctx: ctx}, assessmentID)
}

func (s *analysisService) stored(ctx context.Context, id string) (*AnalysisOutcome, error) {
	if text, ok := s.tracker.Cached(id); ok {
		return ready(text), nil
	}
	a, err := s.analyses.GetByAssessmentID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, fmt.Errorf("load analysis: %w", err)
	}
	if a == nil {
		return nil, nil
	}
	s.tracker.Remember(id, a.Text)
	return ready(a.Text), nil
}

// GetOrStartAnalysis returns the stored analysis or generates it, unless
// another caller already is. Generation failures come back as an error
// outcome, not an error, so the caller can retry later.
func (s *analysisService) GetOrStartAnalysis(ctx context.Context, assessmentID string) (*AnalysisOutcome, error) {
	id := strings.TrimSpace(assessmentID)
	if id == "" {
		return nil, apierr.Validation("missing_assessment_id", "assessment id is required")
	}
	if out, err := s.stored(ctx, id); err != nil || out != nil {
		return out, err
	}

	release, ok := s.tracker.TryBegin(ctx, id)
	if !ok {
		return &AnalysisOutcome{Status: AnalysisInProgress}, nil
	}
	defer release()

	// a racing generator may have finished between the first read and the flag
	if out, err := s.stored(ctx, id); err != nil || out != nil {
		return out, err
	}

	dbc := dbctx.Context{Ctx: ctx}
	a, err := s.assessments.GetByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("load assessment: %w", err)
	}
	if a == nil {
		return nil, apierr.NotFound("assessment_not_found", "assessment %s not found", id)
	}
	if !a.Status.Paid() {
		return nil, apierr.Forbidden("payment_required", "assessment %s is not paid", id)
	}
	rows, err := s.assessments.GetResults(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	if err := requireResults(id, rows); err != nil {
		return nil, err
	}
	sorted := scoring.Sorted(scoresFromRows(rows))

	// detached: a caller hanging up must not abort a paid generation
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	started := time.Now()
	text, genErr := s.generator.Generate(genCtx, sorted)
	if genErr != nil {
		gerr := apierr.AnalysisGeneration(genErr)
		observability.Current().ObserveAnalysis("error", time.Since(started))
		s.log.Warn("analysis generation failed",
			"assessment_id", id,
			"elapsed_ms", time.Since(started).Milliseconds(),
			"error", genErr,
		)
		return &AnalysisOutcome{Status: AnalysisError, Reason: gerr.Error()}, nil
	}

	saved, err := s.analyses.Save(dbctx.Context{Ctx: genCtx}, &types.Analysis{
		AssessmentID: id,
		Text:         text,
		Model:        s.generator.Model(),
	})
	if err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	if _, err := s.assessments.AdvanceStatus(dbctx.Context{Ctx: genCtx}, id, types.StatusAnalyzed); err != nil {
		return nil, fmt.Errorf("advance status: %w", err)
	}
	s.tracker.Remember(id, saved.Text)
	observability.Current().ObserveAnalysis("ready", time.Since(started))
	s.log.Info("analysis generated", "assessment_id", id, "elapsed_ms", time.Since(started).Milliseconds())
	return ready(saved.Text), nil
}

func (s *analysisService) FetchOrStart(ctx context.Context, assessmentID string) (*AnalysisOutcome, error) {
	id := strings.TrimSpace(assessmentID)
	if id == "" {
		return nil, apierr.Validation("missing_assessment_id", "assessment id is required")
	}
	if out, err := s.stored(ctx, id); err != nil || out != nil {
		return out, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	a, err := s.assessments.GetByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("load assessment: %w", err)
	}
	if a == nil {
		return nil, apierr.NotFound("assessment_not_found", "assessment %s not found", id)
	}
	if !a.Status.Paid() {
		return nil, apierr.Forbidden("payment_required", "assessment %s is not paid", id)
	}
	if s.tracker.InProgress(id) || s.jobs == nil {
		return &AnalysisOutcome{Status: AnalysisInProgress}, nil
	}

	job, err := s.jobs.GetLatestForEntity(dbc, EntityAssessment, id, JobTypeAssessmentAnalysis)
	if err != nil {
		return nil, fmt.Errorf("load analysis job: %w", err)
	}
	if job != nil && (job.Status == jobstatus.StatusQueued || job.Status == jobstatus.StatusRunning) {
		return &AnalysisOutcome{Status: AnalysisInProgress}, nil
	}
	retryPending := job != nil && job.Status == jobstatus.StatusFailed && job.Attempts < s.maxAttempts
	if retryPending {
		return &AnalysisOutcome{Status: AnalysisInProgress}, nil
	}

	if _, _, err := s.jobs.EnqueueIfIdle(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, JobTypeAssessmentAnalysis, EntityAssessment, id,
		map[string]any{"assessment_id": id}); err != nil {
		s.log.Error("enqueue analysis failed", "assessment_id", id, "error", err)
	}
	if job != nil && job.Status == jobstatus.StatusFailed {
		// the previous run gave up; report it once while the new run is queued
		return &AnalysisOutcome{Status: AnalysisError, Reason: job.Error}, nil
	}
	return &AnalysisOutcome{Status: AnalysisInProgress}, nil
}

type AwaitResult struct {
	Ready    bool           `json:"ready"`
	Status   AnalysisStatus `json:"status"`
	Text     string         `json:"analysis,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Attempts int            `json:"attempts"`
}

// AwaitAnalysis polls src until the analysis is ready. Running out of
// attempts is not an error: it yields Status unavailable. Validation,
// not-found and forbidden errors stop the loop immediately.
func AwaitAnalysis(ctx context.Context, src AnalysisSource, assessmentID string, policy poll.Policy) (*AwaitResult, error) {
	res := &AwaitResult{Status: AnalysisInProgress}
	err := poll.Until(ctx, policy, func(ctx context.Context, attempt int) (bool, error) {
		res.Attempts = attempt
		out, err := src.GetOrStartAnalysis(ctx, assessmentID)
		if err != nil {
			if isHardAnalysisError(err) {
				return false, err
			}
			// transient store or transport trouble; try again next tick
			res.Reason = err.Error()
			return false, nil
		}
		res.Status = out.Status
		res.Reason = out.Reason
		if out.Status == AnalysisReady {
			res.Ready = true
			res.Text = out.Text
			return true, nil
		}
		return false, nil
	})
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, poll.ErrExhausted):
		res.Status = AnalysisUnavailable
		return res, nil
	default:
		return nil, err
	}
}

func isHardAnalysisError(err error) bool {
	return errors.Is(err, apierr.ErrValidation) ||
		errors.Is(err, apierr.ErrNotFound) ||
		errors.Is(err, apierr.ErrForbidden) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func scoresFromRows(rows []types.TypeResult) map[scoring.TypeID]float64 {
	out := make(map[scoring.TypeID]float64, len(scoring.TypeIDs))
	for _, id := range scoring.TypeIDs {
		out[id] = 0
	}
	for _, r := range rows {
		if scoring.IsTypeID(r.TypeID) {
			out[scoring.TypeID(r.TypeID)] = r.Score
		}
	}
	return out
}

// requireResults rejects an assessment whose responses were never saved, so
// nothing downstream treats missing rows as zero scores.
func requireResults(id string, rows []types.TypeResult) error {
	if len(rows) < len(scoring.TypeIDs) {
		return apierr.Validation("responses_missing", "assessment %s has no saved responses", id)
	}
	return nil
}
