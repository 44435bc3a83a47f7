package services

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/enneagram-backend/internal/data/repos"
	types "github.com/yungbote/enneagram-backend/internal/domain"
	jobstatus "github.com/yungbote/enneagram-backend/internal/domain/jobs"
	"github.com/yungbote/enneagram-backend/internal/platform/ctxutil"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

const (
	JobTypeAssessmentAnalysis = "assessment_analysis"
	JobTypeResultsEmail       = "results_email"

	EntityAssessment = "assessment"
)

type JobService interface {
	Enqueue(dbc dbctx.Context, jobType string, entityType string, entityID string, payload map[string]any) (*types.JobRun, error)
	// EnqueueIfIdle skips the insert when a queued or running job of the same
	// type already exists for the entity.
	EnqueueIfIdle(dbc dbctx.Context, jobType string, entityType string, entityID string, payload map[string]any) (*types.JobRun, bool, error)
	GetLatestForEntity(dbc dbctx.Context, entityType string, entityID string, jobType string) (*types.JobRun, error)
}

type jobService struct {
	log  *logger.Logger
	repo repos.JobRunRepo
}

func NewJobService(baseLog *logger.Logger, repo repos.JobRunRepo) JobService {
	return &jobService{
		log:  baseLog.With("service", "JobService"),
		repo: repo,
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, jobType string, entityType string, entityID string, payload map[string]any) (*types.JobRun, error) {
	job, err := newJobRun(dbc, jobType, entityType, entityID, payload)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(dbc, []*types.JobRun{job})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	s.log.Debug("job enqueued", "job_id", job.ID, "job_type", jobType, "entity_id", entityID)
	return created[0], nil
}

func (s *jobService) EnqueueIfIdle(dbc dbctx.Context, jobType string, entityType string, entityID string, payload map[string]any) (*types.JobRun, bool, error) {
	job, err := newJobRun(dbc, jobType, entityType, entityID, payload)
	if err != nil {
		return nil, false, err
	}
	created, err := s.repo.CreateIfIdle(dbc, job)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	if !created {
		return nil, false, nil
	}
	s.log.Debug("job enqueued", "job_id", job.ID, "job_type", jobType, "entity_id", entityID)
	return job, true, nil
}

func newJobRun(dbc dbctx.Context, jobType string, entityType string, entityID string, payload map[string]any) (*types.JobRun, error) {
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if tr, ok := ctxutil.TraceFrom(dbc.Ctx); ok {
		tr.Inject(payload)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	now := time.Now()
	return &types.JobRun{
		JobType:    jobType,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     jobstatus.StatusQueued,
		Stage:      jobstatus.StatusQueued,
		Payload:    datatypes.JSON(b),
		Result:     datatypes.JSON([]byte(`{}`)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *jobService) GetLatestForEntity(dbc dbctx.Context, entityType string, entityID string, jobType string) (*types.JobRun, error) {
	return s.repo.GetLatestByEntity(dbc, entityType, entityID, jobType)
}
