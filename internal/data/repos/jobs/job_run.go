package jobs

import (
	"errors"
	"hash/fnv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/enneagram-backend/internal/domain"
	jobstatus "github.com/yungbote/enneagram-backend/internal/domain/jobs"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

type JobRunRepo interface {
	Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error)
	GetByID(dbc dbctx.Context, id string) (*types.JobRun, error)
	GetLatestByEntity(dbc dbctx.Context, entityType, entityID, jobType string) (*types.JobRun, error)
	ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.JobRun, error)
	UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id string, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id string) error
	HasRunnableForEntity(dbc dbctx.Context, entityType, entityID, jobType string) (bool, error)
	// CreateIfIdle inserts job unless a queued or running run of the same
	// type exists for its entity. The check and insert are atomic.
	CreateIfIdle(dbc dbctx.Context, job *types.JobRun) (bool, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{db: db, log: baseLog.With("repo", "JobRunRepo")}
}

// claimable matches queued runs, failed runs past their retry delay that
// still have attempts left, and running runs whose heartbeat went stale.
const claimable = `status = @queued
	OR (status = @failed AND attempts < @max_attempts AND (last_error_at IS NULL OR last_error_at < @retry_cutoff))
	OR (status = @running AND heartbeat_at IS NOT NULL AND heartbeat_at < @stale_cutoff)`

func (r *jobRunRepo) model(dbc dbctx.Context) *gorm.DB {
	return dbc.Resolve(r.db).Model(&types.JobRun{})
}

func forEntity(q *gorm.DB, entityType, entityID, jobType string) *gorm.DB {
	return q.Where("entity_type = ? AND entity_id = ? AND job_type = ?", entityType, entityID, jobType)
}

// one runs q and returns nil without error when nothing matched.
func one(q *gorm.DB) (*types.JobRun, error) {
	var job types.JobRun
	if err := q.Limit(1).Find(&job).Error; err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, nil
	}
	return &job, nil
}

func stamped(updates map[string]any) map[string]any {
	if updates == nil {
		updates = map[string]any{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return updates
}

func (r *jobRunRepo) Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error) {
	if len(jobs) == 0 {
		return []*types.JobRun{}, nil
	}
	if err := dbc.Resolve(r.db).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id string) (*types.JobRun, error) {
	if id == "" {
		return nil, nil
	}
	return one(r.model(dbc).Where("id = ?", id))
}

func (r *jobRunRepo) GetLatestByEntity(dbc dbctx.Context, entityType, entityID, jobType string) (*types.JobRun, error) {
	if entityType == "" || entityID == "" || jobType == "" {
		return nil, nil
	}
	return one(forEntity(r.model(dbc), entityType, entityID, jobType).Order("created_at DESC"))
}

// ClaimNextRunnable marks the oldest claimable run as running and returns
// it, or nil when the queue is empty. SKIP LOCKED lets several workers claim
// concurrently on postgres; sqlite serializes writers instead.
func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.JobRun, error) {
	now := time.Now()
	var claimed *types.JobRun
	err := dbc.Resolve(r.db).Transaction(func(tx *gorm.DB) error {
		var job types.JobRun
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(claimable, map[string]any{
				"queued":       jobstatus.StatusQueued,
				"failed":       jobstatus.StatusFailed,
				"running":      jobstatus.StatusRunning,
				"max_attempts": maxAttempts,
				"retry_cutoff": now.Add(-retryDelay),
				"stale_cutoff": now.Add(-staleRunning),
			}).
			Order("created_at ASC").
			First(&job).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil
		case err != nil:
			return err
		}
		if err := tx.Model(&types.JobRun{}).Where("id = ?", job.ID).Updates(map[string]any{
			"status":       jobstatus.StatusRunning,
			"attempts":     gorm.Expr("attempts + 1"),
			"locked_at":    now,
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error; err != nil {
			return err
		}
		job.Status, job.Attempts = jobstatus.StatusRunning, job.Attempts+1
		job.LockedAt, job.HeartbeatAt, job.UpdatedAt = &now, &now, now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error {
	if id == "" {
		return nil
	}
	return r.model(dbc).Where("id = ?", id).Updates(stamped(updates)).Error
}

// UpdateFieldsUnlessStatus reports false when the row is missing or sits in
// one of the disallowed statuses.
func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id string, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == "" {
		return false, nil
	}
	q := r.model(dbc).Where("id = ?", id)
	if len(disallowedStatuses) > 0 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}
	res := q.Updates(stamped(updates))
	return res.RowsAffected > 0, res.Error
}

func (r *jobRunRepo) Heartbeat(dbc dbctx.Context, id string) error {
	if id == "" {
		return nil
	}
	now := time.Now()
	return r.model(dbc).
		Where("id = ? AND status = ?", id, jobstatus.StatusRunning).
		Updates(map[string]any{"heartbeat_at": now, "updated_at": now}).Error
}

func (r *jobRunRepo) HasRunnableForEntity(dbc dbctx.Context, entityType, entityID, jobType string) (bool, error) {
	if entityType == "" || entityID == "" || jobType == "" {
		return false, nil
	}
	var n int64
	err := forEntity(r.model(dbc), entityType, entityID, jobType).
		Where("status IN ?", []string{jobstatus.StatusQueued, jobstatus.StatusRunning}).
		Count(&n).Error
	return n > 0, err
}

func (r *jobRunRepo) CreateIfIdle(dbc dbctx.Context, job *types.JobRun) (bool, error) {
	if job == nil || job.EntityType == "" || job.EntityID == "" || job.JobType == "" {
		return false, errors.New("job with entity and job_type required")
	}
	created := false
	err := dbc.Resolve(r.db).Transaction(func(tx *gorm.DB) error {
		if err := entityLock(tx, job.EntityType, job.EntityID, job.JobType); err != nil {
			return err
		}
		var n int64
		if err := forEntity(tx.Model(&types.JobRun{}), job.EntityType, job.EntityID, job.JobType).
			Where("status IN ?", []string{jobstatus.StatusQueued, jobstatus.StatusRunning}).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// entityLock holds a transaction-scoped advisory lock keyed on parts.
// SQLite serializes writers on its own, so it is a no-op there.
func entityLock(tx *gorm.DB, parts ...string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{':'})
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", int64(h.Sum64())).Error
}
