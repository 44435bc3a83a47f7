package assessment

import (
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/enneagram-backend/internal/domain"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

type AssessmentRepo interface {
	UpsertRespondent(dbc dbctx.Context, email, firstName, lastName string) (*types.Respondent, error)
	Create(dbc dbctx.Context, a *types.Assessment) (*types.Assessment, error)
	GetByID(dbc dbctx.Context, id string) (*types.Assessment, error)
	GetWithRespondent(dbc dbctx.Context, id string) (*types.Assessment, error)
	SaveResponses(dbc dbctx.Context, id string, weighting, rankings []byte, results []types.TypeResult) error
	GetResults(dbc dbctx.Context, id string) ([]types.TypeResult, error)
	AdvanceStatus(dbc dbctx.Context, id string, to types.AssessmentStatus) (bool, error)
}

type assessmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssessmentRepo(db *gorm.DB, baseLog *logger.Logger) AssessmentRepo {
	return &assessmentRepo{
		db:  db,
		log: baseLog.With("repo", "AssessmentRepo"),
	}
}

func (r *assessmentRepo) UpsertRespondent(dbc dbctx.Context, email, firstName, lastName string) (*types.Respondent, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	now := time.Now()
	row := &types.Respondent{
		Email:     email,
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := dbc.Resolve(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "updated_at"}),
		}).
		Create(row).Error
	if err != nil {
		return nil, err
	}
	// on conflict the generated id is not the stored one
	var out types.Respondent
	if err := dbc.Resolve(r.db).Where("email = ?", email).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *assessmentRepo) Create(dbc dbctx.Context, a *types.Assessment) (*types.Assessment, error) {
	if a == nil {
		return nil, errors.New("nil assessment")
	}
	if err := dbc.Resolve(r.db).Omit("Respondent", "Results").Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID returns nil, nil when the row does not exist.
func (r *assessmentRepo) GetByID(dbc dbctx.Context, id string) (*types.Assessment, error) {
	if id == "" {
		return nil, nil
	}
	var out types.Assessment
	err := dbc.Resolve(r.db).Where("id = ?", id).Limit(1).Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, nil
	}
	return &out, nil
}

func (r *assessmentRepo) GetWithRespondent(dbc dbctx.Context, id string) (*types.Assessment, error) {
	if id == "" {
		return nil, nil
	}
	var out types.Assessment
	err := dbc.Resolve(r.db).
		Preload("Respondent").
		Preload("Results", func(tx *gorm.DB) *gorm.DB { return tx.Order("type_id ASC") }).
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, nil
	}
	return &out, nil
}

// SaveResponses stores the raw answers and replaces the computed scores in
// one transaction.
func (r *assessmentRepo) SaveResponses(dbc dbctx.Context, id string, weighting, rankings []byte, results []types.TypeResult) error {
	return dbc.Resolve(r.db).Transaction(func(txx *gorm.DB) error {
		res := txx.Model(&types.Assessment{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"weighting_responses": datatypes.JSON(weighting),
				"rankings":            datatypes.JSON(rankings),
				"updated_at":          time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := txx.Where("assessment_id = ?", id).Delete(&types.TypeResult{}).Error; err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}
		rows := make([]types.TypeResult, len(results))
		for i, tr := range results {
			rows[i] = types.TypeResult{AssessmentID: id, TypeID: tr.TypeID, Score: tr.Score}
		}
		return txx.Create(&rows).Error
	})
}

func (r *assessmentRepo) GetResults(dbc dbctx.Context, id string) ([]types.TypeResult, error) {
	var out []types.TypeResult
	if id == "" {
		return out, nil
	}
	err := dbc.Resolve(r.db).
		Where("assessment_id = ?", id).
		Order("type_id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdvanceStatus moves the assessment forward to `to`. It never regresses and
// reports whether a row changed.
func (r *assessmentRepo) AdvanceStatus(dbc dbctx.Context, id string, to types.AssessmentStatus) (bool, error) {
	var below []string
	for _, s := range to.Below() {
		below = append(below, string(s))
	}
	if id == "" || len(below) == 0 {
		return false, nil
	}
	res := dbc.Resolve(r.db).
		Model(&types.Assessment{}).
		Where("id = ? AND status IN ?", id, below).
		Updates(map[string]interface{}{
			"status":     string(to),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
