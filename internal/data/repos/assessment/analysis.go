package assessment

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/enneagram-backend/internal/domain"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

type AnalysisRepo interface {
	GetByAssessmentID(dbc dbctx.Context, assessmentID string) (*types.Analysis, error)
	// Save stores the first analysis for an assessment; later saves are
	// dropped and the stored row is returned.
	Save(dbc dbctx.Context, a *types.Analysis) (*types.Analysis, error)
}

type analysisRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisRepo {
	return &analysisRepo{
		db:  db,
		log: baseLog.With("repo", "AnalysisRepo"),
	}
}

func (r *analysisRepo) GetByAssessmentID(dbc dbctx.Context, assessmentID string) (*types.Analysis, error) {
	if assessmentID == "" {
		return nil, nil
	}
	var out types.Analysis
	if err := dbc.Resolve(r.db).Where("assessment_id = ?", assessmentID).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, nil
	}
	return &out, nil
}

func (r *analysisRepo) Save(dbc dbctx.Context, a *types.Analysis) (*types.Analysis, error) {
	if a == nil || a.AssessmentID == "" {
		return nil, errors.New("analysis requires assessment id")
	}
	err := dbc.Resolve(r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "assessment_id"}}, DoNothing: true}).
		Create(a).Error
	if err != nil {
		return nil, err
	}
	stored, err := r.GetByAssessmentID(dbc, a.AssessmentID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return stored, nil
}
