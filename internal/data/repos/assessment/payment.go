package assessment

import (
	"errors"

	"gorm.io/gorm"

	types "github.com/yungbote/enneagram-backend/internal/domain"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

type PaymentRepo interface {
	// CreateOrGet inserts p, or returns the row already stored for the same
	// session or assessment. created is false in the latter case.
	CreateOrGet(dbc dbctx.Context, p *types.Payment) (out *types.Payment, created bool, err error)
	GetBySessionID(dbc dbctx.Context, sessionID string) (*types.Payment, error)
	GetByAssessmentID(dbc dbctx.Context, assessmentID string) (*types.Payment, error)
}

type paymentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPaymentRepo(db *gorm.DB, baseLog *logger.Logger) PaymentRepo {
	return &paymentRepo{
		db:  db,
		log: baseLog.With("repo", "PaymentRepo"),
	}
}

func (r *paymentRepo) CreateOrGet(dbc dbctx.Context, p *types.Payment) (*types.Payment, bool, error) {
	if p == nil {
		return nil, false, errors.New("nil payment")
	}
	err := dbc.Resolve(r.db).Create(p).Error
	if err == nil {
		return p, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, err
	}
	existing, gErr := r.GetBySessionID(dbc, p.SessionID)
	if gErr != nil {
		return nil, false, gErr
	}
	if existing == nil {
		existing, gErr = r.GetByAssessmentID(dbc, p.AssessmentID)
		if gErr != nil {
			return nil, false, gErr
		}
	}
	if existing == nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *paymentRepo) GetBySessionID(dbc dbctx.Context, sessionID string) (*types.Payment, error) {
	return r.findOne(dbc, "session_id = ?", sessionID)
}

func (r *paymentRepo) GetByAssessmentID(dbc dbctx.Context, assessmentID string) (*types.Payment, error) {
	return r.findOne(dbc, "assessment_id = ?", assessmentID)
}

func (r *paymentRepo) findOne(dbc dbctx.Context, where string, arg string) (*types.Payment, error) {
	if arg == "" {
		return nil, nil
	}
	var out types.Payment
	if err := dbc.Resolve(r.db).Where(where, arg).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, nil
	}
	return &out, nil
}
