package assessment

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/enneagram-backend/internal/domain"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

type AccessRepo interface {
	LookupValidEmail(dbc dbctx.Context, email string) (*types.ValidEmail, error)
	LookupCoupon(dbc dbctx.Context, code string) (*types.Coupon, error)
	// RedeemCoupon atomically spends one use. It returns false when the
	// coupon is unknown, inactive, expired or used up.
	RedeemCoupon(dbc dbctx.Context, code string, now time.Time) (bool, error)
	UpsertValidEmail(dbc dbctx.Context, v *types.ValidEmail) (*types.ValidEmail, error)
	UpsertCoupon(dbc dbctx.Context, c *types.Coupon) (*types.Coupon, error)
}

type accessRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAccessRepo(db *gorm.DB, baseLog *logger.Logger) AccessRepo {
	return &accessRepo{
		db:  db,
		log: baseLog.With("repo", "AccessRepo"),
	}
}

func (r *accessRepo) LookupValidEmail(dbc dbctx.Context, email string) (*types.ValidEmail, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	var out types.ValidEmail
	if err := dbc.Resolve(r.db).Where("email = ?", email).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

func (r *accessRepo) LookupCoupon(dbc dbctx.Context, code string) (*types.Coupon, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, nil
	}
	var out types.Coupon
	if err := dbc.Resolve(r.db).Where("code = ?", code).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

func (r *accessRepo) RedeemCoupon(dbc dbctx.Context, code string, now time.Time) (bool, error) {
	code = normalizeCode(code)
	if code == "" {
		return false, nil
	}
	res := dbc.Resolve(r.db).
		Model(&types.Coupon{}).
		Where("code = ? AND active = ? AND expires > ? AND uses_remaining > 0", code, true, now).
		Updates(map[string]interface{}{
			"uses_remaining": gorm.Expr("uses_remaining - 1"),
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *accessRepo) UpsertValidEmail(dbc dbctx.Context, v *types.ValidEmail) (*types.ValidEmail, error) {
	if v == nil {
		return nil, errors.New("nil valid email")
	}
	v.Email = strings.ToLower(strings.TrimSpace(v.Email))
	if v.ValidFrom.IsZero() {
		v.ValidFrom = time.Now()
	}
	err := dbc.Resolve(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"active", "valid_from", "valid_until", "note"}),
		}).
		Create(v).Error
	if err != nil {
		return nil, err
	}
	return r.LookupValidEmail(dbc, v.Email)
}

func (r *accessRepo) UpsertCoupon(dbc dbctx.Context, c *types.Coupon) (*types.Coupon, error) {
	if c == nil {
		return nil, errors.New("nil coupon")
	}
	c.Code = normalizeCode(c.Code)
	err := dbc.Resolve(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"active", "expires", "uses_remaining", "updated_at"}),
		}).
		Create(c).Error
	if err != nil {
		return nil, err
	}
	return r.LookupCoupon(dbc, c.Code)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
