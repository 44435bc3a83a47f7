package services

import (
	"context"
	"strings"
	"time"

	"github.com/yungbote/enneagram-backend/internal/data/repos"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

// AccessGate decides whether an email or coupon lets a respondent skip
// payment. Eligibility checks never mutate anything.
type AccessGate interface {
	IsBypassEligible(ctx context.Context, email, couponCode string) (bool, error)
	// RedeemCoupon spends one use of the coupon, atomically.
	RedeemCoupon(ctx context.Context, couponCode string) (bool, error)
}

type accessGate struct {
	log  *logger.Logger
	repo repos.AccessRepo
	now  func() time.Time
}

func NewAccessGate(baseLog *logger.Logger, repo repos.AccessRepo, now func() time.Time) AccessGate {
	if now == nil {
		now = time.Now
	}
	return &accessGate{
		log:  baseLog.With("service", "AccessGate"),
		repo: repo,
		now:  now,
	}
}

func (g *accessGate) IsBypassEligible(ctx context.Context, email, couponCode string) (bool, error) {
	now := g.now()
	dbc := dbctx.Context{Ctx: ctx}

	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		v, err := g.repo.LookupValidEmail(dbc, email)
		if err != nil {
			return false, err
		}
		if v.ValidAt(now) {
			g.log.Debug("bypass via allow-listed email", "email", email)
			return true, nil
		}
	}

	if couponCode = strings.ToUpper(strings.TrimSpace(couponCode)); couponCode != "" {
		c, err := g.repo.LookupCoupon(dbc, couponCode)
		if err != nil {
			return false, err
		}
		if c.ValidAt(now) {
			g.log.Debug("bypass via coupon", "coupon", couponCode)
			return true, nil
		}
	}
	return false, nil
}

func (g *accessGate) RedeemCoupon(ctx context.Context, couponCode string) (bool, error) {
	couponCode = strings.ToUpper(strings.TrimSpace(couponCode))
	if couponCode == "" {
		return false, nil
	}
	return g.repo.RedeemCoupon(dbctx.Context{Ctx: ctx}, couponCode, g.now())
}
