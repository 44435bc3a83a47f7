package testutil

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/enneagram-backend/internal/domain"
)

func SeedRespondent(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.Respondent {
	tb.Helper()
	r := &types.Respondent{Email: email, FirstName: "Ada", LastName: "Lovelace"}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed respondent: %v", err)
	}
	return r
}

func SeedAssessment(tb testing.TB, ctx context.Context, tx *gorm.DB, respondentID string, status types.AssessmentStatus) *types.Assessment {
	tb.Helper()
	a := &types.Assessment{RespondentID: respondentID, Status: status}
	if err := tx.WithContext(ctx).Omit("Respondent", "Results").Create(a).Error; err != nil {
		tb.Fatalf("seed assessment: %v", err)
	}
	return a
}

func SeedCoupon(tb testing.TB, ctx context.Context, tx *gorm.DB, code string, uses int, expires time.Time, active bool) *types.Coupon {
	tb.Helper()
	c := &types.Coupon{Code: code, Active: active, Expires: expires, UsesRemaining: uses}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed coupon: %v", err)
	}
	return c
}

func SeedValidEmail(tb testing.TB, ctx context.Context, tx *gorm.DB, email string, active bool, from time.Time, until *time.Time) *types.ValidEmail {
	tb.Helper()
	v := &types.ValidEmail{Email: email, Active: active, ValidFrom: from, ValidUntil: until}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed valid email: %v", err)
	}
	return v
}
