package services

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/enneagram-backend/internal/data/repos/testutil"
)

func TestAccessGateIsBypassEligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	past, future := now.Add(-48*time.Hour), now.Add(48*time.Hour)

	testutil.SeedValidEmail(t, ctx, f.db, "vip@example.com", true, past, nil)
	testutil.SeedValidEmail(t, ctx, f.db, "later@example.com", true, future, nil)
	testutil.SeedValidEmail(t, ctx, f.db, "lapsed@example.com", true, past, &past)
	testutil.SeedValidEmail(t, ctx, f.db, "off@example.com", false, past, nil)
	testutil.SeedCoupon(t, ctx, f.db, "SPRING", 3, future, true)
	testutil.SeedCoupon(t, ctx, f.db, "USEDUP", 0, future, true)
	testutil.SeedCoupon(t, ctx, f.db, "EXPIRED", 3, past, true)
	testutil.SeedCoupon(t, ctx, f.db, "PAUSED", 3, future, false)

	gate := NewAccessGate(f.log, f.repos.Access, func() time.Time { return now })

	cases := []struct {
		name   string
		email  string
		coupon string
		want   bool
	}{
		{"allow-listed email", "VIP@example.com", "", true},
		{"not yet valid", "later@example.com", "", false},
		{"validity ended", "lapsed@example.com", "", false},
		{"inactive email", "off@example.com", "", false},
		{"unknown email", "who@example.com", "", false},
		{"coupon case-insensitive", "who@example.com", " spring ", true},
		{"coupon used up", "", "USEDUP", false},
		{"coupon expired", "", "EXPIRED", false},
		{"coupon inactive", "", "PAUSED", false},
		{"either suffices", "off@example.com", "SPRING", true},
		{"nothing", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := gate.IsBypassEligible(ctx, tc.email, tc.coupon)
			if err != nil {
				t.Fatalf("IsBypassEligible: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}

	// validation never spends a use
	c, _ := f.repos.Access.LookupCoupon(dbcOf(ctx), "SPRING")
	if c.UsesRemaining != 3 {
		t.Fatalf("validation must be side-effect free, uses=%d", c.UsesRemaining)
	}

	ok, err := gate.RedeemCoupon(ctx, "spring")
	if err != nil || !ok {
		t.Fatalf("RedeemCoupon: %v %v", ok, err)
	}
	c, _ = f.repos.Access.LookupCoupon(dbcOf(ctx), "SPRING")
	if c.UsesRemaining != 2 {
		t.Fatalf("redeem should decrement, uses=%d", c.UsesRemaining)
	}
	if ok, _ := gate.RedeemCoupon(ctx, "EXPIRED"); ok {
		t.Fatalf("expired coupon must not redeem")
	}
}
