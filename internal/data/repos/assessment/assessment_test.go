package assessment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/enneagram-backend/internal/data/repos/testutil"
	types "github.com/yungbote/enneagram-backend/internal/domain"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
)

func TestAssessmentRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewAssessmentRepo(db, testutil.Logger(t))

	r1, err := repo.UpsertRespondent(dbc, "  Ada@Example.com ", "Ada", "L")
	if err != nil {
		t.Fatalf("UpsertRespondent: %v", err)
	}
	if r1.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %q", r1.Email)
	}
	r2, err := repo.UpsertRespondent(dbc, "ada@example.com", "Augusta", "King")
	if err != nil {
		t.Fatalf("UpsertRespondent again: %v", err)
	}
	if r2.ID != r1.ID || r2.FirstName != "Augusta" {
		t.Fatalf("upsert should update in place: %+v vs %+v", r1, r2)
	}

	a, err := repo.Create(dbc, &types.Assessment{RespondentID: r1.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == "" || a.Status != types.StatusCreated {
		t.Fatalf("Create defaults: %+v", a)
	}

	results := []types.TypeResult{{TypeID: "1", Score: 4.5}, {TypeID: "4", Score: 8.25}}
	if err := repo.SaveResponses(dbc, a.ID, []byte(`{"L1":100}`), []byte(`{"0":[2,0]}`), results); err != nil {
		t.Fatalf("SaveResponses: %v", err)
	}
	// second save replaces, not appends
	results = []types.TypeResult{{TypeID: "1", Score: 1}, {TypeID: "2", Score: 2}, {TypeID: "3", Score: 3}}
	if err := repo.SaveResponses(dbc, a.ID, []byte(`{}`), []byte(`{}`), results); err != nil {
		t.Fatalf("SaveResponses replace: %v", err)
	}
	got, err := repo.GetResults(dbc, a.ID)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if len(got) != 3 || got[0].TypeID != "1" || got[2].Score != 3 {
		t.Fatalf("GetResults: %+v", got)
	}

	if err := repo.SaveResponses(dbc, uuid.NewString(), nil, nil, nil); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("SaveResponses unknown id: %v", err)
	}

	full, err := repo.GetWithRespondent(dbc, a.ID)
	if err != nil || full == nil {
		t.Fatalf("GetWithRespondent: %v %v", full, err)
	}
	if full.Respondent == nil || full.Respondent.Email != "ada@example.com" || len(full.Results) != 3 {
		t.Fatalf("GetWithRespondent preload: %+v", full)
	}

	if missing, err := repo.GetByID(dbc, uuid.NewString()); err != nil || missing != nil {
		t.Fatalf("GetByID missing: %v %v", missing, err)
	}
}

func TestAssessmentRepoAdvanceStatusMonotonic(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewAssessmentRepo(db, testutil.Logger(t))

	r := testutil.SeedRespondent(t, ctx, db, "m@example.com")
	a := testutil.SeedAssessment(t, ctx, db, r.ID, types.StatusCreated)

	steps := []struct {
		to      types.AssessmentStatus
		changed bool
		want    types.AssessmentStatus
	}{
		{types.StatusPaid, true, types.StatusPaid},
		{types.StatusPaid, false, types.StatusPaid},
		{types.StatusAnalyzed, true, types.StatusAnalyzed},
		{types.StatusPaid, false, types.StatusAnalyzed},
		{types.StatusCreated, false, types.StatusAnalyzed},
	}
	for i, st := range steps {
		changed, err := repo.AdvanceStatus(dbc, a.ID, st.to)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if changed != st.changed {
			t.Fatalf("step %d: changed=%v want %v", i, changed, st.changed)
		}
		cur, _ := repo.GetByID(dbc, a.ID)
		if cur.Status != st.want {
			t.Fatalf("step %d: status=%s want %s", i, cur.Status, st.want)
		}
	}
}

func TestPaymentRepoCreateOrGet(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewPaymentRepo(db, testutil.Logger(t))

	r := testutil.SeedRespondent(t, ctx, db, "p@example.com")
	a := testutil.SeedAssessment(t, ctx, db, r.ID, types.StatusCreated)

	p, created, err := repo.CreateOrGet(dbc, &types.Payment{SessionID: "cs_1", AssessmentID: a.ID, AmountCents: 2500, Currency: "usd", Status: "paid"})
	if err != nil || !created {
		t.Fatalf("first CreateOrGet: created=%v err=%v", created, err)
	}
	dup, created, err := repo.CreateOrGet(dbc, &types.Payment{SessionID: "cs_1", AssessmentID: a.ID, AmountCents: 2500, Currency: "usd", Status: "paid"})
	if err != nil || created {
		t.Fatalf("duplicate CreateOrGet: created=%v err=%v", created, err)
	}
	if dup.ID != p.ID {
		t.Fatalf("duplicate should return stored row: %s vs %s", dup.ID, p.ID)
	}
	// a second session for the same assessment resolves to the stored one
	other, created, err := repo.CreateOrGet(dbc, &types.Payment{SessionID: "cs_2", AssessmentID: a.ID, AmountCents: 2500, Currency: "usd", Status: "paid"})
	if err != nil || created || other.ID != p.ID {
		t.Fatalf("same assessment CreateOrGet: created=%v err=%v", created, err)
	}

	if got, err := repo.GetBySessionID(dbc, "cs_1"); err != nil || got == nil || got.AssessmentID != a.ID {
		t.Fatalf("GetBySessionID: %v %v", got, err)
	}
	if got, err := repo.GetBySessionID(dbc, "nope"); err != nil || got != nil {
		t.Fatalf("GetBySessionID missing: %v %v", got, err)
	}
}

func TestPaymentRepoConcurrentVerify(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewPaymentRepo(db, testutil.Logger(t))
	r := testutil.SeedRespondent(t, ctx, db, "c@example.com")
	a := testutil.SeedAssessment(t, ctx, db, r.ID, types.StatusCreated)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]bool{}
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, c, err := repo.CreateOrGet(dbctx.Context{Ctx: ctx}, &types.Payment{SessionID: "cs_same", AssessmentID: a.ID, AmountCents: 1, Currency: "usd", Status: "paid"})
			if err != nil {
				t.Errorf("CreateOrGet: %v", err)
				return
			}
			mu.Lock()
			ids[p.ID] = true
			if c {
				created++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if created != 1 || len(ids) != 1 {
		t.Fatalf("expected exactly one insert, created=%d ids=%d", created, len(ids))
	}
}

func TestAnalysisRepoSaveKeepsFirst(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewAnalysisRepo(db, testutil.Logger(t))
	id := uuid.NewString()

	if got, err := repo.GetByAssessmentID(dbc, id); err != nil || got != nil {
		t.Fatalf("empty lookup: %v %v", got, err)
	}
	first, err := repo.Save(dbc, &types.Analysis{AssessmentID: id, Text: "first"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := repo.Save(dbc, &types.Analysis{AssessmentID: id, Text: "second"})
	if err != nil {
		t.Fatalf("Save again: %v", err)
	}
	if second.ID != first.ID || second.Text != "first" {
		t.Fatalf("later save must not overwrite: %+v", second)
	}
}

func TestAccessRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewAccessRepo(db, testutil.Logger(t))
	now := time.Now()

	testutil.SeedValidEmail(t, ctx, db, "vip@example.com", true, now.Add(-time.Hour), nil)
	v, err := repo.LookupValidEmail(dbc, " VIP@example.com")
	if err != nil || v == nil || !v.ValidAt(now) {
		t.Fatalf("LookupValidEmail: %+v %v", v, err)
	}
	if v, err := repo.LookupValidEmail(dbc, "nobody@example.com"); err != nil || v != nil {
		t.Fatalf("LookupValidEmail missing: %+v %v", v, err)
	}

	testutil.SeedCoupon(t, ctx, db, "FREE1", 1, now.Add(time.Hour), true)
	c, err := repo.LookupCoupon(dbc, "free1")
	if err != nil || c == nil || !c.ValidAt(now) {
		t.Fatalf("LookupCoupon: %+v %v", c, err)
	}
	ok, err := repo.RedeemCoupon(dbc, "FREE1", now)
	if err != nil || !ok {
		t.Fatalf("RedeemCoupon: %v %v", ok, err)
	}
	ok, err = repo.RedeemCoupon(dbc, "FREE1", now)
	if err != nil || ok {
		t.Fatalf("RedeemCoupon exhausted: %v %v", ok, err)
	}
	c, _ = repo.LookupCoupon(dbc, "free1")
	if c.UsesRemaining != 0 {
		t.Fatalf("uses remaining: %d", c.UsesRemaining)
	}

	testutil.SeedCoupon(t, ctx, db, "OLD", 5, now.Add(-time.Hour), true)
	if ok, _ := repo.RedeemCoupon(dbc, "OLD", now); ok {
		t.Fatalf("expired coupon must not redeem")
	}

	up, err := repo.UpsertCoupon(dbc, &types.Coupon{Code: "OLD", Active: true, Expires: now.Add(24 * time.Hour), UsesRemaining: 2})
	if err != nil || up.UsesRemaining != 2 || !up.ValidAt(now) {
		t.Fatalf("UpsertCoupon: %+v %v", up, err)
	}
	ve, err := repo.UpsertValidEmail(dbc, &types.ValidEmail{Email: "New@Example.com", Active: true})
	if err != nil || ve == nil || ve.Email != "new@example.com" {
		t.Fatalf("UpsertValidEmail: %+v %v", ve, err)
	}
}
