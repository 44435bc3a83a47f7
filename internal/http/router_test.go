package http

import (
	"bytes"
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/enneagram-backend/internal/data/repos"
	"github.com/yungbote/enneagram-backend/internal/data/repos/testutil"
	httpH "github.com/yungbote/enneagram-backend/internal/http/handlers"
	"github.com/yungbote/enneagram-backend/internal/platform/sendgrid"
	"github.com/yungbote/enneagram-backend/internal/render"
	"github.com/yungbote/enneagram-backend/internal/scoring"
	"github.com/yungbote/enneagram-backend/internal/services"
)

type stubGenerator struct{ text string }

func (g stubGenerator) Model() string { return "stub" }

func (g stubGenerator) Generate(context.Context, []scoring.TypeScore) (string, error) {
	return g.text, nil
}

type apiEnv struct {
	t        *testing.T
	engine   *gin.Engine
	db       *gorm.DB
	bank     *scoring.Bank
	analysis services.AnalysisService
	links    *services.ResultLinks
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.DB(t)
	log := testutil.Logger(t)
	r := repos.New(db, log)
	bank, err := scoring.LoadBank()
	if err != nil {
		t.Fatalf("LoadBank: %v", err)
	}
	lib, err := scoring.LoadLibrary()
	if err != nil {
		t.Fatalf("LoadLibrary: %v", err)
	}
	chart, err := render.NewChartRenderer("")
	if err != nil {
		t.Fatalf("NewChartRenderer: %v", err)
	}
	links, err := services.NewResultLinks("router-test-secret", time.Hour, "https://app.example/r")
	if err != nil {
		t.Fatalf("NewResultLinks: %v", err)
	}

	jobs := services.NewJobService(log, r.JobRun)
	gate := services.NewAccessGate(log, r.Access, time.Now)
	assessments := services.NewAssessmentService(log, r.Assessment, r.Analysis, bank)
	payments := services.NewPaymentService(log, r.Assessment, r.Payment, gate, nil, jobs, services.PaymentConfig{AmountCents: 2500})
	analysis := services.NewAnalysisService(log, r.Assessment, r.Analysis, stubGenerator{text: "You lead with the Individualist."},
		services.NewAnalysisTracker(log, nil, 0), jobs, time.Second, 3)
	delivery := services.NewResultsDelivery(log, assessments, chart, links, nil, lib, sendgrid.Address{})

	engine := NewRouter(RouterConfig{
		Log:               log,
		HealthHandler:     httpH.NewHealthHandler(db),
		CatalogHandler:    httpH.NewCatalogHandler(bank, lib),
		AssessmentHandler: httpH.NewAssessmentHandler(assessments, analysis),
		PaymentHandler:    httpH.NewPaymentHandler(payments, gate),
		ResultsHandler:    httpH.NewResultsHandler(assessments, delivery, jobs, links),
	})
	return &apiEnv{t: t, engine: engine, db: db, bank: bank, analysis: analysis, links: links}
}

func (e *apiEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

type errBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *apiEnv) startAndAnswer(email string) string {
	e.t.Helper()
	w := e.do(nethttp.MethodPost, "/api/assessments", map[string]string{
		"first_name": "Ada", "last_name": "Lovelace", "email": email,
	})
	if w.Code != nethttp.StatusOK {
		e.t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	id := decode[map[string]string](e.t, w)["assessment_id"]
	if id == "" {
		e.t.Fatalf("start returned no id: %s", w.Body.String())
	}

	weights := map[string]float64{}
	rankings := map[int][]int{}
	for i, q := range e.bank.Ranking {
		weights[q.LikertID] = 100
		rankings[i] = []int{3, 0}
	}
	w = e.do(nethttp.MethodPut, "/api/assessments/"+id+"/responses", map[string]any{
		"weighting_responses": weights,
		"rankings":            rankings,
	})
	if w.Code != nethttp.StatusOK {
		e.t.Fatalf("save responses: %d %s", w.Code, w.Body.String())
	}
	saved := decode[struct {
		Results []scoring.TypeScore `json:"results"`
	}](e.t, w)
	if len(saved.Results) != 9 || saved.Results[0].Type != "4" {
		e.t.Fatalf("unexpected scores: %+v", saved.Results)
	}
	return id
}

func TestHealthAndCatalog(t *testing.T) {
	env := newAPIEnv(t)

	if w := env.do(nethttp.MethodGet, "/healthcheck", nil); w.Code != nethttp.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthcheck: %d %q", w.Code, w.Body.String())
	}

	w := env.do(nethttp.MethodGet, "/api/questions", nil)
	if w.Code != nethttp.StatusOK {
		t.Fatalf("questions: %d", w.Code)
	}
	if bank := decode[scoring.Bank](t, w); len(bank.Ranking) != scoring.BaselineQuestionCount {
		t.Fatalf("questions: got %d ranking items", len(bank.Ranking))
	}

	w = env.do(nethttp.MethodGet, "/api/types", nil)
	if got := decode[map[string][]scoring.TypeProfile](t, w)["types"]; len(got) != 9 {
		t.Fatalf("types: got %d", len(got))
	}
	if w := env.do(nethttp.MethodGet, "/api/types/4", nil); w.Code != nethttp.StatusOK {
		t.Fatalf("type 4: %d", w.Code)
	}
	w = env.do(nethttp.MethodGet, "/api/types/10", nil)
	if w.Code != nethttp.StatusNotFound || decode[errBody](t, w).Error.Code != "type_not_found" {
		t.Fatalf("type 10: %d %s", w.Code, w.Body.String())
	}
}

func TestAssessmentFlowWithCoupon(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()

	id := env.startAndAnswer("flow@example.com")

	// unpaid
	w := env.do(nethttp.MethodGet, "/api/assessments/"+id+"/results", nil)
	if w.Code != nethttp.StatusForbidden {
		t.Fatalf("unpaid results: %d %s", w.Code, w.Body.String())
	}
	if w := env.do(nethttp.MethodGet, "/api/assessments/"+id+"/analysis", nil); w.Code != nethttp.StatusForbidden {
		t.Fatalf("unpaid analysis: %d", w.Code)
	}

	testutil.SeedCoupon(t, ctx, env.db, "FREE", 3, time.Now().Add(time.Hour), true)
	w = env.do(nethttp.MethodPost, "/api/access/validate", map[string]string{"coupon_code": "FREE"})
	if w.Code != nethttp.StatusOK || !decode[map[string]bool](t, w)["eligible"] {
		t.Fatalf("validate: %d %s", w.Code, w.Body.String())
	}

	w = env.do(nethttp.MethodPost, "/api/assessments/"+id+"/payment", map[string]string{
		"email": "flow@example.com", "coupon_code": "FREE",
	})
	if w.Code != nethttp.StatusOK {
		t.Fatalf("payment: %d %s", w.Code, w.Body.String())
	}
	if co := decode[services.Checkout](t, w); !co.Bypass || co.CheckoutURL != "" {
		t.Fatalf("expected bypass checkout: %+v", co)
	}

	w = env.do(nethttp.MethodGet, "/api/assessments/"+id+"/analysis", nil)
	if out := decode[services.AnalysisOutcome](t, w); w.Code != nethttp.StatusOK || out.Status != services.AnalysisInProgress {
		t.Fatalf("analysis before generation: %d %+v", w.Code, out)
	}

	// what the worker does for the queued job
	if out, err := env.analysis.GetOrStartAnalysis(ctx, id); err != nil || out.Status != services.AnalysisReady {
		t.Fatalf("GetOrStartAnalysis: %+v %v", out, err)
	}

	w = env.do(nethttp.MethodGet, "/api/assessments/"+id+"/analysis", nil)
	if out := decode[services.AnalysisOutcome](t, w); out.Status != services.AnalysisReady || !strings.Contains(out.Text, "Individualist") {
		t.Fatalf("analysis after generation: %+v", out)
	}

	w = env.do(nethttp.MethodGet, "/api/assessments/"+id+"/results", nil)
	if w.Code != nethttp.StatusOK {
		t.Fatalf("results: %d %s", w.Code, w.Body.String())
	}
	res := decode[services.Results](t, w)
	if res.Analysis == nil || res.Results[0].Type != "4" || res.UserInfo.Email != "flow@example.com" {
		t.Fatalf("unexpected results: %+v", res)
	}

	w = env.do(nethttp.MethodGet, "/api/assessments/"+id+"/results/chart.png", nil)
	if w.Code != nethttp.StatusOK || w.Header().Get("Content-Type") != "image/png" || !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("chart: %d %q", w.Code, w.Header().Get("Content-Type"))
	}

	w = env.do(nethttp.MethodPost, "/api/assessments/"+id+"/results/email", nil)
	if w.Code != nethttp.StatusAccepted || !decode[map[string]any](t, w)["queued"].(bool) {
		t.Fatalf("email: %d %s", w.Code, w.Body.String())
	}
	w = env.do(nethttp.MethodPost, "/api/assessments/"+id+"/results/email", nil)
	if w.Code != nethttp.StatusAccepted || decode[map[string]any](t, w)["queued"].(bool) {
		t.Fatalf("second email should not queue: %s", w.Body.String())
	}

	token, _, err := env.links.Sign(id)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	w = env.do(nethttp.MethodGet, "/api/results/"+token, nil)
	if w.Code != nethttp.StatusOK || decode[services.Results](t, w).AssessmentID != id {
		t.Fatalf("results by token: %d %s", w.Code, w.Body.String())
	}

	// locked once paid
	w = env.do(nethttp.MethodPut, "/api/assessments/"+id+"/responses", map[string]any{"weighting_responses": map[string]float64{}})
	if w.Code != nethttp.StatusConflict {
		t.Fatalf("resubmit after payment: %d", w.Code)
	}
}

func TestAPIErrors(t *testing.T) {
	env := newAPIEnv(t)
	unpaid := env.startAndAnswer("errors@example.com")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing names", nethttp.MethodPost, "/api/assessments", map[string]string{"email": "a@example.com"}, 400, "missing_first_name"},
		{"bad email", nethttp.MethodPost, "/api/assessments", map[string]string{"first_name": "A", "last_name": "B", "email": "nope"}, 400, "invalid_email"},
		{"unknown assessment", nethttp.MethodGet, "/api/assessments/does-not-exist/results", nil, 404, "assessment_not_found"},
		{"empty access", nethttp.MethodPost, "/api/access/validate", map[string]string{}, 400, "missing_credentials"},
		{"verify without session", nethttp.MethodPost, "/api/payments/verify", map[string]string{}, 400, "missing_session_id"},
		{"no gateway", nethttp.MethodPost, "/api/assessments/" + unpaid + "/payment", map[string]string{"email": "errors@example.com"}, 502, "payment_gateway_unavailable"},
		{"unpaid chart", nethttp.MethodGet, "/api/assessments/" + unpaid + "/results/chart.png", nil, 403, "payment_required"},
		{"unpaid email", nethttp.MethodPost, "/api/assessments/" + unpaid + "/results/email", nil, 403, "payment_required"},
		{"garbage token", nethttp.MethodGet, "/api/results/garbage", nil, 403, "invalid_link"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(tc.method, tc.path, tc.body)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			if got := decode[errBody](t, w).Error.Code; got != tc.code {
				t.Fatalf("code=%q want %q", got, tc.code)
			}
		})
	}

	req := httptest.NewRequest(nethttp.MethodPost, "/api/assessments", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	if w.Code != nethttp.StatusBadRequest || decode[errBody](t, w).Error.Code != "invalid_body" {
		t.Fatalf("malformed body: %d %s", w.Code, w.Body.String())
	}
}
