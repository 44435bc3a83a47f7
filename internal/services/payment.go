package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/enneagram-backend/internal/data/repos"
	types "github.com/yungbote/enneagram-backend/internal/domain"
	"github.com/yungbote/enneagram-backend/internal/observability"
	"github.com/yungbote/enneagram-backend/internal/platform/apierr"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
	"github.com/yungbote/enneagram-backend/internal/platform/envutil"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
	"github.com/yungbote/enneagram-backend/internal/platform/stripe"
)

const bypassSessionPrefix = "bypass_"

type PaymentConfig struct {
	AmountCents int64
	Currency    string
	ProductName string
	// SuccessURL and CancelURL may contain {ASSESSMENT_ID}; SuccessURL should
	// carry Stripe's {CHECKOUT_SESSION_ID} placeholder.
	SuccessURL     string
	CancelURL      string
	RedeemOnBypass bool
}

func PaymentConfigFromEnv() PaymentConfig {
	return PaymentConfig{
		AmountCents:    int64(envutil.Int("PAYMENT_AMOUNT_CENTS", 2500)),
		Currency:       envutil.String("PAYMENT_CURRENCY", "usd"),
		ProductName:    envutil.String("PAYMENT_PRODUCT_NAME", "Enneagram assessment results"),
		SuccessURL:     envutil.String("PAYMENT_SUCCESS_URL", "http://localhost:5173/payment/success?session_id={CHECKOUT_SESSION_ID}&assessment_id={ASSESSMENT_ID}"),
		CancelURL:      envutil.String("PAYMENT_CANCEL_URL", "http://localhost:5173/payment/cancel?assessment_id={ASSESSMENT_ID}"),
		RedeemOnBypass: envutil.Bool("COUPON_REDEEM_ON_BYPASS", false),
	}
}

type Checkout struct {
	Bypass      bool   `json:"bypass"`
	AlreadyPaid bool   `json:"already_paid,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

type Verification struct {
	PaymentID       string                 `json:"payment_id"`
	AssessmentID    string                 `json:"assessment_id"`
	SessionID       string                 `json:"session_id"`
	Status          types.AssessmentStatus `json:"status"`
	AlreadyVerified bool                   `json:"already_verified"`
}

type PaymentService interface {
	InitiatePayment(ctx context.Context, assessmentID, email, couponCode string) (*Checkout, error)
	VerifyPayment(ctx context.Context, sessionID string) (*Verification, error)
}

type paymentService struct {
	log         *logger.Logger
	assessments repos.AssessmentRepo
	payments    repos.PaymentRepo
	gate        AccessGate
	gateway     stripe.Client
	jobs        JobService
	cfg         PaymentConfig
}

// NewPaymentService accepts a nil gateway; checkout then fails with a
// gateway error while bypass and verification of stored sessions still work.
func NewPaymentService(
	baseLog *logger.Logger,
	assessments repos.AssessmentRepo,
	payments repos.PaymentRepo,
	gate AccessGate,
	gateway stripe.Client,
	jobs JobService,
	cfg PaymentConfig,
) PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &paymentService{
		log:         baseLog.With("service", "PaymentService"),
		assessments: assessments,
		payments:    payments,
		gate:        gate,
		gateway:     gateway,
		jobs:        jobs,
		cfg:         cfg,
	}
}

func (s *paymentService) InitiatePayment(ctx context.Context, assessmentID, email, couponCode string) (*Checkout, error) {
	assessmentID = strings.TrimSpace(assessmentID)
	if assessmentID == "" {
		return nil, apierr.Validation("missing_assessment_id", "assessment id is required")
	}
	dbc := dbctx.Context{Ctx: ctx}
	a, err := s.assessments.GetByID(dbc, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("load assessment: %w", err)
	}
	if a == nil {
		return nil, apierr.NotFound("assessment_not_found", "assessment %s not found", assessmentID)
	}
	if a.Status.Paid() {
		return &Checkout{Bypass: true, AlreadyPaid: true}, nil
	}
	if err := s.requireResponses(dbc, assessmentID); err != nil {
		return nil, err
	}

	eligible, err := s.bypassEligible(ctx, email, couponCode)
	if err != nil {
		return nil, fmt.Errorf("access gate: %w", err)
	}
	if eligible {
		sessionID := fmt.Sprintf("%s%d_%s", bypassSessionPrefix, time.Now().UnixNano(), uuid.NewString())
		p, _, err := s.payments.CreateOrGet(dbc, &types.Payment{
			SessionID:    sessionID,
			AssessmentID: assessmentID,
			AmountCents:  0,
			Currency:     s.cfg.Currency,
			Status:       types.PaymentStatusBypassed,
		})
		if err != nil {
			return nil, fmt.Errorf("record bypass payment: %w", err)
		}
		if err := s.markPaid(ctx, assessmentID, "bypass"); err != nil {
			return nil, err
		}
		s.log.Info("payment bypassed", "assessment_id", assessmentID)
		return &Checkout{Bypass: true, SessionID: p.SessionID}, nil
	}

	if s.gateway == nil {
		return nil, apierr.PaymentGateway("payment_gateway_unavailable", errors.New("payment gateway not configured"))
	}
	session, err := s.gateway.CreateCheckoutSession(ctx, stripe.CheckoutRequest{
		CustomerEmail:     strings.TrimSpace(email),
		AmountCents:       s.cfg.AmountCents,
		Currency:          s.cfg.Currency,
		ProductName:       s.cfg.ProductName,
		SuccessURL:        expandURL(s.cfg.SuccessURL, assessmentID),
		CancelURL:         expandURL(s.cfg.CancelURL, assessmentID),
		ClientReferenceID: assessmentID,
		Metadata:          map[string]string{"assessment_id": assessmentID},
	})
	if err != nil {
		s.log.Warn("checkout session failed", "assessment_id", assessmentID, "error", err)
		return nil, apierr.PaymentGateway("payment_gateway_error", err)
	}
	return &Checkout{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

func (s *paymentService) requireResponses(dbc dbctx.Context, assessmentID string) error {
	rows, err := s.assessments.GetResults(dbc, assessmentID)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}
	return requireResults(assessmentID, rows)
}

func (s *paymentService) bypassEligible(ctx context.Context, email, couponCode string) (bool, error) {
	if !s.cfg.RedeemOnBypass || strings.TrimSpace(couponCode) == "" {
		return s.gate.IsBypassEligible(ctx, email, couponCode)
	}
	ok, err := s.gate.IsBypassEligible(ctx, email, "")
	if err != nil || ok {
		return ok, err
	}
	return s.gate.RedeemCoupon(ctx, couponCode)
}

func (s *paymentService) VerifyPayment(ctx context.Context, sessionID string) (*Verification, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apierr.Validation("missing_session_id", "session id is required")
	}
	dbc := dbctx.Context{Ctx: ctx}

	existing, err := s.payments.GetBySessionID(dbc, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if existing != nil {
		// heals a verification that stored the payment but died before the
		// status update
		if err := s.markPaid(ctx, existing.AssessmentID, "verify_retry"); err != nil {
			return nil, err
		}
		return s.verification(dbc, existing, true)
	}

	assessmentID, session, err := s.findAssessmentBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Paid() {
		return nil, apierr.PaymentRequired("payment_incomplete", "checkout session %s is not paid", sessionID)
	}
	a, err := s.assessments.GetByID(dbc, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("load assessment: %w", err)
	}
	if a == nil {
		return nil, apierr.NotFound("assessment_not_found", "assessment %s not found", assessmentID)
	}
	if !a.Status.Paid() {
		if err := s.requireResponses(dbc, assessmentID); err != nil {
			return nil, err
		}
	}

	currency := session.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	p, created, err := s.payments.CreateOrGet(dbc, &types.Payment{
		SessionID:    sessionID,
		AssessmentID: assessmentID,
		AmountCents:  session.AmountTotal,
		Currency:     currency,
		Status:       types.PaymentStatusPaid,
	})
	if err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	if err := s.markPaid(ctx, p.AssessmentID, "checkout"); err != nil {
		return nil, err
	}
	s.log.Info("payment verified", "assessment_id", p.AssessmentID, "session_id", sessionID, "created", created)
	return s.verification(dbc, p, !created)
}

// findAssessmentBySession resolves a session the store has not recorded yet
// through the gateway's client reference.
func (s *paymentService) findAssessmentBySession(ctx context.Context, sessionID string) (string, *stripe.CheckoutSession, error) {
	if strings.HasPrefix(sessionID, bypassSessionPrefix) || s.gateway == nil {
		return "", nil, apierr.NotFound("session_not_found", "no assessment for session %s", sessionID)
	}
	session, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		var he *stripe.HTTPError
		if errors.As(err, &he) && he.NotFound() {
			return "", nil, apierr.NotFound("session_not_found", "no assessment for session %s", sessionID)
		}
		return "", nil, apierr.PaymentGateway("payment_gateway_error", err)
	}
	id := strings.TrimSpace(session.ClientReferenceID)
	if id == "" {
		id = strings.TrimSpace(session.Metadata["assessment_id"])
	}
	if id == "" {
		return "", nil, apierr.NotFound("session_not_found", "no assessment for session %s", sessionID)
	}
	return id, session, nil
}

// markPaid advances to PAID and, when this call made the transition, queues
// the analysis. Queue failures are logged, never returned.
func (s *paymentService) markPaid(ctx context.Context, assessmentID, path string) error {
	changed, err := s.assessments.AdvanceStatus(dbctx.Context{Ctx: ctx}, assessmentID, types.StatusPaid)
	if err != nil {
		return fmt.Errorf("advance status: %w", err)
	}
	if !changed {
		return nil
	}
	observability.Current().IncPayment(path)
	if s.jobs == nil {
		return nil
	}
	if _, _, err := s.jobs.EnqueueIfIdle(
		dbctx.Context{Ctx: context.WithoutCancel(ctx)},
		JobTypeAssessmentAnalysis,
		EntityAssessment,
		assessmentID,
		map[string]any{"assessment_id": assessmentID},
	); err != nil {
		s.log.Error("enqueue analysis failed", "assessment_id", assessmentID, "error", err)
	}
	return nil
}

func (s *paymentService) verification(dbc dbctx.Context, p *types.Payment, already bool) (*Verification, error) {
	a, err := s.assessments.GetByID(dbc, p.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("load assessment: %w", err)
	}
	status := types.StatusPaid
	if a != nil {
		status = a.Status
	}
	return &Verification{
		PaymentID:       p.ID,
		AssessmentID:    p.AssessmentID,
		SessionID:       p.SessionID,
		Status:          status,
		AlreadyVerified: already,
	}, nil
}

func expandURL(tmpl, assessmentID string) string {
	return strings.ReplaceAll(tmpl, "{ASSESSMENT_ID}", assessmentID)
}
