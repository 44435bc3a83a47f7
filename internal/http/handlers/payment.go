package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/enneagram-backend/internal/http/response"
	"github.com/yungbote/enneagram-backend/internal/platform/apierr"
	"github.com/yungbote/enneagram-backend/internal/services"
)

type PaymentHandler struct {
	payments services.PaymentService
	gate     services.AccessGate
}

func NewPaymentHandler(payments services.PaymentService, gate services.AccessGate) *PaymentHandler {
	return &PaymentHandler{payments: payments, gate: gate}
}

type accessRequest struct {
	Email      string `json:"email"`
	CouponCode string `json:"coupon_code"`
}

type verifyRequest struct {
	SessionID string `json:"session_id"`
}

// POST /api/access/validate
func (h *PaymentHandler) ValidateAccess(c *gin.Context) {
	var req accessRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" && strings.TrimSpace(req.CouponCode) == "" {
		response.RespondErr(c, apierr.Validation("missing_credentials", "email or coupon_code is required"))
		return
	}
	ok, err := h.gate.IsBypassEligible(c.Request.Context(), req.Email, req.CouponCode)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"eligible": ok})
}

// POST /api/assessments/:id/payment
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req accessRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	out, err := h.payments.InitiatePayment(c.Request.Context(), c.Param("id"), req.Email, req.CouponCode)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/payments/verify
//
// The checkout success redirect carries session_id in the query; JSON
// bodies are accepted too.
func (h *PaymentHandler) Verify(c *gin.Context) {
	req := verifyRequest{SessionID: c.Query("session_id")}
	if req.SessionID == "" && c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	out, err := h.payments.VerifyPayment(c.Request.Context(), req.SessionID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}
