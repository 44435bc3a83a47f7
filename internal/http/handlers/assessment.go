package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/enneagram-backend/internal/http/response"
	"github.com/yungbote/enneagram-backend/internal/platform/apierr"
	"github.com/yungbote/enneagram-backend/internal/scoring"
	"github.com/yungbote/enneagram-backend/internal/services"
)

type AssessmentHandler struct {
	assessments services.AssessmentService
	analysis    services.AnalysisService
}

func NewAssessmentHandler(assessments services.AssessmentService, analysis services.AnalysisService) *AssessmentHandler {
	return &AssessmentHandler{assessments: assessments, analysis: analysis}
}

type saveResponsesRequest struct {
	WeightingResponses map[string]float64 `json:"weighting_responses"`
	Rankings           map[int][]int      `json:"rankings"`
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.RespondErr(c, apierr.Validation("invalid_body", "invalid request body: %v", err))
		return false
	}
	return true
}

// POST /api/assessments
func (h *AssessmentHandler) Start(c *gin.Context) {
	var req services.UserInfo
	if !bindJSON(c, &req) {
		return
	}
	id, err := h.assessments.StartAssessment(c.Request.Context(), req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"assessment_id": id})
}

// PUT /api/assessments/:id/responses
func (h *AssessmentHandler) SaveResponses(c *gin.Context) {
	var req saveResponsesRequest
	if !bindJSON(c, &req) {
		return
	}
	scores, err := h.assessments.SaveResponses(c.Request.Context(), c.Param("id"), req.WeightingResponses, req.Rankings)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"assessment_id": c.Param("id"),
		"results":       scoring.Sorted(scores),
	})
}

// GET /api/assessments/:id/analysis
//
// Poll target. Always 200 once the assessment is paid; the body carries
// ready, in-progress or error.
func (h *AssessmentHandler) GetAnalysis(c *gin.Context) {
	out, err := h.analysis.FetchOrStart(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/assessments/:id/results
func (h *AssessmentHandler) GetResults(c *gin.Context) {
	res, err := h.assessments.GetResults(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}
