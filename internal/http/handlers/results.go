package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/enneagram-backend/internal/http/response"
	"github.com/yungbote/enneagram-backend/internal/platform/apierr"
	"github.com/yungbote/enneagram-backend/internal/platform/dbctx"
	"github.com/yungbote/enneagram-backend/internal/services"
)

type ResultsHandler struct {
	assessments services.AssessmentService
	delivery    services.ResultsDelivery
	jobs        services.JobService
	links       *services.ResultLinks
}

// NewResultsHandler accepts nil links; token routes then answer 404.
func NewResultsHandler(assessments services.AssessmentService, delivery services.ResultsDelivery, jobs services.JobService, links *services.ResultLinks) *ResultsHandler {
	return &ResultsHandler{assessments: assessments, delivery: delivery, jobs: jobs, links: links}
}

// GET /api/assessments/:id/results/chart.png
func (h *ResultsHandler) Chart(c *gin.Context) {
	png, err := h.delivery.Chart(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// POST /api/assessments/:id/results/email
func (h *ResultsHandler) Email(c *gin.Context) {
	id := c.Param("id")
	// same paid check the email itself will need
	if _, err := h.assessments.GetResults(c.Request.Context(), id); err != nil {
		response.RespondErr(c, err)
		return
	}
	job, created, err := h.jobs.EnqueueIfIdle(
		dbctx.Context{Ctx: c.Request.Context()},
		services.JobTypeResultsEmail,
		services.EntityAssessment,
		id,
		map[string]any{"assessment_id": id},
	)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	body := gin.H{"queued": created}
	if job != nil {
		body["job_id"] = job.ID
	}
	c.JSON(http.StatusAccepted, body)
}

// GET /api/results/:token
func (h *ResultsHandler) ByToken(c *gin.Context) {
	if h.links == nil {
		response.RespondErr(c, apierr.NotFound("links_disabled", "result links are not enabled"))
		return
	}
	id, err := h.links.Parse(c.Param("token"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	res, err := h.assessments.GetResults(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}
