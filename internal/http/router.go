package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/enneagram-backend/internal/http/handlers"
	httpMW "github.com/yungbote/enneagram-backend/internal/http/middleware"
	"github.com/yungbote/enneagram-backend/internal/observability"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

type RouterConfig struct {
	ServiceName string
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string

	HealthHandler     *httpH.HealthHandler
	CatalogHandler    *httpH.CatalogHandler
	AssessmentHandler *httpH.AssessmentHandler
	PaymentHandler    *httpH.PaymentHandler
	ResultsHandler    *httpH.ResultsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "enneagram-api"
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")

	// Catalog
	if cfg.CatalogHandler != nil {
		api.GET("/questions", cfg.CatalogHandler.GetQuestions)
		api.GET("/types", cfg.CatalogHandler.ListTypes)
		api.GET("/types/:id", cfg.CatalogHandler.GetType)
	}

	// Assessments
	if cfg.AssessmentHandler != nil {
		api.POST("/assessments", cfg.AssessmentHandler.Start)
		api.PUT("/assessments/:id/responses", cfg.AssessmentHandler.SaveResponses)
		api.GET("/assessments/:id/analysis", cfg.AssessmentHandler.GetAnalysis)
		api.GET("/assessments/:id/results", cfg.AssessmentHandler.GetResults)
	}

	// Access + payments
	if cfg.PaymentHandler != nil {
		api.POST("/access/validate", cfg.PaymentHandler.ValidateAccess)
		api.POST("/assessments/:id/payment", cfg.PaymentHandler.Initiate)
		api.POST("/payments/verify", cfg.PaymentHandler.Verify)
	}

	// Results delivery
	if cfg.ResultsHandler != nil {
		api.GET("/assessments/:id/results/chart.png", cfg.ResultsHandler.Chart)
		api.POST("/assessments/:id/results/email", cfg.ResultsHandler.Email)
		api.GET("/results/:token", cfg.ResultsHandler.ByToken)
	}

	return r
}
