package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/enneagram-backend/internal/http"
	httpH "github.com/yungbote/enneagram-backend/internal/http/handlers"
	"github.com/yungbote/enneagram-backend/internal/observability"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

type Handlers struct {
	Health     *httpH.HealthHandler
	Catalog    *httpH.CatalogHandler
	Assessment *httpH.AssessmentHandler
	Payment    *httpH.PaymentHandler
	Results    *httpH.ResultsHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, s Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(db),
		Catalog:    httpH.NewCatalogHandler(s.Bank, s.Library),
		Assessment: httpH.NewAssessmentHandler(s.Assessments, s.Analysis),
		Payment:    httpH.NewPaymentHandler(s.Payments, s.Gate),
		Results:    httpH.NewResultsHandler(s.Assessments, s.Delivery, s.Jobs, s.Links),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *http.Server {
	return http.NewServer(log, http.RouterConfig{
		ServiceName:       cfg.ServiceName,
		Log:               log,
		Metrics:           metrics,
		CORSOrigins:       cfg.CORSOrigins,
		HealthHandler:     handlers.Health,
		CatalogHandler:    handlers.Catalog,
		AssessmentHandler: handlers.Assessment,
		PaymentHandler:    handlers.Payment,
		ResultsHandler:    handlers.Results,
	})
}
