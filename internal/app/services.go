package app

import (
	"fmt"
	"time"

	"github.com/yungbote/enneagram-backend/internal/data/repos"
	"github.com/yungbote/enneagram-backend/internal/jobs/pipeline/assessment_analysis"
	"github.com/yungbote/enneagram-backend/internal/jobs/pipeline/results_email"
	jobruntime "github.com/yungbote/enneagram-backend/internal/jobs/runtime"
	"github.com/yungbote/enneagram-backend/internal/jobs/worker"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
	"github.com/yungbote/enneagram-backend/internal/poll"
	"github.com/yungbote/enneagram-backend/internal/render"
	"github.com/yungbote/enneagram-backend/internal/scoring"
	"github.com/yungbote/enneagram-backend/internal/services"
)

type Services struct {
	Bank    *scoring.Bank
	Library *scoring.Library

	Jobs        services.JobService
	Gate        services.AccessGate
	Assessments services.AssessmentService
	Payments    services.PaymentService
	Analysis    services.AnalysisService
	Delivery    services.ResultsDelivery
	Links       *services.ResultLinks

	JobRegistry *jobruntime.Registry
	JobWorker   *worker.Worker
}

func wireServices(log *logger.Logger, cfg Config, r repos.Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	bank, err := scoring.LoadBank()
	if err != nil {
		return Services{}, fmt.Errorf("load question bank: %w", err)
	}
	if !bank.MatchesBaseline() {
		log.Warn("question bank size differs from the calibrated baseline; scores no longer top out at 100",
			"ranking_questions", len(bank.Ranking),
			"baseline", scoring.BaselineQuestionCount,
		)
	}
	library, err := scoring.LoadLibrary()
	if err != nil {
		return Services{}, fmt.Errorf("load type library: %w", err)
	}

	workerCfg := worker.ConfigFromEnv()

	jobs := services.NewJobService(log, r.JobRun)
	gate := services.NewAccessGate(log, r.Access, time.Now)
	assessments := services.NewAssessmentService(log, r.Assessment, r.Analysis, bank)
	payments := services.NewPaymentService(log, r.Assessment, r.Payment, gate, clients.Stripe, jobs, services.PaymentConfigFromEnv())

	tracker := services.NewAnalysisTracker(log, clients.Locker, cfg.AnalysisLockTTL)
	generator := services.NewNarrativeGenerator(log, clients.OpenAI, library)
	analysis := services.NewAnalysisService(log, r.Assessment, r.Analysis, generator, tracker, jobs, cfg.AnalysisTimeout, workerCfg.MaxAttempts)

	var links *services.ResultLinks
	if cfg.ResultsLinkSecret != "" {
		links, err = services.NewResultLinks(cfg.ResultsLinkSecret, cfg.ResultsLinkTTL, cfg.ResultsLinkBase)
		if err != nil {
			return Services{}, fmt.Errorf("init result links: %w", err)
		}
	} else {
		log.Warn("RESULTS_LINK_SECRET not set; signed result links disabled")
	}
	chart, err := render.NewChartRenderer(cfg.ChartFontPath)
	if err != nil {
		return Services{}, fmt.Errorf("init chart renderer: %w", err)
	}
	delivery := services.NewResultsDelivery(log, assessments, chart, links, clients.SendGrid, library, clients.SendFrom)

	// Job registry
	registry := jobruntime.NewRegistry()
	if err := registry.Register(
		assessment_analysis.New(log, analysis, jobs, poll.PolicyFromEnv(), cfg.EmailOnAnalysis),
		results_email.New(log, delivery),
	); err != nil {
		return Services{}, fmt.Errorf("job registry: %w", err)
	}
	log.Info("job handlers registered", "types", registry.Types())

	var jobWorker *worker.Worker
	if cfg.RunWorker {
		jobWorker = worker.NewWorker(log, r.JobRun, registry, workerCfg)
	}

	return Services{
		Bank:        bank,
		Library:     library,
		Jobs:        jobs,
		Gate:        gate,
		Assessments: assessments,
		Payments:    payments,
		Analysis:    analysis,
		Delivery:    delivery,
		Links:       links,
		JobRegistry: registry,
		JobWorker:   jobWorker,
	}, nil
}
