package assessment_analysis

import (
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
	"github.com/yungbote/enneagram-backend/internal/poll"
	"github.com/yungbote/enneagram-backend/internal/services"
)

type Pipeline struct {
	log *logger.Logger

	analysis services.AnalysisService
	jobs     services.JobService
	policy   poll.Policy

	// emailResults queues a results_email job once the analysis is stored.
	emailResults bool
}

func New(baseLog *logger.Logger, analysis services.AnalysisService, jobs services.JobService, policy poll.Policy, emailResults bool) *Pipeline {
	return &Pipeline{
		log:          baseLog.With("job", services.JobTypeAssessmentAnalysis),
		analysis:     analysis,
		jobs:         jobs,
		policy:       policy,
		emailResults: emailResults,
	}
}

func (p *Pipeline) Type() string { return services.JobTypeAssessmentAnalysis }
