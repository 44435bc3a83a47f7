package results_email

import (
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
	"github.com/yungbote/enneagram-backend/internal/services"
)

type Pipeline struct {
	log      *logger.Logger
	delivery services.ResultsDelivery
}

func New(baseLog *logger.Logger, delivery services.ResultsDelivery) *Pipeline {
	return &Pipeline{
		log:      baseLog.With("job", services.JobTypeResultsEmail),
		delivery: delivery,
	}
}

func (p *Pipeline) Type() string { return services.JobTypeResultsEmail }
