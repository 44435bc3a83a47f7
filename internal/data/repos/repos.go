package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/enneagram-backend/internal/data/repos/assessment"
	"github.com/yungbote/enneagram-backend/internal/data/repos/jobs"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

type AssessmentRepo = assessment.AssessmentRepo
type PaymentRepo = assessment.PaymentRepo
type AnalysisRepo = assessment.AnalysisRepo
type AccessRepo = assessment.AccessRepo

type JobRunRepo = jobs.JobRunRepo

type Repos struct {
	Assessment AssessmentRepo
	Payment    PaymentRepo
	Analysis   AnalysisRepo
	Access     AccessRepo
	JobRun     JobRunRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Assessment: assessment.NewAssessmentRepo(db, log),
		Payment:    assessment.NewPaymentRepo(db, log),
		Analysis:   assessment.NewAnalysisRepo(db, log),
		Access:     assessment.NewAccessRepo(db, log),
		JobRun:     jobs.NewJobRunRepo(db, log),
	}
}
