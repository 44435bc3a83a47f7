package domain

import (
	"github.com/yungbote/enneagram-backend/internal/domain/assessment"
	"github.com/yungbote/enneagram-backend/internal/domain/jobs"
)

type Respondent = assessment.Respondent
type Assessment = assessment.Assessment
type AssessmentStatus = assessment.Status
type TypeResult = assessment.TypeResult
type Payment = assessment.Payment
type Analysis = assessment.Analysis
type ValidEmail = assessment.ValidEmail
type Coupon = assessment.Coupon

type JobRun = jobs.JobRun

const (
	StatusCreated  = assessment.StatusCreated
	StatusPaid     = assessment.StatusPaid
	StatusAnalyzed = assessment.StatusAnalyzed

	PaymentStatusPaid     = assessment.PaymentStatusPaid
	PaymentStatusBypassed = assessment.PaymentStatusBypassed
)

// Models lists every table the service owns, in migration order.
func Models() []any {
	return []any{
		&Respondent{},
		&Assessment{},
		&TypeResult{},
		&Payment{},
		&Analysis{},
		&ValidEmail{},
		&Coupon{},
		&JobRun{},
	}
}
