package assessment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PaymentStatusPaid     = "paid"
	PaymentStatusBypassed = "bypassed"
)

type Payment struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	SessionID    string    `gorm:"column:session_id;not null;uniqueIndex" json:"session_id"`
	AssessmentID string    `gorm:"column:assessment_id;type:varchar(36);not null;uniqueIndex" json:"assessment_id"`
	AmountCents  int64     `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Currency     string    `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status       string    `gorm:"column:status;not null" json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Payment) TableName() string { return "payment" }

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type Analysis struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	AssessmentID string    `gorm:"column:assessment_id;type:varchar(36);not null;uniqueIndex" json:"assessment_id"`
	Text         string    `gorm:"column:text;type:text;not null" json:"text"`
	Model        string    `gorm:"column:model" json:"model,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Analysis) TableName() string { return "analysis" }

func (a *Analysis) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
