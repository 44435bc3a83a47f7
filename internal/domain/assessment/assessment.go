package assessment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Respondent holds the user info of whoever takes the assessment, keyed by
// lowercased email so a returning respondent updates their name in place.
type Respondent struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email     string    `gorm:"column:email;not null;uniqueIndex" json:"email"`
	FirstName string    `gorm:"column:first_name;not null" json:"first_name"`
	LastName  string    `gorm:"column:last_name;not null" json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Respondent) TableName() string { return "respondent" }

func (r *Respondent) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

type Assessment struct {
	ID                 string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	RespondentID       string         `gorm:"column:respondent_id;type:varchar(36);not null;index" json:"respondent_id"`
	Respondent         *Respondent    `gorm:"foreignKey:RespondentID" json:"respondent,omitempty"`
	WeightingResponses datatypes.JSON `gorm:"column:weighting_responses" json:"weighting_responses,omitempty"`
	Rankings           datatypes.JSON `gorm:"column:rankings" json:"rankings,omitempty"`
	Status             Status         `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	Results            []TypeResult   `gorm:"foreignKey:AssessmentID" json:"results,omitempty"`
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (Assessment) TableName() string { return "assessment" }

func (a *Assessment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusCreated
	}
	return nil
}

// TypeResult is one of the nine computed scores of an assessment.
type TypeResult struct {
	ID           uint    `gorm:"primaryKey" json:"-"`
	AssessmentID string  `gorm:"column:assessment_id;type:varchar(36);not null;uniqueIndex:idx_type_result_assessment_type" json:"assessment_id"`
	TypeID       string  `gorm:"column:type_id;type:varchar(2);not null;uniqueIndex:idx_type_result_assessment_type" json:"type"`
	Score        float64 `gorm:"column:score;not null" json:"score"`
}

func (TypeResult) TableName() string { return "type_result" }
