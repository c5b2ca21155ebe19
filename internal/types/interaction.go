package types

import (
	"time"

	"github.com/google/uuid"
)

// InteractionLog records one answered turn together with its satisfaction
// assessment, for operator review.
type InteractionLog struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID          string    `gorm:"not null;index" json:"course_id"`
	UserID            string    `gorm:"not null" json:"user_id"`
	UserName          string    `json:"user_name"`
	Question          string    `gorm:"not null" json:"question"`
	Answer            string    `gorm:"not null" json:"answer"`
	SatisfactionScore float64   `gorm:"not null" json:"satisfaction_score"`
	IsSatisfied       bool      `gorm:"not null" json:"is_satisfied"`
	Reason            string    `json:"reason"`
	NeedsHumanReview  bool      `gorm:"not null" json:"needs_human_review"`
	ConversationID    string    `gorm:"index" json:"conversation_id"`
	CreatedAt         time.Time `gorm:"not null" json:"created_at"`
}

func (InteractionLog) TableName() string {
	return "interaction_log"
}
