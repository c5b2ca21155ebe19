package types

import (
	"time"
)

const (
	PlatformChatwork = "chatwork"
	PlatformLine     = "line"
)

// Course is the unit of tenancy: documents, conversations and dedup state are
// all partitioned by course id. Identity is immutable once registered.
type Course struct {
	ID             string    `gorm:"primaryKey" json:"course_id"`
	Name           string    `gorm:"not null" json:"course_name"`
	Platform       string    `gorm:"not null;default:chatwork" json:"platform"`
	ManagerSlackID string    `json:"manager_slack_id,omitempty"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

func (Course) TableName() string {
	return "course"
}
