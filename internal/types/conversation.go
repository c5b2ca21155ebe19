package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation groups the turns of one user within one course. The id is
// deterministic: {course_id}_{user_id}_{yyyymmddhhmmss of creation}. A new
// conversation is opened when the previous one has been idle for 24 hours.
type Conversation struct {
	ID        string    `gorm:"primaryKey" json:"conversation_id"`
	UserID    string    `gorm:"not null;index:idx_conversation_user_course" json:"user_id"`
	CourseID  string    `gorm:"not null;index:idx_conversation_user_course" json:"course_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	Messages []*Message `gorm:"foreignKey:ConversationID;references:ID" json:"messages,omitempty"`
}

func (Conversation) TableName() string {
	return "conversation"
}

// Message is append-only within its conversation.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID string    `gorm:"not null;index" json:"conversation_id"`
	Role           string    `gorm:"not null" json:"role"`
	Content        string    `gorm:"not null" json:"content"`
	Timestamp      time.Time `gorm:"not null;index" json:"timestamp"`
}

func (Message) TableName() string {
	return "message"
}
