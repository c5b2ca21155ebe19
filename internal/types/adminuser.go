package types

import (
	"time"

	"github.com/google/uuid"
)

// AdminUser can register courses, upload documents and browse conversations.
type AdminUser struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string    `gorm:"not null;uniqueIndex" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

func (AdminUser) TableName() string {
	return "admin_user"
}
