package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/schoolbot-backend/internal/logger"
	apperr "github.com/yungbote/schoolbot-backend/internal/pkg/errors"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

type ConversationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, conv *types.Conversation) (*types.Conversation, error)
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Conversation, error)
	GetLatestForUserCourse(ctx context.Context, tx *gorm.DB, userID, courseID string) (*types.Conversation, error)
	TouchUpdatedAt(ctx context.Context, tx *gorm.DB, id string, at time.Time) error
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	repoLog := baseLog.With("repo", "ConversationRepo")
	return &conversationRepo{db: db, log: repoLog}
}

func (r *conversationRepo) Create(ctx context.Context, tx *gorm.DB, conv *types.Conversation) (*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var conv types.Conversation
	if err := transaction.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) GetLatestForUserCourse(ctx context.Context, tx *gorm.DB, userID, courseID string) (*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var conv types.Conversation
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Order("updated_at DESC").
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) TouchUpdatedAt(ctx context.Context, tx *gorm.DB, id string, at time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).Model(&types.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrConversationNotFound
	}
	return nil
}
