package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/schoolbot-backend/internal/logger"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

type MessageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, msg *types.Message) (*types.Message, error)
	GetLastByConversation(ctx context.Context, tx *gorm.DB, conversationID string, limit int) ([]*types.Message, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	repoLog := baseLog.With("repo", "MessageRepo")
	return &messageRepo{db: db, log: repoLog}
}

func (r *messageRepo) Create(ctx context.Context, tx *gorm.DB, msg *types.Message) (*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

// GetLastByConversation returns the last limit messages in chronological
// order. limit <= 0 returns all messages.
func (r *messageRepo) GetLastByConversation(ctx context.Context, tx *gorm.DB, conversationID string, limit int) ([]*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var newestFirst []*types.Message
	if err := q.Find(&newestFirst).Error; err != nil {
		return nil, err
	}
	// Flip back to chronological order.
	out := make([]*types.Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out, nil
}
