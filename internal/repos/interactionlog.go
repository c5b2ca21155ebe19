package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/schoolbot-backend/internal/logger"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

type InteractionLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entry *types.InteractionLog) (*types.InteractionLog, error)
	GetByCourse(ctx context.Context, tx *gorm.DB, courseID string, limit int) ([]*types.InteractionLog, error)
}

type interactionLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInteractionLogRepo(db *gorm.DB, baseLog *logger.Logger) InteractionLogRepo {
	repoLog := baseLog.With("repo", "InteractionLogRepo")
	return &interactionLogRepo{db: db, log: repoLog}
}

func (r *interactionLogRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.InteractionLog) (*types.InteractionLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// GetByCourse returns recent interactions, newest first. Empty courseID
// returns interactions across all courses.
func (r *interactionLogRepo) GetByCourse(ctx context.Context, tx *gorm.DB, courseID string, limit int) ([]*types.InteractionLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Order("created_at DESC")
	if courseID != "" {
		q = q.Where("course_id = ?", courseID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []*types.InteractionLog
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
