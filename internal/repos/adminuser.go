package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yungbote/schoolbot-backend/internal/logger"
	apperr "github.com/yungbote/schoolbot-backend/internal/pkg/errors"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

type AdminUserRepo interface {
	Create(ctx context.Context, tx *gorm.DB, user *types.AdminUser) (*types.AdminUser, error)
	GetByUsername(ctx context.Context, tx *gorm.DB, username string) (*types.AdminUser, error)
}

type adminUserRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAdminUserRepo(db *gorm.DB, baseLog *logger.Logger) AdminUserRepo {
	repoLog := baseLog.With("repo", "AdminUserRepo")
	return &adminUserRepo{db: db, log: repoLog}
}

func (r *adminUserRepo) Create(ctx context.Context, tx *gorm.DB, user *types.AdminUser) (*types.AdminUser, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (r *adminUserRepo) GetByUsername(ctx context.Context, tx *gorm.DB, username string) (*types.AdminUser, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var user types.AdminUser
	if err := transaction.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}
