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

type CourseRepo interface {
	Create(ctx context.Context, tx *gorm.DB, course *types.Course) (*types.Course, error)
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Course, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Course, error)
	UpdatePlatform(ctx context.Context, tx *gorm.DB, id, platform string) error
	UpdateManagerSlackID(ctx context.Context, tx *gorm.DB, id, managerSlackID string) error
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	repoLog := baseLog.With("repo", "CourseRepo")
	return &courseRepo{db: db, log: repoLog}
}

func (r *courseRepo) Create(ctx context.Context, tx *gorm.DB, course *types.Course) (*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(course).Error; err != nil {
		return nil, err
	}
	return course, nil
}

func (r *courseRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var course types.Course
	if err := transaction.WithContext(ctx).First(&course, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &course, nil
}

func (r *courseRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var courses []*types.Course
	if err := transaction.WithContext(ctx).Order("created_at ASC").Find(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *courseRepo) UpdatePlatform(ctx context.Context, tx *gorm.DB, id, platform string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).Model(&types.Course{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"platform": platform, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *courseRepo) UpdateManagerSlackID(ctx context.Context, tx *gorm.DB, id, managerSlackID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).Model(&types.Course{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"manager_slack_id": managerSlackID, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
