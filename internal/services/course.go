package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/schoolbot-backend/internal/logger"
	apperr "github.com/yungbote/schoolbot-backend/internal/pkg/errors"
	"github.com/yungbote/schoolbot-backend/internal/repos"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

type CourseService interface {
	// Register creates a course. The id becomes part of conversation ids,
	// env var names and dedup keys, so it must stay a plain token.
	Register(ctx context.Context, id, name, platform, managerSlackID string) (*types.Course, error)
	Get(ctx context.Context, id string) (*types.Course, error)
	List(ctx context.Context) ([]*types.Course, error)
	UpdatePlatform(ctx context.Context, id, platform string) error
	UpdateManagerSlackID(ctx context.Context, id, managerSlackID string) error
}

type courseService struct {
	db         *gorm.DB
	log        *logger.Logger
	courseRepo repos.CourseRepo
}

func NewCourseService(db *gorm.DB, baseLog *logger.Logger, courseRepo repos.CourseRepo) CourseService {
	serviceLog := baseLog.With("service", "CourseService")
	return &courseService{db: db, log: serviceLog, courseRepo: courseRepo}
}

func validCourseID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

func (s *courseService) Register(ctx context.Context, id, name, platform, managerSlackID string) (*types.Course, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if !validCourseID(id) {
		return nil, fmt.Errorf("%w: course id must be alphanumeric with - or _", apperr.ErrInvalidArgument)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: course name required", apperr.ErrInvalidArgument)
	}
	if platform == "" {
		platform = types.PlatformChatwork
	}
	if platform != types.PlatformChatwork && platform != types.PlatformLine {
		return nil, fmt.Errorf("%w: unknown platform %q", apperr.ErrInvalidArgument, platform)
	}

	if existing, err := s.courseRepo.GetByID(ctx, nil, id); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrDuplicateCourse, id)
	} else if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("check existing course: %w", err)
	}

	now := time.Now()
	course := &types.Course{
		ID:             id,
		Name:           name,
		Platform:       platform,
		ManagerSlackID: strings.TrimSpace(managerSlackID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.courseRepo.Create(ctx, nil, course); err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}
	s.log.Info("Registered course", "course_id", id, "platform", platform)
	return course, nil
}

func (s *courseService) Get(ctx context.Context, id string) (*types.Course, error) {
	return s.courseRepo.GetByID(ctx, nil, id)
}

func (s *courseService) List(ctx context.Context) ([]*types.Course, error) {
	return s.courseRepo.GetAll(ctx, nil)
}

func (s *courseService) UpdatePlatform(ctx context.Context, id, platform string) error {
	if platform != types.PlatformChatwork && platform != types.PlatformLine {
		return fmt.Errorf("%w: unknown platform %q", apperr.ErrInvalidArgument, platform)
	}
	return s.courseRepo.UpdatePlatform(ctx, nil, id, platform)
}

func (s *courseService) UpdateManagerSlackID(ctx context.Context, id, managerSlackID string) error {
	return s.courseRepo.UpdateManagerSlackID(ctx, nil, id, strings.TrimSpace(managerSlackID))
}
