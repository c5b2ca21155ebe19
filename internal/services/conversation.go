package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/schoolbot-backend/internal/logger"
	apperr "github.com/yungbote/schoolbot-backend/internal/pkg/errors"
	"github.com/yungbote/schoolbot-backend/internal/repos"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

const (
	// SessionWindow is how long a conversation stays open after its last
	// update. A message arriving later starts a new conversation.
	SessionWindow = 24 * time.Hour
	// DefaultHistoryLimit caps how many trailing messages History returns.
	DefaultHistoryLimit = 20

	appendStripes = 64
)

type ConversationService interface {
	// GetOrCreate returns the open conversation for (user, course) or starts
	// a new one when none exists or the last one has gone idle.
	GetOrCreate(ctx context.Context, userID, courseID string) (string, error)
	// Append adds one timestamped turn. Appends to the same conversation are
	// serialized.
	Append(ctx context.Context, conversationID, role, content string) error
	// History returns the last limit messages in chronological order.
	History(ctx context.Context, conversationID string, limit int) ([]*types.Message, error)
	Get(ctx context.Context, conversationID string) (*types.Conversation, []*types.Message, error)
}

type conversationService struct {
	db               *gorm.DB
	log              *logger.Logger
	conversationRepo repos.ConversationRepo
	messageRepo      repos.MessageRepo

	// stripes serialize appends per conversation id without a global lock.
	stripes [appendStripes]sync.Mutex

	now func() time.Time
}

func NewConversationService(db *gorm.DB, baseLog *logger.Logger, conversationRepo repos.ConversationRepo, messageRepo repos.MessageRepo) ConversationService {
	serviceLog := baseLog.With("service", "ConversationService")
	return &conversationService{
		db:               db,
		log:              serviceLog,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		now:              time.Now,
	}
}

func (s *conversationService) GetOrCreate(ctx context.Context, userID, courseID string) (string, error) {
	if userID == "" || courseID == "" {
		return "", fmt.Errorf("%w: user id and course id required", apperr.ErrInvalidArgument)
	}

	latest, err := s.conversationRepo.GetLatestForUserCourse(ctx, nil, userID, courseID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return "", fmt.Errorf("load latest conversation: %w", err)
	}
	now := s.now()
	if latest != nil && now.Sub(latest.UpdatedAt) < SessionWindow {
		return latest.ID, nil
	}

	conv := &types.Conversation{
		ID:        fmt.Sprintf("%s_%s_%s", courseID, userID, now.Format("20060102150405")),
		UserID:    userID,
		CourseID:  courseID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.conversationRepo.Create(ctx, nil, conv); err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	s.log.Debug("Started new conversation", "conversation_id", conv.ID, "course_id", courseID)
	return conv.ID, nil
}

func (s *conversationService) Append(ctx context.Context, conversationID, role, content string) error {
	if role != types.RoleUser && role != types.RoleAssistant {
		return fmt.Errorf("%w: unknown role %q", apperr.ErrInvalidArgument, role)
	}

	lock := &s.stripes[stripeFor(conversationID)]
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.conversationRepo.GetByID(ctx, nil, conversationID); err != nil {
		return err
	}

	now := s.now()
	msg := &types.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      now,
	}
	if _, err := s.messageRepo.Create(ctx, nil, msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if err := s.conversationRepo.TouchUpdatedAt(ctx, nil, conversationID, now); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (s *conversationService) History(ctx context.Context, conversationID string, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if _, err := s.conversationRepo.GetByID(ctx, nil, conversationID); err != nil {
		return nil, err
	}
	return s.messageRepo.GetLastByConversation(ctx, nil, conversationID, limit)
}

func (s *conversationService) Get(ctx context.Context, conversationID string) (*types.Conversation, []*types.Message, error) {
	conv, err := s.conversationRepo.GetByID(ctx, nil, conversationID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messageRepo.GetLastByConversation(ctx, nil, conversationID, 0)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

func stripeFor(conversationID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return int(h.Sum32() % appendStripes)
}
