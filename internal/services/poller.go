package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/yungbote/schoolbot-backend/internal/clients/chatwork"
	"github.com/yungbote/schoolbot-backend/internal/logger"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

const (
	// DefaultPollInterval is the pause between full polling sweeps.
	DefaultPollInterval = 30 * time.Second
	// pollRoomPause spaces room fetches so one sweep never bursts through the
	// Chatwork rate limit.
	pollRoomPause = 1 * time.Second
	// pollErrorBackoff is the pause after a sweep that failed outright.
	pollErrorBackoff = 60 * time.Second
)

// PollerService sweeps Chatwork rooms for unread messages as the fallback
// ingestion path. Every message passes the same dedup gate as the webhook
// path, so a message delivered both ways is answered once.
type PollerService interface {
	// Run blocks until ctx is cancelled.
	Run(ctx context.Context)
}

type pollerService struct {
	log          *logger.Logger
	courses      CourseService
	registry     *chatwork.Registry
	dedup        MessageDedupService
	orchestrator ResponseOrchestrator
	notifier     NotifierService
	interval     time.Duration

	mu         sync.Mutex
	botAccount map[string]int64 // course id -> bot account id
}

func NewPollerService(
	baseLog *logger.Logger,
	courses CourseService,
	registry *chatwork.Registry,
	dedup MessageDedupService,
	orchestrator ResponseOrchestrator,
	notifier NotifierService,
	interval time.Duration,
) PollerService {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &pollerService{
		log:          baseLog.With("service", "PollerService"),
		courses:      courses,
		registry:     registry,
		dedup:        dedup,
		orchestrator: orchestrator,
		notifier:     notifier,
		interval:     interval,
		botAccount:   make(map[string]int64),
	}
}

func (p *pollerService) Run(ctx context.Context) {
	p.log.Info("Polling loop started", "interval", p.interval.String())
	for {
		pause := p.interval
		if err := p.sweep(ctx); err != nil {
			p.log.Error("Polling sweep failed", "error", err)
			pause = pollErrorBackoff
		}
		select {
		case <-ctx.Done():
			p.log.Info("Polling loop stopped")
			return
		case <-time.After(pause):
		}
	}
}

// sweep polls every Chatwork course once. A single course failing does not
// stop the others.
func (p *pollerService) sweep(ctx context.Context) error {
	courses, err := p.courses.List(ctx)
	if err != nil {
		return fmt.Errorf("list courses: %w", err)
	}
	for _, course := range courses {
		if course.Platform != types.PlatformChatwork {
			continue
		}
		if err := p.pollCourse(ctx, course); err != nil {
			p.log.Warn("Course poll failed", "course_id", course.ID, "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (p *pollerService) pollCourse(ctx context.Context, course *types.Course) error {
	client, err := p.registry.Get(course.ID)
	if err != nil {
		// No token configured for this course; skip quietly.
		p.log.Debug("Skipping course without Chatwork token", "course_id", course.ID)
		return nil
	}

	botID, err := p.botAccountID(ctx, course.ID, client)
	if err != nil {
		return fmt.Errorf("resolve bot account: %w", err)
	}

	rooms, err := client.GetRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	for _, room := range rooms {
		if room.Type != "direct" && room.Type != "my" {
			continue
		}
		if err := p.pollRoom(ctx, course, client, room, botID); err != nil {
			p.log.Warn("Room poll failed", "course_id", course.ID, "room_id", room.RoomID, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollRoomPause):
		}
	}
	return nil
}

func (p *pollerService) pollRoom(ctx context.Context, course *types.Course, client *chatwork.Client, room chatwork.Room, botID int64) error {
	messages, err := client.GetUnreadMessages(ctx, room.RoomID)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	var processed []string
	for _, msg := range messages {
		// In my-chat the only author is the bot owner, so own messages are
		// still handled; everywhere else the bot must not answer itself.
		if room.Type != "my" && msg.Account.AccountID == botID {
			processed = append(processed, msg.MessageID)
			continue
		}

		key := DedupKey{
			CourseID:  course.ID,
			Room:      strconv.FormatInt(room.RoomID, 10),
			MessageID: msg.MessageID,
		}
		if !p.dedup.ShouldProcess(ctx, key) {
			processed = append(processed, msg.MessageID)
			continue
		}

		p.handleMessage(ctx, course, client, room.RoomID, msg)
		// Even a failed outbound send marks the message processed; retrying
		// would double-answer once the send path recovers.
		processed = append(processed, msg.MessageID)
	}

	if err := client.MarkMessagesRead(ctx, room.RoomID, processed); err != nil {
		p.log.Warn("Mark read failed", "course_id", course.ID, "room_id", room.RoomID, "error", err)
	}
	return nil
}

func (p *pollerService) handleMessage(ctx context.Context, course *types.Course, client *chatwork.Client, roomID int64, msg chatwork.RoomMessage) {
	userID := strconv.FormatInt(msg.Account.AccountID, 10)
	answer, err := p.orchestrator.Respond(ctx, course.ID, userID, msg.Account.Name, msg.Body)
	if err != nil {
		p.log.Error("Respond failed", "course_id", course.ID, "room_id", roomID, "error", err)
		return
	}
	if answer == nil {
		return
	}

	reply := fmt.Sprintf("[To:%d] %s", msg.Account.AccountID, answer.ResponseText)
	if err := client.SendMessage(ctx, roomID, reply); err != nil {
		p.log.Error("Send reply failed", "course_id", course.ID, "room_id", roomID, "error", err)
	}

	if answer.NeedsEscalation && p.notifier != nil {
		p.notifier.NotifyEscalation(ctx, Escalation{
			CourseID:       course.ID,
			CourseName:     course.Name,
			UserID:         userID,
			UserName:       msg.Account.Name,
			Question:       msg.Body,
			Answer:         answer.ResponseText,
			Score:          answer.Satisfaction.Score,
			Reason:         answer.Satisfaction.Reason,
			ConversationID: answer.ConversationID,
			ManagerSlackID: course.ManagerSlackID,
		})
	}
}

func (p *pollerService) botAccountID(ctx context.Context, courseID string, client *chatwork.Client) (int64, error) {
	p.mu.Lock()
	if id, ok := p.botAccount[courseID]; ok {
		p.mu.Unlock()
		return id, nil
	}
	p.mu.Unlock()

	me, err := client.GetMyInfo(ctx)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.botAccount[courseID] = me.AccountID
	p.mu.Unlock()
	return me.AccountID, nil
}
