package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/schoolbot-backend/internal/clients/chatwork"
	"github.com/yungbote/schoolbot-backend/internal/clients/line"
	"github.com/yungbote/schoolbot-backend/internal/logger"
	"github.com/yungbote/schoolbot-backend/internal/services"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

// webhookProcessTimeout bounds the background work kicked off per event; the
// HTTP response itself returns immediately so the platform never retries a
// slow answer.
const webhookProcessTimeout = 90 * time.Second

type WebhookHandler struct {
	log              *logger.Logger
	courseService    services.CourseService
	chatworkRegistry *chatwork.Registry
	lineRegistry     *line.Registry
	dedup            services.MessageDedupService
	orchestrator     services.ResponseOrchestrator
	notifier         services.NotifierService
}

func NewWebhookHandler(
	baseLog *logger.Logger,
	courseService services.CourseService,
	chatworkRegistry *chatwork.Registry,
	lineRegistry *line.Registry,
	dedup services.MessageDedupService,
	orchestrator services.ResponseOrchestrator,
	notifier services.NotifierService,
) *WebhookHandler {
	return &WebhookHandler{
		log:              baseLog.With("handler", "WebhookHandler"),
		courseService:    courseService,
		chatworkRegistry: chatworkRegistry,
		lineRegistry:     lineRegistry,
		dedup:            dedup,
		orchestrator:     orchestrator,
		notifier:         notifier,
	}
}

// Chatwork receives message_created and room_member_added events. It always
// acks with 200 once the payload parses; processing happens off the request
// goroutine.
func (wh *WebhookHandler) Chatwork(c *gin.Context) {
	courseID := c.Param("courseID")
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	event, err := chatwork.ParseWebhook(body)
	if err != nil {
		wh.log.Warn("Chatwork webhook rejected", "course_id", courseID, "error", err)
		RespondError(c, http.StatusBadRequest, "invalid_payload", err)
		return
	}
	if event == nil {
		RespondOK(c, gin.H{"status": "ignored"})
		return
	}

	course, err := wh.courseService.Get(c.Request.Context(), courseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	switch ev := event.(type) {
	case chatwork.MessageEvent:
		key := services.DedupKey{
			CourseID:  courseID,
			Room:      strconv.FormatInt(ev.RoomID, 10),
			MessageID: ev.MessageID,
		}
		if !wh.dedup.ShouldProcess(c.Request.Context(), key) {
			RespondOK(c, gin.H{"status": "duplicate"})
			return
		}
		go wh.processChatworkMessage(course, ev)
	case chatwork.MemberAddedEvent:
		// The event carries no message id, so the member id scopes the key;
		// a retried delivery must not re-send the welcome.
		key := services.DedupKey{
			CourseID:  courseID,
			Room:      strconv.FormatInt(ev.RoomID, 10),
			MessageID: "member_added:" + strconv.FormatInt(ev.AccountID, 10),
		}
		if !wh.dedup.ShouldProcess(c.Request.Context(), key) {
			RespondOK(c, gin.H{"status": "duplicate"})
			return
		}
		go wh.welcomeChatworkMember(course, ev)
	}
	RespondOK(c, gin.H{"status": "accepted"})
}

func (wh *WebhookHandler) processChatworkMessage(course *types.Course, ev chatwork.MessageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
	defer cancel()

	client, err := wh.chatworkRegistry.Get(course.ID)
	if err != nil {
		wh.log.Error("No Chatwork client for course", "course_id", course.ID, "error", err)
		return
	}

	userID := strconv.FormatInt(ev.AccountID, 10)
	answer, err := wh.orchestrator.Respond(ctx, course.ID, userID, "", ev.Body)
	if err != nil {
		wh.log.Error("Respond failed", "course_id", course.ID, "room_id", ev.RoomID, "error", err)
		return
	}
	if answer == nil {
		return
	}

	reply := "[To:" + userID + "] " + answer.ResponseText
	if err := client.SendMessage(ctx, ev.RoomID, reply); err != nil {
		wh.log.Error("Send reply failed", "course_id", course.ID, "room_id", ev.RoomID, "error", err)
	}

	if answer.NeedsEscalation && wh.notifier != nil {
		wh.notifier.NotifyEscalation(ctx, services.Escalation{
			CourseID:       course.ID,
			CourseName:     course.Name,
			UserID:         userID,
			Question:       ev.Body,
			Answer:         answer.ResponseText,
			Score:          answer.Satisfaction.Score,
			Reason:         answer.Satisfaction.Reason,
			ConversationID: answer.ConversationID,
			ManagerSlackID: course.ManagerSlackID,
		})
	}
}

func (wh *WebhookHandler) welcomeChatworkMember(course *types.Course, ev chatwork.MemberAddedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
	defer cancel()

	client, err := wh.chatworkRegistry.Get(course.ID)
	if err != nil {
		wh.log.Error("No Chatwork client for course", "course_id", course.ID, "error", err)
		return
	}
	msg := "[To:" + strconv.FormatInt(ev.AccountID, 10) + "]\n" + services.WelcomeMessage(course.Name)
	if err := client.SendMessage(ctx, ev.RoomID, msg); err != nil {
		wh.log.Error("Welcome message failed", "course_id", course.ID, "room_id", ev.RoomID, "error", err)
	}
}

// Line receives follow and message events. The signature check needs the raw
// body, so parsing happens before anything else touches the request.
func (wh *WebhookHandler) Line(c *gin.Context) {
	courseID := c.Param("courseID")
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	client, err := wh.lineRegistry.Get(courseID)
	if err != nil {
		wh.log.Error("No LINE client for course", "course_id", courseID, "error", err)
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}

	events, err := client.ParseWebhook(body, c.GetHeader("X-Line-Signature"))
	if err != nil {
		wh.log.Warn("LINE webhook rejected", "course_id", courseID, "error", err)
		RespondError(c, http.StatusUnauthorized, "invalid_signature", err)
		return
	}

	course, err := wh.courseService.Get(c.Request.Context(), courseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	for _, event := range events {
		switch ev := event.(type) {
		case line.FollowEvent:
			go wh.welcomeLineFollower(course, client, ev)
		case line.MessageEvent:
			// A LINE push target is the user, so the user id doubles as the
			// room scope of the dedup key.
			key := services.DedupKey{
				CourseID:  courseID,
				Room:      ev.UserID,
				MessageID: ev.MessageID,
			}
			if !wh.dedup.ShouldProcess(c.Request.Context(), key) {
				continue
			}
			go wh.processLineMessage(course, client, ev)
		}
	}
	RespondOK(c, gin.H{"status": "accepted"})
}

func (wh *WebhookHandler) processLineMessage(course *types.Course, client *line.Client, ev line.MessageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
	defer cancel()

	userName := ""
	if profile, err := client.GetProfile(ctx, ev.UserID); err == nil {
		userName = profile.DisplayName
	}

	answer, err := wh.orchestrator.Respond(ctx, course.ID, ev.UserID, userName, ev.Text)
	if err != nil {
		wh.log.Error("Respond failed", "course_id", course.ID, "user_id", ev.UserID, "error", err)
		return
	}
	if answer == nil {
		return
	}

	if err := client.PushMessage(ctx, ev.UserID, answer.ResponseText); err != nil {
		wh.log.Error("Push reply failed", "course_id", course.ID, "user_id", ev.UserID, "error", err)
	}

	if answer.NeedsEscalation && wh.notifier != nil {
		wh.notifier.NotifyEscalation(ctx, services.Escalation{
			CourseID:       course.ID,
			CourseName:     course.Name,
			UserID:         ev.UserID,
			UserName:       userName,
			Question:       ev.Text,
			Answer:         answer.ResponseText,
			Score:          answer.Satisfaction.Score,
			Reason:         answer.Satisfaction.Reason,
			ConversationID: answer.ConversationID,
			ManagerSlackID: course.ManagerSlackID,
		})
	}
}

func (wh *WebhookHandler) welcomeLineFollower(course *types.Course, client *line.Client, ev line.FollowEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
	defer cancel()

	if err := client.PushMessage(ctx, ev.UserID, services.WelcomeMessage(course.Name)); err != nil {
		wh.log.Error("Welcome message failed", "course_id", course.ID, "user_id", ev.UserID, "error", err)
	}
}
