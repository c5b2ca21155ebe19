package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/schoolbot-backend/internal/clients/chatwork"
	"github.com/yungbote/schoolbot-backend/internal/clients/line"
	"github.com/yungbote/schoolbot-backend/internal/logger"
	"github.com/yungbote/schoolbot-backend/internal/services"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return log
}

type fakeCourseService struct {
	course *types.Course
}

func (f *fakeCourseService) Register(ctx context.Context, id, name, platform, managerSlackID string) (*types.Course, error) {
	return f.course, nil
}

func (f *fakeCourseService) Get(ctx context.Context, id string) (*types.Course, error) {
	return f.course, nil
}

func (f *fakeCourseService) List(ctx context.Context) ([]*types.Course, error) {
	return []*types.Course{f.course}, nil
}

func (f *fakeCourseService) UpdatePlatform(ctx context.Context, id, platform string) error {
	return nil
}

func (f *fakeCourseService) UpdateManagerSlackID(ctx context.Context, id, managerSlackID string) error {
	return nil
}

type fakeOrchestrator struct {
	answer *services.Answer
	err    error
}

func (f *fakeOrchestrator) Respond(ctx context.Context, courseID, userID, userName, messageText string) (*services.Answer, error) {
	return f.answer, f.err
}

type fakeNotifier struct {
	escalations []services.Escalation
}

func (f *fakeNotifier) NotifyEscalation(ctx context.Context, esc services.Escalation) {
	f.escalations = append(f.escalations, esc)
}

func newTestWebhookHandler(t *testing.T, orch services.ResponseOrchestrator, notifier services.NotifierService, course *types.Course) *WebhookHandler {
	t.Helper()
	log := testLogger(t)
	dedup := services.NewMessageDedupService(log, nil, 0)
	return NewWebhookHandler(
		log,
		&fakeCourseService{course: course},
		chatwork.NewRegistry(log),
		line.NewRegistry(log),
		dedup,
		orch,
		notifier,
	)
}

func TestProcessChatworkMessageForwardsConversationID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()
	t.Setenv("CHATWORK_API_TOKEN_course1", "token")
	t.Setenv("CHATWORK_BASE_URL", server.URL)

	answer := &services.Answer{
		ConversationID:  "course1_42_20260830120000",
		ResponseText:    "回答です。",
		NeedsEscalation: true,
	}
	answer.Satisfaction.Score = 0.1
	answer.Satisfaction.Reason = "再質問"
	answer.Satisfaction.NeedsHumanReview = true

	notifier := &fakeNotifier{}
	course := &types.Course{ID: "course1", Name: "Go入門", Platform: types.PlatformChatwork, ManagerSlackID: "U123"}
	wh := newTestWebhookHandler(t, &fakeOrchestrator{answer: answer}, notifier, course)

	wh.processChatworkMessage(course, chatwork.MessageEvent{
		RoomID:    1,
		AccountID: 42,
		MessageID: "m1",
		Body:      "課題の提出方法を教えてください",
	})

	if len(notifier.escalations) != 1 {
		t.Fatalf("expected 1 escalation, got %d", len(notifier.escalations))
	}
	esc := notifier.escalations[0]
	if esc.ConversationID != "course1_42_20260830120000" {
		t.Fatalf("escalation conversation id = %q", esc.ConversationID)
	}
	if esc.UserID != "42" || esc.ManagerSlackID != "U123" {
		t.Fatalf("unexpected escalation: %+v", esc)
	}
}

func TestChatworkMemberAddedWelcomedOnce(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("CHATWORK_API_TOKEN_course2", "")

	course := &types.Course{ID: "course2", Name: "Go入門", Platform: types.PlatformChatwork}
	wh := newTestWebhookHandler(t, &fakeOrchestrator{}, nil, course)

	payload := []byte(`{"webhook_event_type":"room_member_added","webhook_event":{"room_id":9,"account_id":7}}`)
	post := func() string {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "courseID", Value: "course2"}}
		c.Request = httptest.NewRequest(http.MethodPost, "/webhook/chatwork/course2", bytes.NewReader(payload))
		wh.Chatwork(c)

		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return body["status"]
	}

	if got := post(); got != "accepted" {
		t.Fatalf("first delivery status = %q, want accepted", got)
	}
	if got := post(); got != "duplicate" {
		t.Fatalf("retried delivery status = %q, want duplicate", got)
	}
}
