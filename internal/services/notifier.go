package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yungbote/schoolbot-backend/internal/logger"
)

// Escalation is what the notifier posts when a turn needs a human.
type Escalation struct {
	CourseID       string
	CourseName     string
	UserID         string
	UserName       string
	Question       string
	Answer         string
	Score          float64
	Reason         string
	ConversationID string
	ManagerSlackID string
}

// NotifierService escalates low-satisfaction turns to operators. Delivery is
// best effort: a failed notification is logged, never surfaced to the user.
type NotifierService interface {
	NotifyEscalation(ctx context.Context, esc Escalation)
}

type slackNotifier struct {
	log        *logger.Logger
	token      string
	channel    string
	baseURL    string
	httpClient *http.Client
}

// NewSlackNotifier reads SLACK_BOT_TOKEN and SLACK_NOTIFY_CHANNEL. Missing
// token means the capability is off; callers hold a nil notifier then.
func NewSlackNotifier(baseLog *logger.Logger) (NotifierService, error) {
	token := strings.TrimSpace(os.Getenv("SLACK_BOT_TOKEN"))
	if token == "" {
		return nil, fmt.Errorf("missing SLACK_BOT_TOKEN")
	}
	channel := strings.TrimSpace(os.Getenv("SLACK_NOTIFY_CHANNEL"))
	if channel == "" {
		channel = "#course-support"
	}
	baseURL := os.Getenv("SLACK_BASE_URL")
	if baseURL == "" {
		baseURL = "https://slack.com"
	}
	return &slackNotifier{
		log:        baseLog.With("service", "SlackNotifier"),
		token:      token,
		channel:    channel,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (s *slackNotifier) NotifyEscalation(ctx context.Context, esc Escalation) {
	var b strings.Builder
	b.WriteString("⚠️ 要対応の質問があります\n")
	if esc.ManagerSlackID != "" {
		fmt.Fprintf(&b, "<@%s>\n", esc.ManagerSlackID)
	}
	fmt.Fprintf(&b, "コース: %s (%s)\n", esc.CourseName, esc.CourseID)
	userLabel := esc.UserName
	if userLabel == "" {
		userLabel = esc.UserID
	}
	fmt.Fprintf(&b, "ユーザー: %s\n", userLabel)
	fmt.Fprintf(&b, "質問: %s\n", esc.Question)
	fmt.Fprintf(&b, "ボットの回答: %s\n", esc.Answer)
	fmt.Fprintf(&b, "満足度スコア: %.2f\n", esc.Score)
	if esc.Reason != "" {
		fmt.Fprintf(&b, "判定理由: %s\n", esc.Reason)
	}
	if esc.ConversationID != "" {
		fmt.Fprintf(&b, "会話ID: %s\n", esc.ConversationID)
	}

	payload := map[string]any{
		"channel": s.channel,
		"text":    b.String(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("Slack payload marshal failed", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/chat.postMessage", bytes.NewReader(raw))
	if err != nil {
		s.log.Error("Slack request build failed", "error", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Warn("Slack notification failed", "course_id", esc.CourseID, "error", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil || !result.OK {
		s.log.Warn("Slack notification rejected",
			"course_id", esc.CourseID,
			"status", resp.StatusCode,
			"slack_error", result.Error,
		)
		return
	}
	s.log.Info("Escalation notified", "course_id", esc.CourseID, "user_id", esc.UserID)
}
