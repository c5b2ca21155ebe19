package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yungbote/schoolbot-backend/internal/logger"
)

const apiBaseURL = "https://api.line.me"

// Client talks to the LINE Messaging API with one course's channel
// credentials.
type Client struct {
	log           *logger.Logger
	courseID      string
	accessToken   string
	channelSecret string
	baseURL       string
	httpClient    *http.Client
}

// NewClient reads LINE_CHANNEL_ACCESS_TOKEN_{courseID} and
// LINE_CHANNEL_SECRET_{courseID}.
func NewClient(log *logger.Logger, courseID string) (*Client, error) {
	token := strings.TrimSpace(os.Getenv("LINE_CHANNEL_ACCESS_TOKEN_" + courseID))
	if token == "" {
		return nil, fmt.Errorf("missing LINE_CHANNEL_ACCESS_TOKEN_%s", courseID)
	}
	secret := strings.TrimSpace(os.Getenv("LINE_CHANNEL_SECRET_" + courseID))
	baseURL := os.Getenv("LINE_BASE_URL")
	if baseURL == "" {
		baseURL = apiBaseURL
	}
	return &Client{
		log:           log.With("client", "LineClient", "course_id", courseID),
		courseID:      courseID,
		accessToken:   token,
		channelSecret: secret,
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// VerifySignature checks the X-Line-Signature header: base64 of the HMAC
// SHA256 of the raw body under the channel secret.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	if c.channelSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ---- Webhook payloads ----

// WebhookEvent is the normalized variant handed past the HTTP boundary.
type WebhookEvent interface {
	isWebhookEvent()
}

// FollowEvent fires when a user adds the bot as a friend.
type FollowEvent struct {
	UserID string
}

// MessageEvent carries one inbound text message. Non-text messages are
// dropped during parsing.
type MessageEvent struct {
	UserID    string
	MessageID string
	Text      string
}

func (FollowEvent) isWebhookEvent()  {}
func (MessageEvent) isWebhookEvent() {}

type webhookEnvelope struct {
	Events []struct {
		Type   string `json:"type"`
		Source struct {
			UserID string `json:"userId"`
		} `json:"source"`
		Message struct {
			Type string `json:"type"`
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"message"`
	} `json:"events"`
}

// ParseWebhook verifies the signature and returns the normalized events.
func (c *Client) ParseWebhook(body []byte, signature string) ([]WebhookEvent, error) {
	if !c.VerifySignature(body, signature) {
		return nil, fmt.Errorf("line signature verification failed")
	}
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parse line webhook: %w", err)
	}
	var events []WebhookEvent
	for _, ev := range envelope.Events {
		switch ev.Type {
		case "follow":
			if ev.Source.UserID != "" {
				events = append(events, FollowEvent{UserID: ev.Source.UserID})
			}
		case "message":
			if ev.Message.Type == "text" && ev.Source.UserID != "" {
				events = append(events, MessageEvent{
					UserID:    ev.Source.UserID,
					MessageID: ev.Message.ID,
					Text:      strings.TrimSpace(ev.Message.Text),
				})
			}
		}
	}
	return events, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("line http %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// PushMessage sends one text message to a user.
func (c *Client) PushMessage(ctx context.Context, userID, text string) error {
	payload := map[string]any{
		"to": userID,
		"messages": []map[string]string{
			{"type": "text", "text": text},
		},
	}
	return c.do(ctx, http.MethodPost, "/v2/bot/message/push", payload, nil)
}

type Profile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PictureURL  string `json:"pictureUrl"`
}

func (c *Client) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var profile Profile
	if err := c.do(ctx, http.MethodGet, "/v2/bot/profile/"+userID, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
