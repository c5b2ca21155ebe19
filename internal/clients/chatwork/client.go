package chatwork

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/schoolbot-backend/internal/logger"
)

const apiBaseURL = "https://api.chatwork.com/v2"

// Client talks to the Chatwork v2 REST API with one course's bot token.
type Client struct {
	log        *logger.Logger
	courseID   string
	apiToken   string
	baseURL    string
	httpClient *http.Client
}

// NewClient reads the per-course token CHATWORK_API_TOKEN_{courseID}.
func NewClient(log *logger.Logger, courseID string) (*Client, error) {
	token := strings.TrimSpace(os.Getenv("CHATWORK_API_TOKEN_" + courseID))
	if token == "" {
		return nil, fmt.Errorf("missing CHATWORK_API_TOKEN_%s", courseID)
	}
	baseURL := os.Getenv("CHATWORK_BASE_URL")
	if baseURL == "" {
		baseURL = apiBaseURL
	}
	return &Client{
		log:        log.With("client", "ChatworkClient", "course_id", courseID),
		courseID:   courseID,
		apiToken:   token,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type Account struct {
	AccountID        int64  `json:"account_id"`
	Name             string `json:"name"`
	ChatworkID       string `json:"chatwork_id"`
	OrganizationName string `json:"organization_name"`
}

type Room struct {
	RoomID int64  `json:"room_id"`
	Name   string `json:"name"`
	Type   string `json:"type"` // "my", "direct" or "group"
}

type RoomMessage struct {
	MessageID string  `json:"message_id"`
	Account   Account `json:"account"`
	Body      string  `json:"body"`
	SendTime  int64   `json:"send_time"`
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-ChatWorkToken", c.apiToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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
		return fmt.Errorf("chatwork http %d: %s", resp.StatusCode, string(raw))
	}
	// 204 means no unread messages.
	if out == nil || resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) SendMessage(ctx context.Context, roomID int64, message string) error {
	form := url.Values{}
	form.Set("body", message)
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/rooms/%d/messages", roomID), form, nil)
}

func (c *Client) GetMyInfo(ctx context.Context) (*Account, error) {
	var me Account
	if err := c.do(ctx, http.MethodGet, "/me", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *Client) GetUserInfo(ctx context.Context, accountID int64) (*Account, error) {
	var account Account
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d", accountID), nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *Client) GetRooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// GetUnreadMessages fetches only unread messages (force=0); Chatwork answers
// 204 when there is nothing unread.
func (c *Client) GetUnreadMessages(ctx context.Context, roomID int64) ([]RoomMessage, error) {
	var msgs []RoomMessage
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/rooms/%d/messages?force=0", roomID), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) MarkMessagesRead(ctx context.Context, roomID int64, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	form := url.Values{}
	form.Set("message_id", strings.Join(messageIDs, ","))
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/rooms/%d/messages/read", roomID), form, nil)
}

// ---- Webhook payloads ----

// WebhookEvent is the normalized variant handed past the HTTP boundary; the
// coordinator and orchestrator never see raw Chatwork JSON.
type WebhookEvent interface {
	isWebhookEvent()
}

type MessageEvent struct {
	RoomID    int64
	AccountID int64
	MessageID string
	Body      string
}

type MemberAddedEvent struct {
	RoomID    int64
	AccountID int64
}

func (MessageEvent) isWebhookEvent()     {}
func (MemberAddedEvent) isWebhookEvent() {}

type webhookEnvelope struct {
	WebhookEventType string `json:"webhook_event_type"`
	WebhookEvent     struct {
		FromAccountID int64           `json:"from_account_id"`
		AccountID     int64           `json:"account_id"`
		RoomID        int64           `json:"room_id"`
		MessageID     json.RawMessage `json:"message_id"`
		Body          string          `json:"body"`
	} `json:"webhook_event"`
}

// ParseWebhook validates the payload shape and returns the normalized event,
// or nil for event types the bot ignores.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parse chatwork webhook: %w", err)
	}
	ev := envelope.WebhookEvent
	switch envelope.WebhookEventType {
	case "message_created":
		if ev.RoomID == 0 {
			return nil, fmt.Errorf("chatwork message_created missing room_id")
		}
		return MessageEvent{
			RoomID:    ev.RoomID,
			AccountID: ev.FromAccountID,
			MessageID: decodeMessageID(ev.MessageID),
			Body:      strings.TrimSpace(ev.Body),
		}, nil
	case "room_member_added":
		if ev.RoomID == 0 {
			return nil, fmt.Errorf("chatwork room_member_added missing room_id")
		}
		return MemberAddedEvent{RoomID: ev.RoomID, AccountID: ev.AccountID}, nil
	default:
		return nil, nil
	}
}

// decodeMessageID tolerates both string and numeric message ids; Chatwork has
// shipped both over time.
func decodeMessageID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return strings.Trim(string(raw), `"`)
}
