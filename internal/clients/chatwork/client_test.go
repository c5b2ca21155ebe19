package chatwork

import (
	"testing"
)

func TestParseWebhookMessageCreated(t *testing.T) {
	body := []byte(`{
		"webhook_event_type": "message_created",
		"webhook_event": {
			"from_account_id": 123,
			"room_id": 456,
			"message_id": "789",
			"body": "  質問です  "
		}
	}`)

	event, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	msg, ok := event.(MessageEvent)
	if !ok {
		t.Fatalf("expected MessageEvent, got %T", event)
	}
	if msg.RoomID != 456 || msg.AccountID != 123 {
		t.Fatalf("unexpected ids: %+v", msg)
	}
	if msg.MessageID != "789" {
		t.Fatalf("MessageID = %q", msg.MessageID)
	}
	if msg.Body != "質問です" {
		t.Fatalf("Body = %q, want trimmed", msg.Body)
	}
}

func TestParseWebhookNumericMessageID(t *testing.T) {
	body := []byte(`{
		"webhook_event_type": "message_created",
		"webhook_event": {"from_account_id": 1, "room_id": 2, "message_id": 789, "body": "x"}
	}`)

	event, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if msg := event.(MessageEvent); msg.MessageID != "789" {
		t.Fatalf("MessageID = %q, want 789", msg.MessageID)
	}
}

func TestParseWebhookMemberAdded(t *testing.T) {
	body := []byte(`{
		"webhook_event_type": "room_member_added",
		"webhook_event": {"account_id": 55, "room_id": 2}
	}`)

	event, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	added, ok := event.(MemberAddedEvent)
	if !ok {
		t.Fatalf("expected MemberAddedEvent, got %T", event)
	}
	if added.RoomID != 2 || added.AccountID != 55 {
		t.Fatalf("unexpected event: %+v", added)
	}
}

func TestParseWebhookIgnoredType(t *testing.T) {
	body := []byte(`{"webhook_event_type": "mention_to_me", "webhook_event": {"room_id": 2}}`)
	event, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if event != nil {
		t.Fatalf("ignored type must yield nil event, got %T", event)
	}
}

func TestParseWebhookMissingRoom(t *testing.T) {
	body := []byte(`{"webhook_event_type": "message_created", "webhook_event": {"from_account_id": 1}}`)
	if _, err := ParseWebhook(body); err == nil {
		t.Fatalf("expected error for missing room_id")
	}
}

func TestParseWebhookMalformed(t *testing.T) {
	if _, err := ParseWebhook([]byte("not json")); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
