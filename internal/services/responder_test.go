package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/yungbote/schoolbot-backend/internal/config"
)

type responderFixture struct {
	ai           *fakeOpenAI
	convRepo     *fakeConversationRepo
	msgRepo      *fakeMessageRepo
	docRepo      *fakeDocumentRepo
	interactions *fakeInteractionLogRepo
	orchestrator ResponseOrchestrator
}

func newResponderFixture(t *testing.T, ai *fakeOpenAI) *responderFixture {
	t.Helper()
	log := testLogger(t)
	convRepo := newFakeConversationRepo()
	msgRepo := newFakeMessageRepo()
	docRepo := newFakeDocumentRepo()
	interactions := &fakeInteractionLogRepo{}

	conversation := NewConversationService(nil, log, convRepo, msgRepo)
	retriever := NewRetrieverService(nil, log, docRepo)

	var aiClient OpenAIClient
	if ai != nil {
		aiClient = ai
	}
	satisfaction := NewSatisfactionService(log, aiClient, config.DefaultTuning(), DefaultSatisfactionThreshold)

	orchestrator := NewResponseOrchestrator(nil, log, aiClient, conversation, retriever, satisfaction, interactions)
	return &responderFixture{
		ai:           ai,
		convRepo:     convRepo,
		msgRepo:      msgRepo,
		docRepo:      docRepo,
		interactions: interactions,
		orchestrator: orchestrator,
	}
}

func TestRespondSkipsNonQuestion(t *testing.T) {
	ai := &fakeOpenAI{}
	f := newResponderFixture(t, ai)

	answer, err := f.orchestrator.Respond(context.Background(), "course1", "user1", "", "こんにちは")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if answer != nil {
		t.Fatalf("expected nil answer for a greeting, got %+v", answer)
	}
	if ai.chatCalls != 0 || ai.embedCalls != 0 {
		t.Fatalf("no model calls expected for a non-question, got chat=%d embed=%d", ai.chatCalls, ai.embedCalls)
	}
	if len(f.convRepo.convs) != 0 {
		t.Fatalf("no conversation should be created for a non-question")
	}
	if len(f.interactions.entries) != 0 {
		t.Fatalf("no interaction should be logged for a non-question")
	}
}

func TestRespondAnswersAndPersists(t *testing.T) {
	ai := &fakeOpenAI{
		chatFn: func(messages []ChatMessage) (string, error) {
			return "提出はフォームから行えます。", nil
		},
	}
	f := newResponderFixture(t, ai)

	answer, err := f.orchestrator.Respond(context.Background(), "course1", "user1", "田中", "課題の提出方法を教えてください")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if answer == nil {
		t.Fatalf("expected an answer")
	}
	if answer.ResponseText != "提出はフォームから行えます。" {
		t.Fatalf("unexpected response %q", answer.ResponseText)
	}

	history, err := f.msgRepo.GetLastByConversation(context.Background(), nil, answer.ConversationID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected user+assistant turns persisted, got %d", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %s then %s", history[0].Role, history[1].Role)
	}

	if len(f.interactions.entries) != 1 {
		t.Fatalf("expected 1 interaction entry, got %d", len(f.interactions.entries))
	}
	entry := f.interactions.entries[0]
	if entry.CourseID != "course1" || entry.UserName != "田中" {
		t.Fatalf("unexpected interaction entry: %+v", entry)
	}
}

func TestRespondRepeatQuestionDowngrade(t *testing.T) {
	ai := &fakeOpenAI{} // default rubric scores 0.8
	f := newResponderFixture(t, ai)

	first, err := f.orchestrator.Respond(context.Background(), "course1", "user1", "", "予約の方法は？")
	if err != nil || first == nil {
		t.Fatalf("first Respond: %v %+v", err, first)
	}
	if first.Satisfaction.NeedsHumanReview {
		t.Fatalf("first ask must not be flagged")
	}

	second, err := f.orchestrator.Respond(context.Background(), "course1", "user1", "", "予約の方法は？")
	if err != nil || second == nil {
		t.Fatalf("second Respond: %v %+v", err, second)
	}

	wantScore := first.Satisfaction.Score - 0.3
	if wantScore < 0 {
		wantScore = 0
	}
	if math.Abs(second.Satisfaction.Score-wantScore) > 1e-9 {
		t.Fatalf("repeat score = %v, want %v", second.Satisfaction.Score, wantScore)
	}
	if !second.Satisfaction.NeedsHumanReview {
		t.Fatalf("repeat question must be flagged for review")
	}
	if second.Satisfaction.Reason != sameQuestionReason {
		t.Fatalf("reason = %q, want %q", second.Satisfaction.Reason, sameQuestionReason)
	}
	if !second.NeedsEscalation {
		t.Fatalf("flagged answer must escalate")
	}
}

func TestRespondRepeatDowngradeClampsAtZero(t *testing.T) {
	ai := &fakeOpenAI{
		jsonFn: func(system, user string) (map[string]any, error) {
			return map[string]any{"satisfaction_score": 0.1, "needs_human_review": false}, nil
		},
	}
	f := newResponderFixture(t, ai)

	if _, err := f.orchestrator.Respond(context.Background(), "course1", "user1", "", "予約の方法は？"); err != nil {
		t.Fatalf("first Respond: %v", err)
	}
	second, err := f.orchestrator.Respond(context.Background(), "course1", "user1", "", "予約の方法は？")
	if err != nil || second == nil {
		t.Fatalf("second Respond: %v", err)
	}
	if second.Satisfaction.Score != 0 {
		t.Fatalf("score must clamp at 0, got %v", second.Satisfaction.Score)
	}
	if second.Satisfaction.IsSatisfied {
		t.Fatalf("zero score cannot be satisfied")
	}
}

func TestRespondChatFailureFallsBack(t *testing.T) {
	ai := &fakeOpenAI{
		chatFn: func(messages []ChatMessage) (string, error) {
			return "", errors.New("provider down")
		},
	}
	f := newResponderFixture(t, ai)

	answer, err := f.orchestrator.Respond(context.Background(), "course1", "user1", "", "課題の提出方法を教えてください")
	if err != nil || answer == nil {
		t.Fatalf("Respond: %v %+v", err, answer)
	}
	if answer.ResponseText != fallbackAnswer {
		t.Fatalf("expected fallback text, got %q", answer.ResponseText)
	}
}

func TestRespondEmbedFailureStillAnswers(t *testing.T) {
	ai := &fakeOpenAI{
		embedFn: func(inputs []string) ([][]float32, error) {
			return nil, errors.New("embedding down")
		},
		chatFn: func(messages []ChatMessage) (string, error) {
			for _, m := range messages {
				if m.Role == "system" && strings.Contains(m.Content, "参考資料") {
					return "", errors.New("context should be empty")
				}
			}
			return "資料なしでの回答です。", nil
		},
	}
	f := newResponderFixture(t, ai)

	answer, err := f.orchestrator.Respond(context.Background(), "course1", "user1", "", "課題の提出方法を教えてください")
	if err != nil || answer == nil {
		t.Fatalf("Respond: %v %+v", err, answer)
	}
	if answer.ResponseText != "資料なしでの回答です。" {
		t.Fatalf("unexpected response %q", answer.ResponseText)
	}
}

func TestRespondIncludesRetrievedContext(t *testing.T) {
	var sawContext bool
	ai := &fakeOpenAI{
		chatFn: func(messages []ChatMessage) (string, error) {
			if strings.Contains(messages[0].Content, "提出期限は金曜日") {
				sawContext = true
			}
			return "回答です。", nil
		},
	}
	f := newResponderFixture(t, ai)
	f.docRepo.chunks["course1"] = append(f.docRepo.chunks["course1"],
		chunkWithEmbedding(t, "course1", 0, "提出期限は金曜日です", []float32{1, 0, 0}))

	if _, err := f.orchestrator.Respond(context.Background(), "course1", "user1", "", "課題の提出方法を教えてください"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !sawContext {
		t.Fatalf("retrieved chunk text must appear in the system prompt")
	}
}
