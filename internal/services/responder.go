package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/schoolbot-backend/internal/logger"
	"github.com/yungbote/schoolbot-backend/internal/repos"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

const (
	// promptHistoryTurns is how many trailing conversation turns the answer
	// prompt carries.
	promptHistoryTurns = 10
	// promptContextChunks caps how many retrieved chunks go into the prompt,
	// even when retrieval returned more.
	promptContextChunks = 3

	// sameQuestionPenalty is subtracted from the satisfaction score when the
	// user repeats a recent question.
	sameQuestionPenalty = 0.3
	sameQuestionReason  = "同じ内容について再度質問されています"

	answerTemperature = 0.7
	answerMaxTokens   = 1000

	fallbackAnswer = "申し訳ございません。現在回答を生成できません。しばらくしてからもう一度お試しください。"
)

// Answer is the orchestrator's result for one inbound question.
type Answer struct {
	ConversationID  string
	ResponseText    string
	Satisfaction    SatisfactionAssessment
	NeedsEscalation bool
}

// ResponseOrchestrator runs the full pipeline for one inbound message:
// question gate, conversation resolution, retrieval, generation, satisfaction
// scoring, persistence and the escalation decision.
type ResponseOrchestrator interface {
	// Respond returns (nil, nil) when the message is not a question; nothing
	// is persisted then and no model call happens.
	Respond(ctx context.Context, courseID, userID, userName, messageText string) (*Answer, error)
}

type responseOrchestrator struct {
	db           *gorm.DB
	log          *logger.Logger
	ai           OpenAIClient
	conversation ConversationService
	retriever    RetrieverService
	satisfaction SatisfactionService
	interactions repos.InteractionLogRepo
}

// NewResponseOrchestrator accepts a nil ai client; every answer is then the
// fallback apology, but the conversation and satisfaction bookkeeping still
// run so history stays coherent once the provider comes back.
func NewResponseOrchestrator(
	db *gorm.DB,
	baseLog *logger.Logger,
	ai OpenAIClient,
	conversation ConversationService,
	retriever RetrieverService,
	satisfaction SatisfactionService,
	interactions repos.InteractionLogRepo,
) ResponseOrchestrator {
	return &responseOrchestrator{
		db:           db,
		log:          baseLog.With("service", "ResponseOrchestrator"),
		ai:           ai,
		conversation: conversation,
		retriever:    retriever,
		satisfaction: satisfaction,
		interactions: interactions,
	}
}

func (o *responseOrchestrator) Respond(ctx context.Context, courseID, userID, userName, messageText string) (*Answer, error) {
	messageText = strings.TrimSpace(messageText)
	if messageText == "" {
		return nil, nil
	}

	// The question gate runs before any conversation state is touched, so
	// greetings and acknowledgements never open sessions or reach the model.
	if !o.satisfaction.IsQuestion(messageText) {
		o.log.Debug("Skipping non-question message", "course_id", courseID, "user_id", userID)
		return nil, nil
	}

	conversationID, err := o.conversation.GetOrCreate(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}

	history, err := o.conversation.History(ctx, conversationID, DefaultHistoryLimit)
	if err != nil {
		o.log.Warn("History load failed, answering without history", "conversation_id", conversationID, "error", err)
		history = nil
	}

	contextChunks := o.retrieve(ctx, courseID, messageText)
	responseText := o.generate(ctx, messageText, history, contextChunks)

	assessment := o.satisfaction.AnalyzeSatisfaction(ctx, messageText, responseText, history)
	if o.satisfaction.CheckSameQuestion(messageText, history) {
		assessment.Score -= sameQuestionPenalty
		if assessment.Score < 0 {
			assessment.Score = 0
		}
		assessment.IsSatisfied = assessment.Score > o.satisfaction.Threshold()
		assessment.NeedsHumanReview = true
		assessment.Reason = sameQuestionReason
		o.log.Info("Repeat question detected", "conversation_id", conversationID, "score", assessment.Score)
	}

	if err := o.conversation.Append(ctx, conversationID, types.RoleUser, messageText); err != nil {
		o.log.Error("Failed to persist user turn", "conversation_id", conversationID, "error", err)
	}
	if err := o.conversation.Append(ctx, conversationID, types.RoleAssistant, responseText); err != nil {
		o.log.Error("Failed to persist assistant turn", "conversation_id", conversationID, "error", err)
	}

	o.recordInteraction(ctx, courseID, userID, userName, conversationID, messageText, responseText, assessment)

	return &Answer{
		ConversationID:  conversationID,
		ResponseText:    responseText,
		Satisfaction:    assessment,
		NeedsEscalation: assessment.NeedsHumanReview,
	}, nil
}

// retrieve embeds the question and ranks the course's chunks. Any failure
// degrades to an empty context rather than blocking the answer.
func (o *responseOrchestrator) retrieve(ctx context.Context, courseID, messageText string) []ScoredChunk {
	if o.ai == nil {
		return nil
	}
	embeddings, err := o.ai.Embed(ctx, []string{messageText})
	if err != nil || len(embeddings) == 0 {
		o.log.Warn("Query embedding failed, answering without document context", "course_id", courseID, "error", err)
		return nil
	}
	return o.retriever.Search(ctx, courseID, embeddings[0], DefaultTopK, DefaultSimilarityThreshold)
}

const answerSystemPrompt = `あなたはオンラインスクールのサポートアシスタントです。
受講生からの質問に、提供された教材の内容に基づいて丁寧に日本語で回答してください。
教材に該当する情報がない場合は、その旨を正直に伝え、運営への問い合わせを案内してください。
回答は簡潔に、要点をまとめてください。`

func (o *responseOrchestrator) generate(ctx context.Context, messageText string, history []*types.Message, contextChunks []ScoredChunk) string {
	if o.ai == nil {
		return fallbackAnswer
	}

	system := answerSystemPrompt
	if len(contextChunks) > 0 {
		var b strings.Builder
		b.WriteString(system)
		b.WriteString("\n\n参考資料:\n")
		limit := len(contextChunks)
		if limit > promptContextChunks {
			limit = promptContextChunks
		}
		for i := 0; i < limit; i++ {
			fmt.Fprintf(&b, "---\n%s\n", contextChunks[i].Chunk.Text)
		}
		system = b.String()
	}

	messages := []ChatMessage{{Role: "system", Content: system}}
	turns := history
	if len(turns) > promptHistoryTurns {
		turns = turns[len(turns)-promptHistoryTurns:]
	}
	for _, msg := range turns {
		messages = append(messages, ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: messageText})

	text, err := o.ai.ChatComplete(ctx, messages, answerTemperature, answerMaxTokens)
	if err != nil {
		o.log.Error("Chat completion failed, returning fallback answer", "error", err)
		return fallbackAnswer
	}
	return strings.TrimSpace(text)
}

func (o *responseOrchestrator) recordInteraction(ctx context.Context, courseID, userID, userName, conversationID, question, answer string, assessment SatisfactionAssessment) {
	entry := &types.InteractionLog{
		ID:                uuid.New(),
		CourseID:          courseID,
		UserID:            userID,
		UserName:          userName,
		Question:          question,
		Answer:            answer,
		SatisfactionScore: assessment.Score,
		IsSatisfied:       assessment.IsSatisfied,
		Reason:            assessment.Reason,
		NeedsHumanReview:  assessment.NeedsHumanReview,
		ConversationID:    conversationID,
		CreatedAt:         timeNow(),
	}
	if _, err := o.interactions.Create(ctx, nil, entry); err != nil {
		o.log.Error("Failed to record interaction", "course_id", courseID, "error", err)
	}
}

// timeNow is swapped out in tests.
var timeNow = time.Now

// WelcomeMessage greets a user who just joined a course's chat.
func WelcomeMessage(courseName string) string {
	if courseName == "" {
		courseName = "コース"
	}
	return fmt.Sprintf(`%sへようこそ！🎉

このチャットでは、コース内容についての質問にボットが自動で回答します。
わからないことがあれば、いつでも気軽に質問してください。

例:
・課題の提出方法を教えてください
・次回の講義はいつですか？`, courseName)
}
