package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/schoolbot-backend/internal/config"
	"github.com/yungbote/schoolbot-backend/internal/logger"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

const (
	// DefaultSatisfactionThreshold separates satisfied from dissatisfied
	// scores: is_satisfied means score strictly above it.
	DefaultSatisfactionThreshold = 0.3

	// sameQuestionOverlap is the word-set overlap ratio above which two
	// messages count as the same question.
	sameQuestionOverlap = 0.7
	// sameQuestionLookback is how many previous user turns are compared.
	sameQuestionLookback = 3
)

// SatisfactionAssessment is derived per answered turn; it is not persisted on
// its own but attached to the interaction log.
type SatisfactionAssessment struct {
	Score            float64 `json:"satisfaction_score"`
	IsSatisfied      bool    `json:"is_satisfied"`
	Reason           string  `json:"reason"`
	NeedsHumanReview bool    `json:"needs_human_review"`
}

type SatisfactionService interface {
	// IsQuestion filters out greetings, acknowledgements and one-word
	// reactions before any LLM work happens.
	IsQuestion(text string) bool
	// AnalyzeSatisfaction scores the user's latest turn via an LLM rubric,
	// falling back to keyword rules when the provider is unavailable or
	// returns malformed JSON.
	AnalyzeSatisfaction(ctx context.Context, userMessage, botResponse string, history []*types.Message) SatisfactionAssessment
	// CheckSameQuestion reports whether the current message repeats one of
	// the user's recent questions.
	CheckSameQuestion(currentMessage string, history []*types.Message) bool
	Threshold() float64
}

type satisfactionService struct {
	log       *logger.Logger
	ai        OpenAIClient
	tuning    config.Tuning
	threshold float64
}

// NewSatisfactionService accepts a nil ai client; analysis then always uses
// the rule-based scorer.
func NewSatisfactionService(baseLog *logger.Logger, ai OpenAIClient, tuning config.Tuning, threshold float64) SatisfactionService {
	serviceLog := baseLog.With("service", "SatisfactionService")
	if threshold <= 0 {
		threshold = DefaultSatisfactionThreshold
	}
	return &satisfactionService{
		log:       serviceLog,
		ai:        ai,
		tuning:    tuning,
		threshold: threshold,
	}
}

func (s *satisfactionService) Threshold() float64 {
	return s.threshold
}

func (s *satisfactionService) IsQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	lowered := strings.ToLower(trimmed)

	for _, exact := range s.tuning.NonQuestionExact {
		if lowered == strings.ToLower(exact) {
			return false
		}
	}
	for _, prefix := range s.tuning.NonQuestionPrefixes {
		if strings.HasPrefix(lowered, strings.ToLower(prefix)) {
			return false
		}
	}

	// Question markers win over the length cutoff so "何？" still counts.
	for _, indicator := range s.tuning.QuestionIndicators {
		if strings.Contains(trimmed, indicator) || strings.Contains(lowered, indicator) {
			return true
		}
	}

	if utf8.RuneCountInString(trimmed) <= 3 {
		return false
	}
	return true
}

const satisfactionSystemPrompt = "あなたはユーザーの満足度を分析する専門家です。JSON形式で正確に返答してください。"

func satisfactionRubricPrompt(userMessage, botResponse string) string {
	return fmt.Sprintf(`ユーザーのメッセージとボットの回答を分析し、ユーザーの満足度を0.0（非常に不満）から1.0（非常に満足）のスコアで評価してください。

ユーザーのメッセージ: %s
ボットの回答: %s

以下のパターンに注意してください：
- 「わかりません」「わからない」「理解できない」→ 不満（0.0-0.3）
- 「どういうこと？」「もう少し詳しく」→ やや不満（0.3-0.5）
- 「ありがとう」「助かりました」→ 満足（0.7-1.0）
- 同じ内容について再度質問している → 不満（0.0-0.4）
- 怒りや不満の表現がある → 不満（0.0-0.3）
- 次の質問に移っている → 満足（0.6-1.0）

JSON形式で返答してください：
{
    "satisfaction_score": 0.0-1.0,
    "is_satisfied": true/false,
    "reason": "判定理由",
    "needs_human_review": true/false
}`, userMessage, botResponse)
}

func (s *satisfactionService) AnalyzeSatisfaction(ctx context.Context, userMessage, botResponse string, history []*types.Message) SatisfactionAssessment {
	if s.ai == nil {
		return s.ruleBasedAnalysis(userMessage)
	}

	obj, err := s.ai.GenerateJSON(ctx, satisfactionSystemPrompt, satisfactionRubricPrompt(userMessage, botResponse))
	if err != nil {
		s.log.Warn("LLM satisfaction analysis failed, using rule-based fallback", "error", err)
		return s.ruleBasedAnalysis(userMessage)
	}

	score, ok := obj["satisfaction_score"].(float64)
	if !ok {
		s.log.Warn("LLM satisfaction result missing score, using rule-based fallback")
		return s.ruleBasedAnalysis(userMessage)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	isSatisfied := score > s.threshold
	reason, _ := obj["reason"].(string)
	needsReview, ok := obj["needs_human_review"].(bool)
	if !ok {
		needsReview = !isSatisfied
	}

	return SatisfactionAssessment{
		Score:            score,
		IsSatisfied:      isSatisfied,
		Reason:           reason,
		NeedsHumanReview: needsReview,
	}
}

func (s *satisfactionService) ruleBasedAnalysis(userMessage string) SatisfactionAssessment {
	lowered := strings.ToLower(userMessage)

	for _, keyword := range s.tuning.DissatisfactionKeywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return SatisfactionAssessment{
				Score:            0.2,
				IsSatisfied:      false,
				Reason:           "不満の表現を検出: " + keyword,
				NeedsHumanReview: true,
			}
		}
	}
	for _, keyword := range s.tuning.SatisfactionKeywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return SatisfactionAssessment{
				Score:            0.8,
				IsSatisfied:      true,
				Reason:           "満足の表現を検出: " + keyword,
				NeedsHumanReview: false,
			}
		}
	}
	return SatisfactionAssessment{
		Score:            0.6,
		IsSatisfied:      true,
		Reason:           "特に問題なし",
		NeedsHumanReview: false,
	}
}

func (s *satisfactionService) CheckSameQuestion(currentMessage string, history []*types.Message) bool {
	currentWords := wordSet(currentMessage)
	if len(currentWords) == 0 {
		return false
	}

	var userTurns []*types.Message
	for _, msg := range history {
		if msg.Role == types.RoleUser {
			userTurns = append(userTurns, msg)
		}
	}
	if len(userTurns) > sameQuestionLookback {
		userTurns = userTurns[len(userTurns)-sameQuestionLookback:]
	}

	for _, msg := range userTurns {
		prevWords := wordSet(msg.Content)
		if len(prevWords) == 0 {
			continue
		}
		common := 0
		for w := range currentWords {
			if _, found := prevWords[w]; found {
				common++
			}
		}
		maxLen := len(currentWords)
		if len(prevWords) > maxLen {
			maxLen = len(prevWords)
		}
		if float64(common)/float64(maxLen) > sameQuestionOverlap {
			return true
		}
	}
	return false
}

func wordSet(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		out[w] = struct{}{}
	}
	return out
}
