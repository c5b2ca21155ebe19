package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/schoolbot-backend/internal/logger"
)

// Tuning holds the analyzer keyword sets that operators adjust per deployment.
// Everything has a built-in default so the file is optional.
type Tuning struct {
	// NonQuestionPrefixes mark greetings, thanks and acknowledgements.
	// A message starting with one of these is never treated as a question.
	NonQuestionPrefixes []string `yaml:"non_question_prefixes"`
	// NonQuestionExact are matched against the whole trimmed message.
	NonQuestionExact []string `yaml:"non_question_exact"`
	// QuestionIndicators are substrings that force question classification.
	QuestionIndicators []string `yaml:"question_indicators"`
	// DissatisfactionKeywords drive the rule-based fallback scorer (negative band).
	DissatisfactionKeywords []string `yaml:"dissatisfaction_keywords"`
	// SatisfactionKeywords drive the rule-based fallback scorer (positive band).
	SatisfactionKeywords []string `yaml:"satisfaction_keywords"`
}

func DefaultTuning() Tuning {
	return Tuning{
		NonQuestionPrefixes: []string{
			"ありがとう", "感謝", "thx", "thanks", "thank you",
			"どうも", "おつかれ", "お疲れ",
			"こんにちは", "こんばんは", "おはよう", "hello", "hi",
			"了解", "わかりました", "ok", "okay",
		},
		NonQuestionExact: []string{"はい", "いいえ", "yes", "no"},
		QuestionIndicators: []string{
			"?", "？", "か", "ですか", "でしょうか",
			"どう", "なぜ", "なに", "何",
			"what", "how", "why", "when", "where",
		},
		DissatisfactionKeywords: []string{
			"わかりません", "わからない", "理解できない", "意味不明",
			"どういうこと", "もう少し詳しく", "説明不足",
			"違う", "間違ってる", "違います", "違うよ",
			"怒", "イライラ", "不満", "ダメ", "使えない",
		},
		SatisfactionKeywords: []string{
			"ありがとう", "感謝", "助かりました", "理解できました",
			"わかりました", "なるほど", "参考になりました",
		},
	}
}

// LoadTuning reads the optional YAML tuning file. A missing path (or empty
// env var) returns defaults; a present but unreadable file is an error so a
// typo'd path does not silently fall back.
func LoadTuning(path string, log *logger.Logger) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning file %s: %w", path, err)
	}
	var overrides Tuning
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return t, fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	if len(overrides.NonQuestionPrefixes) > 0 {
		t.NonQuestionPrefixes = overrides.NonQuestionPrefixes
	}
	if len(overrides.NonQuestionExact) > 0 {
		t.NonQuestionExact = overrides.NonQuestionExact
	}
	if len(overrides.QuestionIndicators) > 0 {
		t.QuestionIndicators = overrides.QuestionIndicators
	}
	if len(overrides.DissatisfactionKeywords) > 0 {
		t.DissatisfactionKeywords = overrides.DissatisfactionKeywords
	}
	if len(overrides.SatisfactionKeywords) > 0 {
		t.SatisfactionKeywords = overrides.SatisfactionKeywords
	}
	if log != nil {
		log.Info("Loaded analyzer tuning overrides", "path", path)
	}
	return t, nil
}
