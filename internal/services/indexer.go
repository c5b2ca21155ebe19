package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/schoolbot-backend/internal/logger"
	apperr "github.com/yungbote/schoolbot-backend/internal/pkg/errors"
	"github.com/yungbote/schoolbot-backend/internal/repos"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

const (
	// DefaultChunkSize is the character budget per chunk (word runes + one
	// separator each).
	DefaultChunkSize = 1000
	// DefaultOverlapWords is how many trailing words of a closed chunk seed
	// the next one. The overlap is counted in words, not characters.
	DefaultOverlapWords = 200

	embedBatchSize        = 100
	embedBatchConcurrency = 4
)

type IndexResult struct {
	ChunkCount int `json:"chunk_count"`
	TextLength int `json:"text_length"`
}

// DocumentIndexerService turns extracted document text into a persisted
// chunk+embedding collection. Raw extraction (PDF parsing etc.) happens
// upstream; this service only sees text.
type DocumentIndexerService interface {
	Index(ctx context.Context, courseID, sourceID, sourceType, text string) (*IndexResult, error)
}

type documentIndexerService struct {
	db           *gorm.DB
	log          *logger.Logger
	documentRepo repos.DocumentRepo
	ai           OpenAIClient
	chunkSize    int
	overlapWords int
}

func NewDocumentIndexerService(db *gorm.DB, baseLog *logger.Logger, documentRepo repos.DocumentRepo, ai OpenAIClient) DocumentIndexerService {
	serviceLog := baseLog.With("service", "DocumentIndexerService")
	return &documentIndexerService{
		db:           db,
		log:          serviceLog,
		documentRepo: documentRepo,
		ai:           ai,
		chunkSize:    DefaultChunkSize,
		overlapWords: DefaultOverlapWords,
	}
}

func (s *documentIndexerService) Index(ctx context.Context, courseID, sourceID, sourceType, text string) (*IndexResult, error) {
	if courseID == "" || sourceID == "" {
		return nil, fmt.Errorf("%w: course id and source id required", apperr.ErrInvalidArgument)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: extracted text is empty", apperr.ErrIndexing)
	}
	if s.ai == nil {
		return nil, fmt.Errorf("%w: embedding provider unavailable", apperr.ErrIndexing)
	}

	chunks := SplitTextIntoChunks(trimmed, s.chunkSize, s.overlapWords)

	embeddings, err := s.embedAll(ctx, chunks)
	if err != nil {
		s.log.Error("Embedding failed, collection left unchanged",
			"course_id", courseID, "source_id", sourceID, "error", err)
		return nil, fmt.Errorf("%w: %v", apperr.ErrIndexing, err)
	}

	textLength := utf8.RuneCountInString(trimmed)
	meta, err := json.Marshal(types.CollectionMetadata{
		ChunkCount:      len(chunks),
		TotalTextLength: textLength,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrIndexing, err)
	}

	now := time.Now()
	collection := &types.DocumentCollection{
		ID:         uuid.New(),
		CourseID:   courseID,
		SourceID:   sourceID,
		SourceType: sourceType,
		Metadata:   datatypes.JSON(meta),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	rows := make([]*types.DocumentChunk, 0, len(chunks))
	for i, chunkText := range chunks {
		raw, mErr := json.Marshal(embeddings[i])
		if mErr != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrIndexing, mErr)
		}
		rows = append(rows, &types.DocumentChunk{
			ID:           uuid.New(),
			CollectionID: collection.ID,
			CourseID:     courseID,
			SourceID:     sourceID,
			SourceType:   sourceType,
			Ordinal:      i,
			Text:         chunkText,
			Embedding:    datatypes.JSON(raw),
			CreatedAt:    now,
		})
	}

	if err := s.documentRepo.ReplaceCollection(ctx, nil, collection, rows); err != nil {
		return nil, fmt.Errorf("%w: persist collection: %v", apperr.ErrIndexing, err)
	}

	s.log.Info("Indexed document",
		"course_id", courseID,
		"source_id", sourceID,
		"source_type", sourceType,
		"chunk_count", len(chunks),
		"text_length", textLength,
	)
	return &IndexResult{ChunkCount: len(chunks), TextLength: textLength}, nil
}

// embedAll embeds chunks in batches of embedBatchSize. Any batch failure
// aborts the whole run; nothing is persisted on error.
func (s *documentIndexerService) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	out := make([][]float32, len(chunks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedBatchConcurrency)

	for start := 0; start < len(chunks); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			vecs, err := s.ai.Embed(gctx, chunks[start:end])
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
			}
			mu.Lock()
			copy(out[start:end], vecs)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SplitTextIntoChunks accumulates whitespace-separated words until adding the
// next one would push the chunk past chunkSize characters (each word counts
// its rune length plus one separator). The closed chunk's trailing
// overlapWords words seed the next chunk. Non-empty input always yields at
// least one chunk.
func SplitTextIntoChunks(text string, chunkSize, overlapWords int) []string {
	words := strings.Fields(text)
	var chunks []string
	var current []string
	currentLength := 0

	for _, word := range words {
		wordLength := utf8.RuneCountInString(word) + 1
		if currentLength+wordLength > chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))

			seed := current
			if len(current) > overlapWords {
				seed = current[len(current)-overlapWords:]
			}
			next := make([]string, 0, len(seed)+1)
			next = append(next, seed...)
			next = append(next, word)
			current = next

			currentLength = 0
			for _, w := range current {
				currentLength += utf8.RuneCountInString(w) + 1
			}
		} else {
			current = append(current, word)
			currentLength += wordLength
		}
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
