package services

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	"gorm.io/gorm"

	"github.com/yungbote/schoolbot-backend/internal/logger"
	"github.com/yungbote/schoolbot-backend/internal/repos"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

const (
	// DefaultTopK is how many chunks a search returns at most.
	DefaultTopK = 5
	// DefaultSimilarityThreshold filters out weak matches; results must score
	// strictly above it.
	DefaultSimilarityThreshold = 0.7
)

type ScoredChunk struct {
	Chunk      *types.DocumentChunk `json:"chunk"`
	Similarity float64              `json:"similarity"`
}

// RetrieverService ranks every chunk of a course against a query embedding.
// Retrieval never fails a response: storage errors and missing collections
// both yield an empty result.
type RetrieverService interface {
	Search(ctx context.Context, courseID string, queryEmbedding []float32, topK int, threshold float64) []ScoredChunk
}

type retrieverService struct {
	db           *gorm.DB
	log          *logger.Logger
	documentRepo repos.DocumentRepo
}

func NewRetrieverService(db *gorm.DB, baseLog *logger.Logger, documentRepo repos.DocumentRepo) RetrieverService {
	serviceLog := baseLog.With("service", "RetrieverService")
	return &retrieverService{db: db, log: serviceLog, documentRepo: documentRepo}
}

func (s *retrieverService) Search(ctx context.Context, courseID string, queryEmbedding []float32, topK int, threshold float64) []ScoredChunk {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(queryEmbedding) == 0 {
		return nil
	}

	chunks, err := s.documentRepo.GetChunksByCourse(ctx, nil, courseID)
	if err != nil {
		s.log.Warn("Chunk load failed, degrading to empty context", "course_id", courseID, "error", err)
		return nil
	}
	if len(chunks) == 0 {
		return nil
	}

	scored := make([]ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		var emb []float32
		if err := json.Unmarshal(chunk.Embedding, &emb); err != nil {
			s.log.Warn("Skipping chunk with undecodable embedding", "chunk_id", chunk.ID, "error", err)
			continue
		}
		sim := Cosine(queryEmbedding, emb)
		if sim <= threshold {
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Similarity: sim})
	}

	// Global rerank across all of the course's collections; ties keep
	// original chunk order.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Chunk.Ordinal < scored[j].Chunk.Ordinal
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// Cosine is the normalized dot product of two embedding vectors. Mismatched
// or zero-norm vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < len(a); i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
