package services

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/schoolbot-backend/internal/types"
)

func chunkWithEmbedding(t *testing.T, courseID string, ordinal int, text string, emb []float32) *types.DocumentChunk {
	t.Helper()
	raw, err := json.Marshal(emb)
	if err != nil {
		t.Fatalf("marshal embedding: %v", err)
	}
	return &types.DocumentChunk{
		ID:        uuid.New(),
		CourseID:  courseID,
		SourceID:  "doc1",
		Ordinal:   ordinal,
		Text:      text,
		Embedding: datatypes.JSON(raw),
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched length", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchThresholdAndOrder(t *testing.T) {
	log := testLogger(t)
	repo := newFakeDocumentRepo()
	repo.chunks["course1"] = []*types.DocumentChunk{
		chunkWithEmbedding(t, "course1", 0, "exact match", []float32{1, 0, 0}),
		chunkWithEmbedding(t, "course1", 1, "close match", []float32{0.9, 0.1, 0}),
		chunkWithEmbedding(t, "course1", 2, "weak match", []float32{0.1, 0.9, 0}),
		chunkWithEmbedding(t, "course1", 3, "orthogonal", []float32{0, 0, 1}),
	}
	svc := NewRetrieverService(nil, log, repo)

	results := svc.Search(context.Background(), "course1", []float32{1, 0, 0}, DefaultTopK, DefaultSimilarityThreshold)
	if len(results) != 2 {
		t.Fatalf("expected 2 results above threshold, got %d", len(results))
	}
	for _, r := range results {
		if r.Similarity <= DefaultSimilarityThreshold {
			t.Fatalf("result %q at %v is not strictly above threshold", r.Chunk.Text, r.Similarity)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Fatalf("results not sorted by similarity: %v before %v", results[i-1].Similarity, results[i].Similarity)
		}
	}
	if results[0].Chunk.Text != "exact match" {
		t.Fatalf("expected best match first, got %q", results[0].Chunk.Text)
	}
}

func TestSearchTopKCap(t *testing.T) {
	log := testLogger(t)
	repo := newFakeDocumentRepo()
	for i := 0; i < 10; i++ {
		repo.chunks["course1"] = append(repo.chunks["course1"],
			chunkWithEmbedding(t, "course1", i, "chunk", []float32{1, 0, 0}))
	}
	svc := NewRetrieverService(nil, log, repo)

	results := svc.Search(context.Background(), "course1", []float32{1, 0, 0}, 3, DefaultSimilarityThreshold)
	if len(results) != 3 {
		t.Fatalf("expected topK=3 results, got %d", len(results))
	}
	// Equal scores keep chunk order.
	for i, r := range results {
		if r.Chunk.Ordinal != i {
			t.Fatalf("tie-break lost chunk order: position %d has ordinal %d", i, r.Chunk.Ordinal)
		}
	}
}

func TestSearchEmptyCourse(t *testing.T) {
	log := testLogger(t)
	svc := NewRetrieverService(nil, log, newFakeDocumentRepo())

	if results := svc.Search(context.Background(), "nothing", []float32{1, 0, 0}, DefaultTopK, DefaultSimilarityThreshold); len(results) != 0 {
		t.Fatalf("expected empty result for unknown course, got %d", len(results))
	}
}

func TestSearchSkipsUndecodableEmbedding(t *testing.T) {
	log := testLogger(t)
	repo := newFakeDocumentRepo()
	bad := chunkWithEmbedding(t, "course1", 0, "broken", []float32{1})
	bad.Embedding = datatypes.JSON([]byte("not json"))
	repo.chunks["course1"] = []*types.DocumentChunk{
		bad,
		chunkWithEmbedding(t, "course1", 1, "good", []float32{1, 0, 0}),
	}
	svc := NewRetrieverService(nil, log, repo)

	results := svc.Search(context.Background(), "course1", []float32{1, 0, 0}, DefaultTopK, DefaultSimilarityThreshold)
	if len(results) != 1 || results[0].Chunk.Text != "good" {
		t.Fatalf("expected only the decodable chunk, got %+v", results)
	}
}
