package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/schoolbot-backend/internal/repos"
	"github.com/yungbote/schoolbot-backend/internal/services"
)

type DocumentHandler struct {
	indexer      services.DocumentIndexerService
	documentRepo repos.DocumentRepo
}

func NewDocumentHandler(indexer services.DocumentIndexerService, documentRepo repos.DocumentRepo) *DocumentHandler {
	return &DocumentHandler{indexer: indexer, documentRepo: documentRepo}
}

// Index ingests extracted document text for a course. Re-posting the same
// source_id replaces its collection atomically.
func (dh *DocumentHandler) Index(c *gin.Context) {
	var req struct {
		SourceID   string `json:"source_id"`
		SourceType string `json:"source_type"`
		Text       string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	result, err := dh.indexer.Index(c.Request.Context(), c.Param("courseID"), req.SourceID, req.SourceType, req.Text)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"chunk_count": result.ChunkCount,
		"text_length": result.TextLength,
	})
}

func (dh *DocumentHandler) ListCollections(c *gin.Context) {
	collections, err := dh.documentRepo.GetCollectionsByCourse(c.Request.Context(), nil, c.Param("courseID"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"collections": collections})
}
