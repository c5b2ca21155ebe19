package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/schoolbot-backend/internal/repos"
	"github.com/yungbote/schoolbot-backend/internal/services"
)

type ConversationHandler struct {
	conversationService services.ConversationService
	interactionRepo     repos.InteractionLogRepo
}

func NewConversationHandler(conversationService services.ConversationService, interactionRepo repos.InteractionLogRepo) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
		interactionRepo:     interactionRepo,
	}
}

func (ch *ConversationHandler) Get(c *gin.Context) {
	conv, msgs, err := ch.conversationService.Get(c.Request.Context(), c.Param("conversationID"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"conversation": conv, "messages": msgs})
}

// ListInteractions returns recent answered turns with their satisfaction
// assessments, newest first. courseID "" means all courses.
func (ch *ConversationHandler) ListInteractions(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := ch.interactionRepo.GetByCourse(c.Request.Context(), nil, c.Query("course_id"), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"interactions": entries})
}
