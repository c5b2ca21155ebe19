package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/schoolbot-backend/internal/services"
)

type CourseHandler struct {
	courseService services.CourseService
}

func NewCourseHandler(courseService services.CourseService) *CourseHandler {
	return &CourseHandler{courseService: courseService}
}

func (ch *CourseHandler) Register(c *gin.Context) {
	var req struct {
		CourseID       string `json:"course_id"`
		CourseName     string `json:"course_name"`
		Platform       string `json:"platform"`
		ManagerSlackID string `json:"manager_slack_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	course, err := ch.courseService.Register(c.Request.Context(), req.CourseID, req.CourseName, req.Platform, req.ManagerSlackID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, course)
}

func (ch *CourseHandler) List(c *gin.Context) {
	courses, err := ch.courseService.List(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"courses": courses})
}

func (ch *CourseHandler) Get(c *gin.Context) {
	course, err := ch.courseService.Get(c.Request.Context(), c.Param("courseID"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, course)
}

func (ch *CourseHandler) UpdatePlatform(c *gin.Context) {
	var req struct {
		Platform string `json:"platform"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := ch.courseService.UpdatePlatform(c.Request.Context(), c.Param("courseID"), req.Platform); err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

func (ch *CourseHandler) UpdateManager(c *gin.Context) {
	var req struct {
		ManagerSlackID string `json:"manager_slack_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := ch.courseService.UpdateManagerSlackID(c.Request.Context(), c.Param("courseID"), req.ManagerSlackID); err != nil {
		respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}
