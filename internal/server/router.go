package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/schoolbot-backend/internal/handlers"
	"github.com/yungbote/schoolbot-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler         *handlers.AuthHandler
	AuthMiddleware      *middleware.AuthMiddleware
	CourseHandler       *handlers.CourseHandler
	DocumentHandler     *handlers.DocumentHandler
	ConversationHandler *handlers.ConversationHandler
	WebhookHandler      *handlers.WebhookHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Line-Signature"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/login", cfg.AuthHandler.Login)
	// Platform callbacks authenticate themselves (LINE by signature, Chatwork
	// by URL secrecy), not by admin JWT.
	router.POST("/webhook/chatwork/:courseID", cfg.WebhookHandler.Chatwork)
	router.POST("/webhook/line/:courseID", cfg.WebhookHandler.Line)

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	// Courses
	api.POST("/courses", cfg.CourseHandler.Register)
	api.GET("/courses", cfg.CourseHandler.List)
	api.GET("/courses/:courseID", cfg.CourseHandler.Get)
	api.PUT("/courses/:courseID/platform", cfg.CourseHandler.UpdatePlatform)
	api.PUT("/courses/:courseID/manager", cfg.CourseHandler.UpdateManager)
	// Documents
	api.POST("/courses/:courseID/documents", cfg.DocumentHandler.Index)
	api.GET("/courses/:courseID/documents", cfg.DocumentHandler.ListCollections)
	// Conversations
	api.GET("/conversations/:conversationID", cfg.ConversationHandler.Get)
	api.GET("/interactions", cfg.ConversationHandler.ListInteractions)

	return router
}
