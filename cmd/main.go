package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/schoolbot-backend/internal/clients/chatwork"
	"github.com/yungbote/schoolbot-backend/internal/clients/line"
	"github.com/yungbote/schoolbot-backend/internal/clients/redis"
	"github.com/yungbote/schoolbot-backend/internal/config"
	"github.com/yungbote/schoolbot-backend/internal/db"
	"github.com/yungbote/schoolbot-backend/internal/handlers"
	"github.com/yungbote/schoolbot-backend/internal/logger"
	"github.com/yungbote/schoolbot-backend/internal/middleware"
	"github.com/yungbote/schoolbot-backend/internal/repos"
	"github.com/yungbote/schoolbot-backend/internal/server"
	"github.com/yungbote/schoolbot-backend/internal/services"
	"github.com/yungbote/schoolbot-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	tuningPath := utils.GetEnv("TUNING_CONFIG_PATH", "", log)
	satisfactionThreshold := utils.GetEnvAsFloat("SATISFACTION_THRESHOLD", services.DefaultSatisfactionThreshold, log)
	pollIntervalSec := utils.GetEnvAsInt("POLL_INTERVAL_SECONDS", 30, log)
	dedupMaxPerCourse := utils.GetEnvAsInt("DEDUP_MAX_PER_COURSE", services.DefaultMaxProcessedPerCourse, log)

	tuning, err := config.LoadTuning(tuningPath, log)
	if err != nil {
		log.Error("Could not load tuning config", "error", err)
		os.Exit(1)
	}

	// Database
	databaseService, err := db.NewDatabaseService(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err = databaseService.AutoMigrateAll(); err != nil {
		log.Error("Auto migration failed", "error", err)
		os.Exit(1)
	}
	theDB := databaseService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	courseRepo := repos.NewCourseRepo(theDB, log)
	conversationRepo := repos.NewConversationRepo(theDB, log)
	messageRepo := repos.NewMessageRepo(theDB, log)
	documentRepo := repos.NewDocumentRepo(theDB, log)
	interactionLogRepo := repos.NewInteractionLogRepo(theDB, log)
	adminUserRepo := repos.NewAdminUserRepo(theDB, log)

	// Clients
	log.Info("Setting up platform clients from main...")
	chatworkRegistry := chatwork.NewRegistry(log)
	lineRegistry := line.NewRegistry(log)

	var dedupBackend services.DedupBackend
	if redisStore, err := redis.NewDedupStore(log); err != nil {
		log.Warn("Redis dedup disabled", "error", err)
	} else {
		dedupBackend = redisStore
		defer redisStore.Close()
	}

	openaiClient, err := services.NewOpenAIClient(log)
	if err != nil {
		log.Warn("OpenAI client disabled, answers will use the fallback text", "error", err)
		openaiClient = nil
	}

	// Services
	log.Info("Setting up Services from main...")
	courseService := services.NewCourseService(theDB, log, courseRepo)
	conversationService := services.NewConversationService(theDB, log, conversationRepo, messageRepo)
	indexerService := services.NewDocumentIndexerService(theDB, log, documentRepo, openaiClient)
	retrieverService := services.NewRetrieverService(theDB, log, documentRepo)
	satisfactionService := services.NewSatisfactionService(log, openaiClient, tuning, satisfactionThreshold)
	dedupService := services.NewMessageDedupService(log, dedupBackend, dedupMaxPerCourse)

	var notifierService services.NotifierService
	if notifier, err := services.NewSlackNotifier(log); err != nil {
		log.Warn("Slack notifier disabled", "error", err)
	} else {
		notifierService = notifier
	}

	orchestrator := services.NewResponseOrchestrator(
		theDB,
		log,
		openaiClient,
		conversationService,
		retrieverService,
		satisfactionService,
		interactionLogRepo,
	)

	authService, err := services.NewAuthService(theDB, log, adminUserRepo)
	if err != nil {
		log.Error("Could not init AuthService", "error", err)
		os.Exit(1)
	}
	if err := authService.Bootstrap(context.Background()); err != nil {
		log.Error("Admin bootstrap failed", "error", err)
		os.Exit(1)
	}

	// Poller
	pollerService := services.NewPollerService(
		log,
		courseService,
		chatworkRegistry,
		dedupService,
		orchestrator,
		notifierService,
		time.Duration(pollIntervalSec)*time.Second,
	)
	go pollerService.Run(context.Background())

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	courseHandler := handlers.NewCourseHandler(courseService)
	documentHandler := handlers.NewDocumentHandler(indexerService, documentRepo)
	conversationHandler := handlers.NewConversationHandler(conversationService, interactionLogRepo)
	webhookHandler := handlers.NewWebhookHandler(
		log,
		courseService,
		chatworkRegistry,
		lineRegistry,
		dedupService,
		orchestrator,
		notifierService,
	)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:         authHandler,
		AuthMiddleware:      authMiddleware,
		CourseHandler:       courseHandler,
		DocumentHandler:     documentHandler,
		ConversationHandler: conversationHandler,
		WebhookHandler:      webhookHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
