package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/schoolbot-backend/internal/logger"
	"github.com/yungbote/schoolbot-backend/internal/types"
	"github.com/yungbote/schoolbot-backend/internal/utils"
)

type DatabaseService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewDatabaseService connects to Postgres when POSTGRES_HOST is set and falls
// back to a local SQLite file otherwise, so the bot can run without any
// database infrastructure during development.
func NewDatabaseService(log *logger.Logger) (*DatabaseService, error) {
	serviceLog := log.With("service", "DatabaseService")

	gormCfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
	}

	postgresHost := utils.GetEnv("POSTGRES_HOST", "", log)
	if postgresHost == "" {
		sqlitePath := utils.GetEnv("SQLITE_PATH", "schoolbot.db", log)
		serviceLog.Info("POSTGRES_HOST not set, using SQLite", "path", sqlitePath)
		db, err := gorm.Open(sqlite.Open(sqlitePath), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		return &DatabaseService{db: db, log: serviceLog}, nil
	}

	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "schoolbot", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	serviceLog.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	return &DatabaseService{db: db, log: serviceLog}, nil
}

func (s *DatabaseService) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	err := s.db.AutoMigrate(
		&types.Course{},
		&types.Conversation{},
		&types.Message{},
		&types.DocumentCollection{},
		&types.DocumentChunk{},
		&types.InteractionLog{},
		&types.AdminUser{},
	)
	if err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

func (s *DatabaseService) DB() *gorm.DB {
	return s.db
}
