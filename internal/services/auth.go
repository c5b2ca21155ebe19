package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/schoolbot-backend/internal/logger"
	apperr "github.com/yungbote/schoolbot-backend/internal/pkg/errors"
	"github.com/yungbote/schoolbot-backend/internal/repos"
	"github.com/yungbote/schoolbot-backend/internal/types"
)

const tokenTTL = 24 * time.Hour

type AuthService interface {
	// Login verifies credentials and returns a signed JWT.
	Login(ctx context.Context, username, password string) (string, error)
	// ValidateToken parses and verifies a token, returning the username claim.
	ValidateToken(tokenString string) (string, error)
	// Bootstrap creates the initial admin from ADMIN_USERNAME/ADMIN_PASSWORD
	// when no user with that name exists yet.
	Bootstrap(ctx context.Context) error
}

type authService struct {
	db       *gorm.DB
	log      *logger.Logger
	users    repos.AdminUserRepo
	jwtKey   []byte
	tokenTTL time.Duration
}

func NewAuthService(db *gorm.DB, baseLog *logger.Logger, users repos.AdminUserRepo) (AuthService, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return nil, fmt.Errorf("missing JWT_SECRET")
	}
	return &authService{
		db:       db,
		log:      baseLog.With("service", "AuthService"),
		users:    users,
		jwtKey:   []byte(secret),
		tokenTTL: tokenTTL,
	}, nil
}

func (s *authService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", fmt.Errorf("%w: username and password required", apperr.ErrInvalidArgument)
	}

	user, err := s.users.GetByUsername(ctx, nil, username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", apperr.ErrUnauthorized
		}
		return "", fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", apperr.ErrUnauthorized
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": user.Username,
		"iat": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	s.log.Info("Admin logged in", "username", username)
	return signed, nil
}

func (s *authService) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtKey, nil
	})
	if err != nil || !token.Valid {
		return "", apperr.ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", apperr.ErrUnauthorized
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", apperr.ErrUnauthorized
	}
	return sub, nil
}

func (s *authService) Bootstrap(ctx context.Context) error {
	username := strings.TrimSpace(os.Getenv("ADMIN_USERNAME"))
	password := os.Getenv("ADMIN_PASSWORD")
	if username == "" || password == "" {
		s.log.Debug("Admin bootstrap skipped, ADMIN_USERNAME/ADMIN_PASSWORD unset")
		return nil
	}

	if _, err := s.users.GetByUsername(ctx, nil, username); err == nil {
		return nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("check admin user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	user := &types.AdminUser{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if _, err := s.users.Create(ctx, nil, user); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	s.log.Info("Bootstrapped admin user", "username", username)
	return nil
}
