package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/unforkableco/fabrikator/internal/models"
	apperrors "github.com/unforkableco/fabrikator/pkg/errors"
	"github.com/unforkableco/fabrikator/pkg/logger"
	"github.com/unforkableco/fabrikator/pkg/metrics"
)

// UserDTO is the account shape exposed to API consumers.
type UserDTO struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// LoginResult bundles a signed token with its account.
type LoginResult struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

// Service authenticates accounts against their stored bcrypt hashes and
// issues tokens. Accounts are deliberately minimal; there is no self-service
// registration flow, operators create users directly.
type Service struct {
	db     *gorm.DB
	tokens *TokenService
	log    *zap.Logger
}

// NewService constructs an auth Service.
func NewService(db *gorm.DB, tokens *TokenService) (*Service, error) {
	if db == nil {
		return nil, errors.New("auth service: db is required")
	}
	if tokens == nil {
		return nil, errors.New("auth service: token service is required")
	}
	return &Service{
		db:     db,
		tokens: tokens,
		log:    logger.WithModule("auth"),
	}, nil
}

// Login verifies credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			return LoginResult{}, apperrors.ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("auth service: fetch user: %w", err)
	}

	if !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return LoginResult{}, apperrors.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		s.log.Warn("failed login attempt", zap.String("username", username))
		return LoginResult{}, apperrors.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID, user.Username, user.DisplayName)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth service: issue token: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return LoginResult{Token: token, User: userDTO(user)}, nil
}

// GetUser loads an account by id.
func (s *Service) GetUser(ctx context.Context, id string) (UserDTO, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return UserDTO{}, apperrors.NewNotFound("user not found")
		}
		return UserDTO{}, fmt.Errorf("auth service: fetch user: %w", err)
	}
	return userDTO(user), nil
}

func userDTO(user models.User) UserDTO {
	return UserDTO{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		CreatedAt:   user.CreatedAt,
	}
}
