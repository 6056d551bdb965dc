package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"inverapp/internal/middleware"
	"inverapp/internal/models"
	"inverapp/internal/repositories"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

type LoginResult struct {
	User        *models.User `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

type UserService interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context, userType string, limit, offset int) ([]models.User, error)
	HashPassword(password string) (string, error)
}

type userService struct {
	repo      repositories.UserRepository
	accessTTL time.Duration
}

func NewUserService(repo repositories.UserRepository, accessTTL time.Duration) UserService {
	return &userService{repo: repo, accessTTL: accessTTL}
}

func (s *userService) HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("%w: password is required", ErrValidation)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *userService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		log.Printf("[auth][login] user not found email=%q", email)
		return nil, ErrInvalidCredentials
	}
	ph := strings.TrimSpace(user.PasswordHash)
	if ph == "" {
		log.Printf("[auth][login] empty password_hash for userID=%d", user.ID)
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(ph), []byte(password)); err != nil {
		log.Printf("[auth][login] bcrypt mismatch for userID=%d", user.ID)
		return nil, ErrInvalidCredentials
	}
	token, exp, err := middleware.NewAccessToken(user.ID, user.UserType, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &LoginResult{User: user, AccessToken: token, ExpiresAt: exp}, nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, nil
}

func (s *userService) ListUsers(ctx context.Context, userType string, limit, offset int) ([]models.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, strings.TrimSpace(userType), limit, offset)
}
