package user

import (
	"context"
	"net/mail"
	"strings"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type service struct {
	repo Repository
}

// NewService creates a new user service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) RegisterUser(ctx context.Context, email, password, username string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperror.Invalid("email", "must be a valid email address")
	}
	if len(password) < minPasswordLength {
		return nil, apperror.Invalid("password", "must be at least %d characters", minPasswordLength)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.Invalid("username", "is required")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hashedPassword),
		Username:     username,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *service) LinkDiscordAccount(ctx context.Context, id uuid.UUID, discordUserID string) (*User, error) {
	discordUserID = strings.TrimSpace(discordUserID)
	if discordUserID == "" {
		return nil, apperror.Invalid("discord_user_id", "is required")
	}
	if err := s.repo.SetDiscordUserID(ctx, id, &discordUserID); err != nil {
		return nil, err
	}
	return s.repo.GetUserByID(ctx, id)
}

func (s *service) UnlinkDiscordAccount(ctx context.Context, id uuid.UUID) (*User, error) {
	if err := s.repo.SetDiscordUserID(ctx, id, nil); err != nil {
		return nil, err
	}
	return s.repo.GetUserByID(ctx, id)
}
