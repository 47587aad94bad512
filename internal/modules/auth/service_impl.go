package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

type service struct {
	userRepo user.Repository
	jwtKey   []byte
	now      func() time.Time
}

// NewService creates a new auth service signing tokens with secret.
func NewService(userRepo user.Repository, secret string) Service {
	return &service{userRepo: userRepo, jwtKey: []byte(secret), now: time.Now}
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.userRepo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, apperror.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	expirationTime := s.now().Add(tokenTTL)
	claims := &jwt.StandardClaims{
		Subject:   u.ID.String(),
		IssuedAt:  s.now().Unix(),
		ExpiresAt: expirationTime.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}
