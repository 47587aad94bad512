package user

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for user-related business logic.
type Service interface {
	RegisterUser(ctx context.Context, email, password, username string) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	LinkDiscordAccount(ctx context.Context, id uuid.UUID, discordUserID string) (*User, error)
	UnlinkDiscordAccount(ctx context.Context, id uuid.UUID) (*User, error)
}
