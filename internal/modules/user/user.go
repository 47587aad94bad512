package user

import (
	"time"

	"github.com/google/uuid"
)

// User is a backer (or creator) account.
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Username      string    `json:"username"`
	DiscordUserID *string   `json:"discord_user_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasDiscordAccount reports whether the user linked a Discord account.
func (u *User) HasDiscordAccount() bool {
	return u.DiscordUserID != nil && *u.DiscordUserID != ""
}
