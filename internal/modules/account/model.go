package account

import (
	"time"

	"github.com/google/uuid"
)

// Account is the creator-side destination that transactions settle against.
type Account struct {
	ID        uuid.UUID `json:"id"`
	AdminID   uuid.UUID `json:"admin_id"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
