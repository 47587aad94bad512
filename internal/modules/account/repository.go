package account

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]*Account, error)
}
