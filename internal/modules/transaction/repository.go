package transaction

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the read side of the ledger. Rows are written by the
// payment and payout subsystems.
type Repository interface {
	Search(ctx context.Context, accountID uuid.UUID, filter SearchFilter) ([]*Transaction, int, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	SummaryRows(ctx context.Context, accountID uuid.UUID) ([]SummaryRow, error)
}
