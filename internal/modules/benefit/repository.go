package benefit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines data access for benefits. Reads by id return soft-deleted
// rows too; list reads skip them.
type Repository interface {
	CreateBenefit(ctx context.Context, b *Benefit) error
	GetBenefit(ctx context.Context, id uuid.UUID) (*Benefit, error)
	GetBenefits(ctx context.Context, ids []uuid.UUID) ([]*Benefit, error)
	ListBenefits(ctx context.Context, scope Scope, t *Type) ([]*Benefit, error)
	UpdateBenefit(ctx context.Context, b *Benefit) error
	SoftDeleteBenefit(ctx context.Context, id uuid.UUID, at time.Time) error
}
