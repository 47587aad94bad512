package tier

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines data access for tiers. Loaded tiers carry their ordered
// benefits.
type Repository interface {
	CreateTier(ctx context.Context, t *Tier, benefitIDs []uuid.UUID) error
	GetTier(ctx context.Context, id uuid.UUID) (*Tier, error)
	ListTiers(ctx context.Context, scope ScopeFilter) ([]*Tier, error)
	UpdateTier(ctx context.Context, t *Tier) error
	ArchiveTier(ctx context.Context, id uuid.UUID) error
	SetTierBenefits(ctx context.Context, tierID uuid.UUID, benefitIDs []uuid.UUID) error
}

// ScopeFilter narrows ListTiers.
type ScopeFilter struct {
	OrganizationID  *uuid.UUID
	RepositoryID    *uuid.UUID
	IncludeArchived bool
}
