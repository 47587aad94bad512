package grant

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines data access for grant records.
type Repository interface {
	// GetGrant returns apperror.ErrNotFound when the pair has no record.
	GetGrant(ctx context.Context, subscriptionID, benefitID uuid.UUID) (*Grant, error)
	// UpsertGrant writes the record for the pair, creating it on first grant.
	UpsertGrant(ctx context.Context, g *Grant) error
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*Grant, error)
	ListGrantedByBenefit(ctx context.Context, benefitID uuid.UUID) ([]*Grant, error)
}
