package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines data access for subscriptions.
type Repository interface {
	CreateSubscription(ctx context.Context, sub *Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Subscription, error)
	UpdateSubscription(ctx context.Context, sub *Subscription) error
}
