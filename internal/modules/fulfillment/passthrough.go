package fulfillment

import (
	"context"

	"github.com/georgemunganga/fanbase-backend/internal/modules/benefit"
	"github.com/georgemunganga/fanbase-backend/internal/modules/subscription"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
)

// passthroughService fulfills benefits the creator delivers by hand, such as
// custom perks and ad placements. Nothing external is touched.
type passthroughService struct{}

// NewCustomService returns the service for custom benefits.
func NewCustomService() Service { return passthroughService{} }

// NewAdsService returns the service for ads benefits.
func NewAdsService() Service { return passthroughService{} }

func (passthroughService) Grant(ctx context.Context, b *benefit.Benefit, sub *subscription.Subscription, u *user.User,
	props Properties, opts GrantOptions) (Properties, error) {
	return props.Clone(), nil
}

func (passthroughService) Revoke(ctx context.Context, b *benefit.Benefit, sub *subscription.Subscription, u *user.User,
	props Properties, attempt int) (Properties, error) {
	return props.Clone(), nil
}

func (passthroughService) RequiresUpdate(ctx context.Context, b *benefit.Benefit, previous benefit.Properties) (bool, error) {
	return false, nil
}
