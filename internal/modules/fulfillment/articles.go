package fulfillment

import (
	"context"
	"fmt"

	"github.com/georgemunganga/fanbase-backend/internal/modules/benefit"
	"github.com/georgemunganga/fanbase-backend/internal/modules/subscription"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
	"github.com/google/uuid"
)

// ArticleAccess is what other granted articles benefits still give a user
// in a scope.
type ArticleAccess struct {
	Granted bool
	Paid    bool
}

// ArticleAccessStore keeps the article_subscriptions rows that gate posts.
type ArticleAccessStore interface {
	// Grant records access; paid access is never downgraded by a free grant.
	Grant(ctx context.Context, userID, scopeID uuid.UUID, paid bool) error
	Remove(ctx context.Context, userID, scopeID uuid.UUID) error
	// Remaining reports the access granted by articles grants other than
	// the (subscription, benefit) pair being revoked.
	Remaining(ctx context.Context, userID, scopeID, subscriptionID, benefitID uuid.UUID) (ArticleAccess, error)
	Set(ctx context.Context, userID, scopeID uuid.UUID, paid bool) error
}

type articlesService struct {
	store ArticleAccessStore
}

func NewArticlesService(store ArticleAccessStore) Service {
	return &articlesService{store: store}
}

func (s *articlesService) Grant(ctx context.Context, b *benefit.Benefit, sub *subscription.Subscription, u *user.User,
	props Properties, opts GrantOptions) (Properties, error) {
	p, err := articlesProperties(b)
	if err != nil {
		return nil, err
	}
	if err := s.store.Grant(ctx, u.ID, b.Scope.ID(), p.PaidArticles); err != nil {
		return nil, fmt.Errorf("grant article access: %w", err)
	}
	return props.Clone(), nil
}

func (s *articlesService) Revoke(ctx context.Context, b *benefit.Benefit, sub *subscription.Subscription, u *user.User,
	props Properties, attempt int) (Properties, error) {
	scopeID := b.Scope.ID()
	remaining, err := s.store.Remaining(ctx, u.ID, scopeID, sub.ID, b.ID)
	if err != nil {
		return nil, fmt.Errorf("load remaining article access: %w", err)
	}
	if remaining.Granted {
		err = s.store.Set(ctx, u.ID, scopeID, remaining.Paid)
	} else {
		err = s.store.Remove(ctx, u.ID, scopeID)
	}
	if err != nil {
		return nil, fmt.Errorf("revoke article access: %w", err)
	}
	return props.Clone(), nil
}

func (s *articlesService) RequiresUpdate(ctx context.Context, b *benefit.Benefit, previous benefit.Properties) (bool, error) {
	current, err := articlesProperties(b)
	if err != nil {
		return false, err
	}
	prev, ok := previous.(benefit.ArticlesProperties)
	if !ok {
		return true, nil
	}
	return current.PaidArticles != prev.PaidArticles, nil
}

func articlesProperties(b *benefit.Benefit) (benefit.ArticlesProperties, error) {
	p, ok := b.Properties.(benefit.ArticlesProperties)
	if !ok {
		return p, fmt.Errorf("benefit %s: expected articles properties, got %T", b.ID, b.Properties)
	}
	return p, nil
}
