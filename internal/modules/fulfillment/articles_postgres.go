package fulfillment

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type articleAccessPostgres struct{ db *sql.DB }

// NewArticleAccessStore creates a PostgreSQL ArticleAccessStore.
func NewArticleAccessStore(db *sql.DB) ArticleAccessStore {
	return &articleAccessPostgres{db: db}
}

func (s *articleAccessPostgres) Grant(ctx context.Context, userID, scopeID uuid.UUID, paid bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO article_subscriptions (user_id, scope_id, paid_subscriber)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id, scope_id) DO UPDATE
		SET paid_subscriber = article_subscriptions.paid_subscriber OR EXCLUDED.paid_subscriber,
		    updated_at = $4`,
		userID, scopeID, paid, time.Now())
	return err
}

func (s *articleAccessPostgres) Set(ctx context.Context, userID, scopeID uuid.UUID, paid bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO article_subscriptions (user_id, scope_id, paid_subscriber)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id, scope_id) DO UPDATE
		SET paid_subscriber = EXCLUDED.paid_subscriber, updated_at = $4`,
		userID, scopeID, paid, time.Now())
	return err
}

func (s *articleAccessPostgres) Remove(ctx context.Context, userID, scopeID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM article_subscriptions WHERE user_id = $1 AND scope_id = $2`, userID, scopeID)
	return err
}

func (s *articleAccessPostgres) Remaining(ctx context.Context, userID, scopeID, subscriptionID, benefitID uuid.UUID) (ArticleAccess, error) {
	var (
		count int
		paid  sql.NullBool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), BOOL_OR((b.properties->>'paid_articles')::boolean)
		FROM subscription_benefit_grants g
		JOIN subscription_benefits b ON b.id = g.subscription_benefit_id
		WHERE g.user_id = $1
		  AND g.state = 'granted'
		  AND b.type = 'articles'
		  AND b.deleted_at IS NULL
		  AND COALESCE(b.organization_id, b.repository_id) = $2
		  AND NOT (g.subscription_id = $3 AND g.subscription_benefit_id = $4)`,
		userID, scopeID, subscriptionID, benefitID).Scan(&count, &paid)
	if err != nil {
		return ArticleAccess{}, err
	}
	return ArticleAccess{Granted: count > 0, Paid: paid.Valid && paid.Bool}, nil
}
