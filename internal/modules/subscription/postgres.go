package subscription

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/google/uuid"
)

type postgresRepo struct{ db *sql.DB }

// NewPostgresRepository creates a new PostgreSQL subscription repository.
func NewPostgresRepository(db *sql.DB) Repository { return &postgresRepo{db: db} }

const subscriptionColumns = `id, status, current_period_start, current_period_end, cancel_at_period_end,
		       started_at, ended_at, price_amount, price_currency, user_id, organization_id,
		       subscription_tier_id, created_at, updated_at`

func (r *postgresRepo) CreateSubscription(ctx context.Context, sub *Subscription) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO subscriptions
		  (id, status, current_period_start, current_period_end, cancel_at_period_end,
		   started_at, ended_at, price_amount, price_currency, user_id, organization_id,
		   subscription_tier_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		sub.ID, sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.StartedAt, sub.EndedAt, sub.PriceAmount, sub.PriceCurrency, sub.UserID, sub.OrganizationID,
		sub.TierID,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
}

func (r *postgresRepo) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("subscription")
	}
	return sub, err
}

func (r *postgresRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Subscription, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// UpdateSubscription writes the mutable lifecycle fields. The price snapshot
// is not part of the statement.
func (r *postgresRepo) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	sub.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status=$1, current_period_start=$2, current_period_end=$3, cancel_at_period_end=$4,
		    started_at=$5, ended_at=$6, subscription_tier_id=$7, updated_at=$8
		WHERE id=$9`,
		sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.StartedAt, sub.EndedAt, sub.TierID, sub.UpdatedAt, sub.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("subscription")
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row scanner) (*Subscription, error) {
	sub := &Subscription{}
	var (
		periodEnd, startedAt, endedAt sql.NullTime
		orgID                         uuid.NullUUID
	)
	if err := row.Scan(&sub.ID, &sub.Status, &sub.CurrentPeriodStart, &periodEnd, &sub.CancelAtPeriodEnd,
		&startedAt, &endedAt, &sub.PriceAmount, &sub.PriceCurrency, &sub.UserID, &orgID,
		&sub.TierID, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.CurrentPeriodEnd = timePtr(periodEnd)
	sub.StartedAt = timePtr(startedAt)
	sub.EndedAt = timePtr(endedAt)
	if orgID.Valid {
		sub.OrganizationID = &orgID.UUID
	}
	return sub, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
