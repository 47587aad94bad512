package grant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/modules/fulfillment"
	"github.com/google/uuid"
)

type postgresRepo struct{ db *sql.DB }

// NewPostgresRepository creates a new PostgreSQL grant repository.
func NewPostgresRepository(db *sql.DB) Repository { return &postgresRepo{db: db} }

const grantColumns = `id, subscription_id, subscription_benefit_id, user_id, state, properties,
		       granted_at, revoked_at, created_at, updated_at`

func (r *postgresRepo) GetGrant(ctx context.Context, subscriptionID, benefitID uuid.UUID) (*Grant, error) {
	g, err := scanGrant(r.db.QueryRowContext(ctx, `SELECT `+grantColumns+`
		FROM subscription_benefit_grants
		WHERE subscription_id = $1 AND subscription_benefit_id = $2`, subscriptionID, benefitID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("grant")
	}
	return g, err
}

func (r *postgresRepo) UpsertGrant(ctx context.Context, g *Grant) error {
	props, err := json.Marshal(g.Properties)
	if err != nil {
		return fmt.Errorf("encode grant properties: %w", err)
	}
	if g.Properties == nil {
		props = []byte("{}")
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO subscription_benefit_grants
		  (id, subscription_id, subscription_benefit_id, user_id, state, properties, granted_at, revoked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (subscription_id, subscription_benefit_id) DO UPDATE
		SET state=EXCLUDED.state, properties=EXCLUDED.properties,
		    granted_at=EXCLUDED.granted_at, revoked_at=EXCLUDED.revoked_at, updated_at=NOW()
		RETURNING id, created_at, updated_at`,
		g.ID, g.SubscriptionID, g.BenefitID, g.UserID, g.State, string(props), g.GrantedAt, g.RevokedAt,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
}

func (r *postgresRepo) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*Grant, error) {
	return r.query(ctx, `SELECT `+grantColumns+`
		FROM subscription_benefit_grants
		WHERE subscription_id = $1
		ORDER BY created_at`, subscriptionID)
}

func (r *postgresRepo) ListGrantedByBenefit(ctx context.Context, benefitID uuid.UUID) ([]*Grant, error) {
	return r.query(ctx, `SELECT `+grantColumns+`
		FROM subscription_benefit_grants
		WHERE subscription_benefit_id = $1 AND state = $2
		ORDER BY created_at`, benefitID, StateGranted)
}

func (r *postgresRepo) query(ctx context.Context, query string, args ...interface{}) ([]*Grant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []*Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGrant(row scanner) (*Grant, error) {
	g := &Grant{}
	var (
		props              []byte
		grantedAt, revoked sql.NullTime
	)
	if err := row.Scan(&g.ID, &g.SubscriptionID, &g.BenefitID, &g.UserID, &g.State, &props,
		&grantedAt, &revoked, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.Properties = fulfillment.Properties{}
	if len(props) > 0 {
		if err := json.Unmarshal(props, &g.Properties); err != nil {
			return nil, fmt.Errorf("decode grant properties: %w", err)
		}
	}
	if grantedAt.Valid {
		g.GrantedAt = &grantedAt.Time
	}
	if revoked.Valid {
		g.RevokedAt = &revoked.Time
	}
	return g, nil
}
