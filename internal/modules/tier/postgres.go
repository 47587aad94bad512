package tier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/database"
	"github.com/georgemunganga/fanbase-backend/internal/modules/benefit"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type postgresRepo struct {
	db       *sql.DB
	benefits benefit.Repository
}

// NewPostgresRepository creates a new PostgreSQL tier repository. Attached
// benefits are loaded through benefits.
func NewPostgresRepository(db *sql.DB, benefits benefit.Repository) Repository {
	return &postgresRepo{db: db, benefits: benefits}
}

const tierColumns = `id, type, name, description, is_highlighted, price_amount, price_currency,
		       is_archived, organization_id, repository_id, created_at, updated_at`

// CreateTier inserts the tier and its benefit links in one transaction.
func (r *postgresRepo) CreateTier(ctx context.Context, t *Tier, benefitIDs []uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO subscription_tiers
		  (id, type, name, description, is_highlighted, price_amount, price_currency,
		   organization_id, repository_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		t.ID, t.Type, t.Name, t.Description, t.IsHighlighted, t.PriceAmount, t.PriceCurrency,
		t.OrganizationID, t.RepositoryID,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if database.IsCheckViolation(err) {
		return apperror.Invalid("tier", "violates scope or price constraints")
	}
	if err != nil {
		return err
	}
	if err := insertLinks(ctx, tx, t.ID, benefitIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *postgresRepo) GetTier(ctx context.Context, id uuid.UUID) (*Tier, error) {
	t, err := scanTier(r.db.QueryRowContext(ctx,
		`SELECT `+tierColumns+` FROM subscription_tiers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("tier")
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachBenefits(ctx, []*Tier{t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *postgresRepo) ListTiers(ctx context.Context, filter ScopeFilter) ([]*Tier, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.OrganizationID != nil {
		args = append(args, *filter.OrganizationID)
		where = append(where, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if filter.RepositoryID != nil {
		args = append(args, *filter.RepositoryID)
		where = append(where, fmt.Sprintf("repository_id = $%d", len(args)))
	}
	if !filter.IncludeArchived {
		where = append(where, "is_archived = FALSE")
	}
	query := `SELECT ` + tierColumns + ` FROM subscription_tiers`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY price_amount, created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []*Tier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachBenefits(ctx, tiers); err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *postgresRepo) UpdateTier(ctx context.Context, t *Tier) error {
	t.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscription_tiers
		SET name=$1, description=$2, is_highlighted=$3, price_amount=$4, price_currency=$5, updated_at=$6
		WHERE id=$7`,
		t.Name, t.Description, t.IsHighlighted, t.PriceAmount, t.PriceCurrency, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("tier")
	}
	return nil
}

func (r *postgresRepo) ArchiveTier(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subscription_tiers SET is_archived=TRUE, updated_at=$1 WHERE id=$2`, time.Now(), id)
	return err
}

// SetTierBenefits replaces the attached benefits; position in benefitIDs
// becomes the order.
func (r *postgresRepo) SetTierBenefits(ctx context.Context, tierID uuid.UUID, benefitIDs []uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subscription_tier_benefits WHERE subscription_tier_id = $1`, tierID); err != nil {
		return err
	}
	if err := insertLinks(ctx, tx, tierID, benefitIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func insertLinks(ctx context.Context, tx *sql.Tx, tierID uuid.UUID, benefitIDs []uuid.UUID) error {
	for i, benefitID := range benefitIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO subscription_tier_benefits (subscription_tier_id, subscription_benefit_id, "order")
			VALUES ($1,$2,$3)`, tierID, benefitID, i); err != nil {
			return err
		}
	}
	return nil
}

func (r *postgresRepo) attachBenefits(ctx context.Context, tiers []*Tier) error {
	if len(tiers) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Tier, len(tiers))
	ids := make([]string, len(tiers))
	for i, t := range tiers {
		byID[t.ID] = t
		ids[i] = t.ID.String()
		t.Benefits = []*benefit.Benefit{}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT subscription_tier_id, subscription_benefit_id
		FROM subscription_tier_benefits
		WHERE subscription_tier_id = ANY($1::uuid[])
		ORDER BY subscription_tier_id, "order"`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	type link struct{ tierID, benefitID uuid.UUID }
	var (
		links      []link
		benefitIDs []uuid.UUID
		seen       = map[uuid.UUID]bool{}
	)
	for rows.Next() {
		var l link
		if err := rows.Scan(&l.tierID, &l.benefitID); err != nil {
			return err
		}
		links = append(links, l)
		if !seen[l.benefitID] {
			seen[l.benefitID] = true
			benefitIDs = append(benefitIDs, l.benefitID)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	benefits, err := r.benefits.GetBenefits(ctx, benefitIDs)
	if err != nil {
		return err
	}
	loaded := make(map[uuid.UUID]*benefit.Benefit, len(benefits))
	for _, b := range benefits {
		loaded[b.ID] = b
	}
	for _, l := range links {
		if b, ok := loaded[l.benefitID]; ok && !b.Deleted() {
			byID[l.tierID].Benefits = append(byID[l.tierID].Benefits, b)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTier(row scanner) (*Tier, error) {
	t := &Tier{}
	var (
		description sql.NullString
		orgID       uuid.NullUUID
		repoID      uuid.NullUUID
	)
	if err := row.Scan(&t.ID, &t.Type, &t.Name, &description, &t.IsHighlighted, &t.PriceAmount, &t.PriceCurrency,
		&t.IsArchived, &orgID, &repoID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		t.Description = &description.String
	}
	if orgID.Valid {
		t.OrganizationID = &orgID.UUID
	}
	if repoID.Valid {
		t.RepositoryID = &repoID.UUID
	}
	return t, nil
}
