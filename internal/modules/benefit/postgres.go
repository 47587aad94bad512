package benefit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/database"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type postgresRepo struct{ db *sql.DB }

// NewPostgresRepository creates a new PostgreSQL benefit repository.
func NewPostgresRepository(db *sql.DB) Repository { return &postgresRepo{db: db} }

const benefitColumns = `id, type, description, selectable, deletable, is_tax_applicable,
		       properties, organization_id, repository_id, deleted_at, created_at, updated_at`

func (r *postgresRepo) CreateBenefit(ctx context.Context, b *Benefit) error {
	props, err := EncodeProperties(b.Properties)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO subscription_benefits
		  (id, type, description, selectable, deletable, is_tax_applicable,
		   properties, organization_id, repository_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		b.ID, b.Type, b.Description, b.Selectable, b.Deletable, b.IsTaxApplicable,
		string(props), b.OrganizationID, b.RepositoryID,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if database.IsCheckViolation(err) {
		return apperror.Invalid("scope", "exactly one of organization_id or repository_id is required")
	}
	if database.IsUniqueViolation(err) {
		return apperror.Conflict("%s benefit already exists in scope", b.Type)
	}
	return err
}

func (r *postgresRepo) GetBenefit(ctx context.Context, id uuid.UUID) (*Benefit, error) {
	b, err := scanBenefit(r.db.QueryRowContext(ctx,
		`SELECT `+benefitColumns+` FROM subscription_benefits WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("benefit")
	}
	return b, err
}

func (r *postgresRepo) GetBenefits(ctx context.Context, ids []uuid.UUID) ([]*Benefit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return r.query(ctx, `SELECT `+benefitColumns+`
		FROM subscription_benefits
		WHERE id = ANY($1::uuid[])`, pq.Array(strs))
}

func (r *postgresRepo) ListBenefits(ctx context.Context, scope Scope, t *Type) ([]*Benefit, error) {
	where := []string{"deleted_at IS NULL"}
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if scope.OrganizationID != nil {
		add("organization_id = $%d", *scope.OrganizationID)
	}
	if scope.RepositoryID != nil {
		add("repository_id = $%d", *scope.RepositoryID)
	}
	if t != nil {
		add("type = $%d", *t)
	}
	return r.query(ctx, `SELECT `+benefitColumns+`
		FROM subscription_benefits
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at`, args...)
}

func (r *postgresRepo) UpdateBenefit(ctx context.Context, b *Benefit) error {
	props, err := EncodeProperties(b.Properties)
	if err != nil {
		return err
	}
	b.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscription_benefits
		SET description=$1, is_tax_applicable=$2, properties=$3, updated_at=$4
		WHERE id=$5 AND deleted_at IS NULL`,
		b.Description, b.IsTaxApplicable, string(props), b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("benefit")
	}
	return nil
}

func (r *postgresRepo) SoftDeleteBenefit(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscription_benefits SET deleted_at=$1, updated_at=$1
		WHERE id=$2 AND deleted_at IS NULL`, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("benefit")
	}
	return nil
}

func (r *postgresRepo) query(ctx context.Context, query string, args ...interface{}) ([]*Benefit, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var benefits []*Benefit
	for rows.Next() {
		b, err := scanBenefit(rows)
		if err != nil {
			return nil, err
		}
		benefits = append(benefits, b)
	}
	return benefits, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBenefit(row scanner) (*Benefit, error) {
	b := &Benefit{}
	var (
		props     []byte
		orgID     uuid.NullUUID
		repoID    uuid.NullUUID
		deletedAt sql.NullTime
	)
	if err := row.Scan(&b.ID, &b.Type, &b.Description, &b.Selectable, &b.Deletable, &b.IsTaxApplicable,
		&props, &orgID, &repoID, &deletedAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if orgID.Valid {
		b.OrganizationID = &orgID.UUID
	}
	if repoID.Valid {
		b.RepositoryID = &repoID.UUID
	}
	if deletedAt.Valid {
		b.DeletedAt = &deletedAt.Time
	}
	var err error
	if b.Properties, err = DecodeProperties(b.Type, props); err != nil {
		return nil, err
	}
	return b, nil
}
