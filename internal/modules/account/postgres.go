package account

import (
	"context"
	"database/sql"
	"errors"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/google/uuid"
)

type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL account repository.
func NewPostgresRepository(db *sql.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateAccount(ctx context.Context, account *Account) error {
	query := `INSERT INTO accounts (id, admin_id, currency) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, account.ID, account.AdminID, account.Currency)
	return err
}

func (r *postgresRepository) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `SELECT id, admin_id, currency, created_at, updated_at FROM accounts WHERE id = $1`
	a := &Account{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.AdminID, &a.Currency, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("account")
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *postgresRepository) ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]*Account, error) {
	query := `SELECT id, admin_id, currency, created_at, updated_at FROM accounts WHERE admin_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a := &Account{}
		if err := rows.Scan(&a.ID, &a.AdminID, &a.Currency, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
