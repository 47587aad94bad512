package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/database"
	"github.com/google/uuid"
)

type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL user repository.
func NewPostgresRepository(db *sql.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, password_hash, username)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.PasswordHash, user.Username)
	if database.IsUniqueViolation(err) {
		return apperror.Conflict("email %s is already registered", user.Email)
	}
	return err
}

func (r *postgresRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, password_hash, username, discord_user_id, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *postgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, email, password_hash, username, discord_user_id, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresRepository) SetDiscordUserID(ctx context.Context, id uuid.UUID, discordUserID *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET discord_user_id = $1, updated_at = $2 WHERE id = $3`,
		discordUserID, time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user")
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	var discordUserID sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Username,
		&discordUserID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	if discordUserID.Valid {
		user.DiscordUserID = &discordUserID.String
	}
	return user, nil
}
