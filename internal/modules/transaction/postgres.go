package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/google/uuid"
)

type postgresRepo struct{ db *sql.DB }

// NewPostgresRepository creates a new PostgreSQL transaction repository.
func NewPostgresRepository(db *sql.DB) Repository { return &postgresRepo{db: db} }

const transactionColumns = `id, type, processor, currency, amount, account_currency, account_amount,
		       account_id, pledge_id, issue_reward_id, subscription_id, payout_transaction_id, created_at`

func (r *postgresRepo) Search(ctx context.Context, accountID uuid.UUID, filter SearchFilter) ([]*Transaction, int, error) {
	where := "WHERE account_id = $1"
	args := []interface{}{accountID}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.offset())
	query := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		transactionColumns, where, orderBy(filter.Sorting), len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		txs = append(txs, tx)
	}
	return txs, total, rows.Err()
}

// orderBy renders sorting; fields are limited to the SortField constants
// by ParseSorting.
func orderBy(sorting []Sort) string {
	if len(sorting) == 0 {
		sorting = DefaultSorting
	}
	parts := make([]string, 0, len(sorting)+1)
	for _, s := range sorting {
		col := "created_at"
		if s.Field == SortAmount {
			col = "amount"
		}
		if s.Descending {
			col += " DESC"
		}
		parts = append(parts, col)
	}
	// stable pages when sort keys tie
	parts = append(parts, "id")
	return strings.Join(parts, ", ")
}

func (r *postgresRepo) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("transaction")
	}
	return tx, err
}

func (r *postgresRepo) SummaryRows(ctx context.Context, accountID uuid.UUID) ([]SummaryRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT currency, account_currency, type, SUM(amount), SUM(account_amount)
		FROM transactions
		WHERE account_id = $1
		GROUP BY currency, account_currency, type
		ORDER BY currency, account_currency, type`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var row SummaryRow
		if err := rows.Scan(&row.Currency, &row.AccountCurrency, &row.Type, &row.Amount, &row.AccountAmount); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (*Transaction, error) {
	tx := &Transaction{}
	var (
		processor                                         sql.NullString
		accountID, pledgeID, rewardID, subID, payoutTxnID uuid.NullUUID
	)
	if err := row.Scan(&tx.ID, &tx.Type, &processor, &tx.Currency, &tx.Amount, &tx.AccountCurrency,
		&tx.AccountAmount, &accountID, &pledgeID, &rewardID, &subID, &payoutTxnID, &tx.CreatedAt); err != nil {
		return nil, err
	}
	if processor.Valid {
		tx.Processor = &processor.String
	}
	tx.AccountID = nullUUID(accountID)
	tx.PledgeID = nullUUID(pledgeID)
	tx.IssueRewardID = nullUUID(rewardID)
	tx.SubscriptionID = nullUUID(subID)
	tx.PayoutTransactionID = nullUUID(payoutTxnID)
	return tx, nil
}

func nullUUID(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}
