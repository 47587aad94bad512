package transaction

import (
	"context"
	"errors"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/modules/account"
	"github.com/georgemunganga/fanbase-backend/internal/modules/authz"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
	"github.com/google/uuid"
)

// Service answers ledger queries on behalf of a user.
type Service interface {
	Search(ctx context.Context, subject *user.User, accountID uuid.UUID, filter SearchFilter) (*Page, error)
	Lookup(ctx context.Context, subject *user.User, id uuid.UUID) (*Transaction, error)
	GetSummary(ctx context.Context, subject *user.User, accountID uuid.UUID) ([]*Summary, error)
}

type service struct {
	repo     Repository
	accounts account.Repository
	authz    authz.Authorizer
}

func NewService(repo Repository, accounts account.Repository, authorizer authz.Authorizer) Service {
	return &service{repo: repo, accounts: accounts, authz: authorizer}
}

func (s *service) Search(ctx context.Context, subject *user.User, accountID uuid.UUID, filter SearchFilter) (*Page, error) {
	if err := s.authorizeAccount(ctx, subject, accountID); err != nil {
		return nil, err
	}
	if err := filter.normalize(); err != nil {
		return nil, err
	}
	items, total, err := s.repo.Search(ctx, accountID, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Transaction{}
	}
	return &Page{Items: items, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// Lookup hides transactions the subject cannot read behind the same not
// found error as missing ones.
func (s *service) Lookup(ctx context.Context, subject *user.User, id uuid.UUID) (*Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.AccountID == nil {
		return nil, apperror.NotFound("transaction")
	}
	acc, err := s.accounts.GetAccount(ctx, *tx.AccountID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NotFound("transaction")
	}
	if err != nil {
		return nil, err
	}
	if !s.authz.Can(ctx, subject, authz.Read, acc) {
		return nil, apperror.NotFound("transaction")
	}
	return tx, nil
}

func (s *service) GetSummary(ctx context.Context, subject *user.User, accountID uuid.UUID) ([]*Summary, error) {
	if err := s.authorizeAccount(ctx, subject, accountID); err != nil {
		return nil, err
	}
	rows, err := s.repo.SummaryRows(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return summarize(rows), nil
}

func (s *service) authorizeAccount(ctx context.Context, subject *user.User, accountID uuid.UUID) error {
	acc, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !s.authz.Can(ctx, subject, authz.Read, acc) {
		return apperror.PermissionDenied("read account transactions")
	}
	return nil
}

// summarize folds grouped rows into one Summary per currency pair, in the
// order the pairs first appear.
func summarize(rows []SummaryRow) []*Summary {
	type pair struct{ currency, accountCurrency string }
	byPair := map[pair]*Summary{}
	out := []*Summary{}
	for _, row := range rows {
		k := pair{row.Currency, row.AccountCurrency}
		sum, ok := byPair[k]
		if !ok {
			sum = &Summary{Currency: row.Currency, AccountCurrency: row.AccountCurrency}
			byPair[k] = sum
			out = append(out, sum)
		}
		sum.Balance.Amount += row.Amount
		sum.Balance.AccountAmount += row.AccountAmount
		if row.Type == TypePayout {
			sum.Payout.Amount += row.Amount
			sum.Payout.AccountAmount += row.AccountAmount
		}
	}
	return out
}
