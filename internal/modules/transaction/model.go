package transaction

import (
	"strings"
	"time"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/google/uuid"
)

// Type is the kind of money movement a transaction records.
type Type string

const (
	TypePayment      Type = "payment"
	TypeProcessorFee Type = "processor_fee"
	TypeRefund       Type = "refund"
	TypeDispute      Type = "dispute"
	TypeBalance      Type = "balance"
	TypePayout       Type = "payout"
)

func (t Type) Valid() bool {
	switch t {
	case TypePayment, TypeProcessorFee, TypeRefund, TypeDispute, TypeBalance, TypePayout:
		return true
	}
	return false
}

// Transaction is an immutable ledger entry. Amounts are in minor units;
// AccountAmount is Amount converted to the account's currency.
type Transaction struct {
	ID                  uuid.UUID  `json:"id"`
	Type                Type       `json:"type"`
	Processor           *string    `json:"processor,omitempty"`
	Currency            string     `json:"currency"`
	Amount              int64      `json:"amount"`
	AccountCurrency     string     `json:"account_currency"`
	AccountAmount       int64      `json:"account_amount"`
	AccountID           *uuid.UUID `json:"account_id,omitempty"`
	PledgeID            *uuid.UUID `json:"pledge_id,omitempty"`
	IssueRewardID       *uuid.UUID `json:"issue_reward_id,omitempty"`
	SubscriptionID      *uuid.UUID `json:"subscription_id,omitempty"`
	PayoutTransactionID *uuid.UUID `json:"payout_transaction_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// ── Search ───────────────────────────────────────────────

type SortField string

const (
	SortCreatedAt SortField = "created_at"
	SortAmount    SortField = "amount"
)

type Sort struct {
	Field      SortField
	Descending bool
}

// DefaultSorting is newest first.
var DefaultSorting = []Sort{{Field: SortCreatedAt, Descending: true}}

// ParseSorting reads criteria like "-created_at" or "amount". A leading "-"
// sorts descending.
func ParseSorting(values []string) ([]Sort, error) {
	var sorting []Sort
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			s := Sort{Field: SortField(strings.TrimPrefix(part, "-")), Descending: strings.HasPrefix(part, "-")}
			if s.Field != SortCreatedAt && s.Field != SortAmount {
				return nil, apperror.Invalid("sorting", "unknown sort field %q", s.Field)
			}
			sorting = append(sorting, s)
		}
	}
	if len(sorting) == 0 {
		return DefaultSorting, nil
	}
	return sorting, nil
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// SearchFilter narrows Search. Page counts from 1.
type SearchFilter struct {
	Type    *Type
	Page    int
	Limit   int
	Sorting []Sort
}

func (f *SearchFilter) normalize() error {
	if f.Type != nil && !f.Type.Valid() {
		return apperror.Invalid("type", "unknown transaction type %q", *f.Type)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if len(f.Sorting) == 0 {
		f.Sorting = DefaultSorting
	}
	return nil
}

func (f SearchFilter) offset() int { return (f.Page - 1) * f.Limit }

// Page is one page of search results plus the total match count.
type Page struct {
	Items []*Transaction `json:"items"`
	Total int            `json:"total_count"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// ── Summary ──────────────────────────────────────────────

// SummaryRow is one grouped sum as returned by the ledger query.
type SummaryRow struct {
	Currency        string
	AccountCurrency string
	Type            Type
	Amount          int64
	AccountAmount   int64
}

type Amount struct {
	Amount        int64 `json:"amount"`
	AccountAmount int64 `json:"account_amount"`
}

// Summary totals an account's ledger for one currency pair. Balance sums
// every type; Payout sums payouts only.
type Summary struct {
	Currency        string `json:"currency"`
	AccountCurrency string `json:"account_currency"`
	Balance         Amount `json:"balance"`
	Payout          Amount `json:"payout"`
}
