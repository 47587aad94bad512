package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a backer subscription.
type Status string

const (
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled"
	StatusUnpaid            Status = "unpaid"
)

// validTransitions defines allowed subscription state machine transitions.
var validTransitions = map[Status][]Status{
	StatusIncomplete:        {StatusActive, StatusTrialing, StatusIncompleteExpired, StatusCanceled},
	StatusTrialing:          {StatusActive, StatusPastDue, StatusCanceled, StatusUnpaid},
	StatusActive:            {StatusPastDue, StatusCanceled, StatusUnpaid},
	StatusPastDue:           {StatusActive, StatusCanceled, StatusUnpaid},
	StatusUnpaid:            {StatusActive, StatusCanceled},
	StatusCanceled:          {},
	StatusIncompleteExpired: {},
}

// CanTransition returns true if the subscription transition is valid.
func CanTransition(current, next Status) bool {
	for _, s := range validTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// Active reports whether benefits should be granted in this status.
func (s Status) Active() bool {
	return s == StatusActive || s == StatusTrialing
}

// Ended reports whether the subscription is over. past_due is a grace period
// and does not count.
func (s Status) Ended() bool {
	return s == StatusCanceled || s == StatusUnpaid || s == StatusIncompleteExpired
}

// Subscription links a subscriber to a tier. PriceAmount and PriceCurrency are
// the tier price when the subscription was created and never change.
type Subscription struct {
	ID                 uuid.UUID  `json:"id"`
	Status             Status     `json:"status"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
	PriceAmount        int64      `json:"price_amount"`
	PriceCurrency      string     `json:"price_currency"`
	UserID             uuid.UUID  `json:"user_id"`
	OrganizationID     *uuid.UUID `json:"organization_id,omitempty"`
	TierID             uuid.UUID  `json:"subscription_tier_id"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (s *Subscription) IsActive() bool { return s.Status.Active() }

// ── Requests ──────────────────────────────────────────────────────────────────

// CreateSubscriptionRequest is the payload for subscribing to a tier. Status
// defaults to incomplete until payment confirms it.
type CreateSubscriptionRequest struct {
	UserID         uuid.UUID  `json:"user_id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	TierID         uuid.UUID  `json:"subscription_tier_id"`
	Status         Status     `json:"status,omitempty"`
	PeriodEnd      *time.Time `json:"current_period_end,omitempty"`
}

// RenewRequest starts a new billing period.
type RenewRequest struct {
	PeriodStart time.Time `json:"current_period_start"`
	PeriodEnd   time.Time `json:"current_period_end"`
}

type UpdateStatusRequest struct {
	Status Status `json:"status"`
}

// ChangeTierRequest is the payload for upgrading or downgrading.
type ChangeTierRequest struct {
	TierID uuid.UUID `json:"subscription_tier_id"`
}

type CancelRequest struct {
	AtPeriodEnd bool `json:"at_period_end"`
}
