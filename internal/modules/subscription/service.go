package subscription

import (
	"context"
	"time"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/modules/tier"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Lifecycle receives subscription events that affect benefit fulfillment.
type Lifecycle interface {
	SubscriptionActivated(ctx context.Context, sub *Subscription) error
	SubscriptionTierChanged(ctx context.Context, sub *Subscription, previousTierID uuid.UUID) error
	SubscriptionEnded(ctx context.Context, sub *Subscription) error
}

// Service defines subscription lifecycle logic.
type Service interface {
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error)
	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListBySubscriber(ctx context.Context, userID uuid.UUID) ([]*Subscription, error)
	Renew(ctx context.Context, id uuid.UUID, req RenewRequest) (*Subscription, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, req UpdateStatusRequest) (*Subscription, error)
	ChangeTier(ctx context.Context, id uuid.UUID, req ChangeTierRequest) (*Subscription, error)
	Cancel(ctx context.Context, id uuid.UUID, req CancelRequest) (*Subscription, error)
}

type service struct {
	repo      Repository
	tiers     tier.Service
	lifecycle Lifecycle
	now       func() time.Time
}

func NewService(repo Repository, tiers tier.Service, lifecycle Lifecycle) Service {
	return &service{repo: repo, tiers: tiers, lifecycle: lifecycle, now: time.Now}
}

func (s *service) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error) {
	if req.UserID == uuid.Nil {
		return nil, apperror.Invalid("user_id", "is required")
	}
	if req.Status == "" {
		req.Status = StatusIncomplete
	}
	if req.Status != StatusIncomplete && !req.Status.Active() {
		return nil, apperror.Invalid("status", "new subscriptions must be incomplete, trialing or active")
	}

	t, err := s.tiers.GetTier(ctx, req.TierID)
	if err != nil {
		return nil, err
	}
	if t.IsArchived {
		return nil, apperror.Invalid("subscription_tier_id", "tier is archived")
	}

	now := s.now()
	sub := &Subscription{
		ID:                 uuid.New(),
		Status:             req.Status,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   req.PeriodEnd,
		PriceAmount:        t.PriceAmount,
		PriceCurrency:      t.PriceCurrency,
		UserID:             req.UserID,
		OrganizationID:     req.OrganizationID,
		TierID:             t.ID,
	}
	if sub.IsActive() {
		sub.StartedAt = &now
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	log.Info().
		Str("subscription_id", sub.ID.String()).
		Str("tier_id", t.ID.String()).
		Str("status", string(sub.Status)).
		Msg("subscription created")

	if sub.IsActive() {
		s.fire(sub, s.lifecycle.SubscriptionActivated(ctx, sub))
	}
	return sub, nil
}

func (s *service) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.repo.GetSubscription(ctx, id)
}

func (s *service) ListBySubscriber(ctx context.Context, userID uuid.UUID) ([]*Subscription, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Renew records a paid period. A renewal brings benefits back in line with
// the tier, so activation fires even when the status did not change.
func (s *service) Renew(ctx context.Context, id uuid.UUID, req RenewRequest) (*Subscription, error) {
	if !req.PeriodEnd.After(req.PeriodStart) {
		return nil, apperror.Invalid("current_period_end", "must be after current_period_start")
	}
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != StatusActive && !CanTransition(sub.Status, StatusActive) {
		return nil, apperror.Invalid("status", "cannot renew a %s subscription", sub.Status)
	}

	sub.Status = StatusActive
	sub.CurrentPeriodStart = req.PeriodStart
	periodEnd := req.PeriodEnd
	sub.CurrentPeriodEnd = &periodEnd
	if sub.StartedAt == nil {
		now := s.now()
		sub.StartedAt = &now
	}
	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	s.fire(sub, s.lifecycle.SubscriptionActivated(ctx, sub))
	return sub, nil
}

func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, req UpdateStatusRequest) (*Subscription, error) {
	if !req.Status.Valid() {
		return nil, apperror.Invalid("status", "unknown status %q", req.Status)
	}
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, sub, req.Status)
}

// ChangeTier moves the subscription to another tier of the same creator. The
// price snapshot stays as it was at subscribe time.
func (s *service) ChangeTier(ctx context.Context, id uuid.UUID, req ChangeTierRequest) (*Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status.Ended() {
		return nil, apperror.Invalid("status", "cannot change tier of a %s subscription", sub.Status)
	}
	if sub.TierID == req.TierID {
		return nil, apperror.Invalid("subscription_tier_id", "subscription is already on this tier")
	}

	current, err := s.tiers.GetTier(ctx, sub.TierID)
	if err != nil {
		return nil, err
	}
	next, err := s.tiers.GetTier(ctx, req.TierID)
	if err != nil {
		return nil, err
	}
	if next.IsArchived {
		return nil, apperror.Invalid("subscription_tier_id", "tier is archived")
	}
	if !next.Scope.Equal(current.Scope) {
		return nil, apperror.Invalid("subscription_tier_id", "tier belongs to another creator")
	}

	previous := sub.TierID
	sub.TierID = next.ID
	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	log.Info().
		Str("subscription_id", sub.ID.String()).
		Str("from_tier_id", previous.String()).
		Str("to_tier_id", next.ID.String()).
		Msg("subscription tier changed")

	// Fired outside active too, so a past_due subscription drops the old
	// tier's benefits now and gains the new ones when it reactivates.
	s.fire(sub, s.lifecycle.SubscriptionTierChanged(ctx, sub, previous))
	return sub, nil
}

// Cancel ends the subscription now, or flags it to end with the current period.
func (s *service) Cancel(ctx context.Context, id uuid.UUID, req CancelRequest) (*Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.AtPeriodEnd {
		return s.transition(ctx, sub, StatusCanceled)
	}
	if sub.Status.Ended() {
		return nil, apperror.Invalid("status", "subscription is already %s", sub.Status)
	}
	sub.CancelAtPeriodEnd = true
	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *service) transition(ctx context.Context, sub *Subscription, next Status) (*Subscription, error) {
	if sub.Status == next {
		return sub, nil
	}
	if !CanTransition(sub.Status, next) {
		return nil, apperror.Invalid("status", "cannot transition from %s to %s", sub.Status, next)
	}

	wasActive := sub.IsActive()
	sub.Status = next
	now := s.now()
	if next.Active() && sub.StartedAt == nil {
		sub.StartedAt = &now
	}
	if next.Ended() {
		sub.EndedAt = &now
	}
	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	log.Info().
		Str("subscription_id", sub.ID.String()).
		Str("status", string(next)).
		Msg("subscription status changed")

	switch {
	case next.Ended():
		s.fire(sub, s.lifecycle.SubscriptionEnded(ctx, sub))
	case next.Active() && !wasActive:
		s.fire(sub, s.lifecycle.SubscriptionActivated(ctx, sub))
	}
	return sub, nil
}

// fire logs a failed fulfillment trigger. The subscription change itself is
// already stored; an admin reconcile catches the benefits up.
func (s *service) fire(sub *Subscription, err error) {
	if err != nil {
		log.Error().Err(err).Str("subscription_id", sub.ID.String()).Msg("failed to schedule benefit fulfillment")
	}
}
