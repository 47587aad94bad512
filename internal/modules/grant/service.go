package grant

import (
	"context"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/modules/authz"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
	"github.com/google/uuid"
)

// Service is the part of the Orchestrator exposed over HTTP, checked
// against the caller.
type Service interface {
	ListGrants(ctx context.Context, subject *user.User, subscriptionID uuid.UUID) ([]*Grant, error)
	ReconcileSubscription(ctx context.Context, subject *user.User, subscriptionID uuid.UUID) (*ReconcileResult, error)
}

type service struct {
	orchestrator *Orchestrator
	authz        authz.Authorizer
}

func NewService(orchestrator *Orchestrator, authorizer authz.Authorizer) Service {
	return &service{orchestrator: orchestrator, authz: authorizer}
}

func (s *service) ListGrants(ctx context.Context, subject *user.User, subscriptionID uuid.UUID) ([]*Grant, error) {
	if err := s.authorize(ctx, subject, authz.Read, subscriptionID); err != nil {
		return nil, err
	}
	return s.orchestrator.ListGrants(ctx, subscriptionID)
}

func (s *service) ReconcileSubscription(ctx context.Context, subject *user.User, subscriptionID uuid.UUID) (*ReconcileResult, error) {
	if err := s.authorize(ctx, subject, authz.Write, subscriptionID); err != nil {
		return nil, err
	}
	return s.orchestrator.ReconcileSubscription(ctx, subscriptionID)
}

// authorize hides subscriptions the subject cannot read behind not found.
func (s *service) authorize(ctx context.Context, subject *user.User, access authz.AccessType, subscriptionID uuid.UUID) error {
	sub, err := s.orchestrator.Subscriptions.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if !s.authz.Can(ctx, subject, authz.Read, sub) {
		return apperror.NotFound("subscription")
	}
	if access != authz.Read && !s.authz.Can(ctx, subject, access, sub) {
		return apperror.PermissionDenied("reconcile subscription")
	}
	return nil
}
