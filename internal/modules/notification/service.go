package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultListLimit = 50

// Service stores notifications for users.
type Service interface {
	Notify(ctx context.Context, userID uuid.UUID, typ Type, payload interface{}) error
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Notification, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Notify(ctx context.Context, userID uuid.UUID, typ Type, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", typ, err)
	}
	n := &Notification{ID: uuid.New(), UserID: userID, Type: typ, Payload: raw}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("store %s notification: %w", typ, err)
	}
	log.Info().Str("user_id", userID.String()).Str("type", string(typ)).Msg("notification created")
	return nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	return s.repo.ListByUser(ctx, userID, limit)
}
