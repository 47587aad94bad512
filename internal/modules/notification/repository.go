package notification

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateNotification(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Notification, error)
}
