package grant

import (
	"context"
	"testing"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/modules/authz"
	"github.com/georgemunganga/fanbase-backend/internal/modules/subscription"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceRestrictsGrantsToSubscriber(t *testing.T) {
	f := newFixture(Options{})
	b := f.benefit()
	sub := f.subscription(f.tier(b), subscription.StatusActive)
	f.grants.put(sub.ID, b.ID, f.user.ID, StateGranted)
	svc := NewService(f.o, authz.NewService())
	stranger := &user.User{ID: uuid.New()}
	ctx := context.Background()

	grants, err := svc.ListGrants(ctx, f.user, sub.ID)
	require.NoError(t, err)
	assert.Len(t, grants, 1)

	_, err = svc.ListGrants(ctx, stranger, sub.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.ReconcileSubscription(ctx, stranger, sub.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Empty(t, f.sched.drain(t), "nothing queued for a stranger")

	_, err = svc.ListGrants(ctx, f.user, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

type readOnly struct{ authz.Authorizer }

func (r readOnly) Can(ctx context.Context, subject *user.User, access authz.AccessType, resource interface{}) bool {
	return access == authz.Read && r.Authorizer.Can(ctx, subject, access, resource)
}

func TestServiceReconcileRequiresWrite(t *testing.T) {
	f := newFixture(Options{})
	b := f.benefit()
	sub := f.subscription(f.tier(b), subscription.StatusActive)
	ctx := context.Background()

	_, err := NewService(f.o, readOnly{authz.NewService()}).ReconcileSubscription(ctx, f.user, sub.ID)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	result, err := NewService(f.o, authz.NewService()).ReconcileSubscription(ctx, f.user, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Grants)
}
