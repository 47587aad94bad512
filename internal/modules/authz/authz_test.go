package authz

import (
	"context"
	"testing"

	"github.com/georgemunganga/fanbase-backend/internal/modules/account"
	"github.com/georgemunganga/fanbase-backend/internal/modules/subscription"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanAccount(t *testing.T) {
	admin := &user.User{ID: uuid.New()}
	other := &user.User{ID: uuid.New()}
	acct := &account.Account{ID: uuid.New(), AdminID: admin.ID}
	a := NewService()
	ctx := context.Background()

	assert.True(t, a.Can(ctx, admin, Read, acct))
	assert.True(t, a.Can(ctx, admin, Write, acct))
	assert.False(t, a.Can(ctx, other, Read, acct))
	assert.False(t, a.Can(ctx, nil, Read, acct))
	assert.False(t, a.Can(ctx, admin, AccessType("delete"), acct))
	assert.False(t, a.Can(ctx, admin, Read, "not-a-resource"))
}

func TestCanSubscription(t *testing.T) {
	subscriber := &user.User{ID: uuid.New()}
	other := &user.User{ID: uuid.New()}
	sub := &subscription.Subscription{ID: uuid.New(), UserID: subscriber.ID}
	a := NewService()
	ctx := context.Background()

	assert.True(t, a.Can(ctx, subscriber, Read, sub))
	assert.True(t, a.Can(ctx, subscriber, Write, sub))
	assert.False(t, a.Can(ctx, other, Read, sub))
	assert.False(t, a.Can(ctx, other, Write, sub))
	assert.False(t, a.Can(ctx, subscriber, Read, (*subscription.Subscription)(nil)))
}
