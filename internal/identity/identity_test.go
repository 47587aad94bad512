package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestUserIDRoundTrip(t *testing.T) {
	_, ok := UserID(context.Background())
	assert.False(t, ok)

	id := uuid.New()
	got, ok := UserID(WithUserID(context.Background(), id))
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = UserID(WithUserID(context.Background(), uuid.Nil))
	assert.False(t, ok)
}
