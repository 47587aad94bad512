// Package authz answers whether a user may act on a resource.
package authz

import (
	"context"

	"github.com/georgemunganga/fanbase-backend/internal/modules/account"
	"github.com/georgemunganga/fanbase-backend/internal/modules/subscription"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
)

type AccessType string

const (
	Read  AccessType = "read"
	Write AccessType = "write"
)

// Authorizer is the capability check consumed by the ledger and the grant
// endpoints.
type Authorizer interface {
	Can(ctx context.Context, subject *user.User, access AccessType, resource interface{}) bool
}

type service struct{}

func NewService() Authorizer {
	return service{}
}

// Can reports whether subject holds access on resource. Unknown resource
// kinds are denied.
func (service) Can(ctx context.Context, subject *user.User, access AccessType, resource interface{}) bool {
	if subject == nil {
		return false
	}
	switch r := resource.(type) {
	case *account.Account:
		return canAccount(subject, access, r)
	case *subscription.Subscription:
		return canSubscription(subject, access, r)
	default:
		return false
	}
}

func canAccount(subject *user.User, access AccessType, a *account.Account) bool {
	if a == nil {
		return false
	}
	switch access {
	case Read, Write:
		return a.AdminID == subject.ID
	}
	return false
}

// Only the subscriber may see a subscription's grants or reconcile it.
func canSubscription(subject *user.User, access AccessType, sub *subscription.Subscription) bool {
	if sub == nil {
		return false
	}
	switch access {
	case Read, Write:
		return sub.UserID == subject.ID
	}
	return false
}
