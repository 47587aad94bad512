// Package fulfillment holds the per-type benefit services that give and take
// away access, and the registry the grant orchestrator dispatches through.
package fulfillment

import (
	"context"

	"github.com/georgemunganga/fanbase-backend/internal/modules/benefit"
	"github.com/georgemunganga/fanbase-backend/internal/modules/subscription"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
)

// Properties is the per-grant state a service returns and receives back on
// the next call. The returned value replaces what was stored, so a service
// must copy forward every key it still needs.
type Properties map[string]interface{}

// Clone returns a shallow copy that is safe to modify.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the value under key when it is a string.
func (p Properties) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// GrantOptions qualify a grant call. Update marks a re-grant after the
// benefit changed; Attempt counts from 1 and grows with every retry.
type GrantOptions struct {
	Update  bool
	Attempt int
}

// Service fulfills one benefit type. Grant and Revoke must be safe to repeat
// with the same inputs: implementations check the external state before
// acting. Errors are either *RetriableError, *PreconditionError or fatal.
type Service interface {
	Grant(ctx context.Context, b *benefit.Benefit, sub *subscription.Subscription, u *user.User,
		props Properties, opts GrantOptions) (Properties, error)
	Revoke(ctx context.Context, b *benefit.Benefit, sub *subscription.Subscription, u *user.User,
		props Properties, attempt int) (Properties, error)
	// RequiresUpdate reports whether existing grantees must be re-granted
	// after the benefit's properties changed from previous.
	RequiresUpdate(ctx context.Context, b *benefit.Benefit, previous benefit.Properties) (bool, error)
}
