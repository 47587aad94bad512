package fulfillment

import (
	"context"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/modules/benefit"
)

// Registry maps benefit types to their Service. It is built once at startup
// and never modified.
type Registry struct {
	services map[benefit.Type]Service
}

// NewRegistry copies services into a new Registry.
func NewRegistry(services map[benefit.Type]Service) *Registry {
	r := &Registry{services: make(map[benefit.Type]Service, len(services))}
	for t, s := range services {
		r.services[t] = s
	}
	return r
}

func (r *Registry) Lookup(t benefit.Type) (Service, error) {
	s, ok := r.services[t]
	if !ok {
		return nil, apperror.Invalid("type", "no fulfillment service for benefit type %q", t)
	}
	return s, nil
}

func (r *Registry) RequiresUpdate(ctx context.Context, b *benefit.Benefit, previous benefit.Properties) (bool, error) {
	s, err := r.Lookup(b.Type)
	if err != nil {
		return false, err
	}
	return s.RequiresUpdate(ctx, b, previous)
}
