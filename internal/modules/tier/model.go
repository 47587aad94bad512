package tier

import (
	"time"

	"github.com/georgemunganga/fanbase-backend/internal/modules/benefit"
	"github.com/google/uuid"
)

// Type is the audience a tier is priced for.
type Type string

const (
	TypeIndividual Type = "individual"
	TypeBusiness   Type = "business"
)

const (
	NameMinLength        = 3
	NameMaxLength        = 24
	DescriptionMaxLength = 240

	MaximumPriceAmount = 99999999
	Currency           = "USD"
)

// Tier is a priced subscription offering.
type Tier struct {
	ID            uuid.UUID `json:"id"`
	Type          Type      `json:"type"`
	Name          string    `json:"name"`
	Description   *string   `json:"description,omitempty"`
	IsHighlighted bool      `json:"is_highlighted"`
	PriceAmount   int64     `json:"price_amount"`
	PriceCurrency string    `json:"price_currency"`
	IsArchived    bool      `json:"is_archived"`
	benefit.Scope
	Benefits  []*benefit.Benefit `json:"benefits"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// BenefitIDs returns the ids of the attached benefits in order.
func (t *Tier) BenefitIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(t.Benefits))
	for i, b := range t.Benefits {
		ids[i] = b.ID
	}
	return ids
}

// HasBenefit reports whether benefitID is attached to the tier.
func (t *Tier) HasBenefit(benefitID uuid.UUID) bool {
	for _, b := range t.Benefits {
		if b.ID == benefitID {
			return true
		}
	}
	return false
}

// ── Requests ──────────────────────────────────────────────────────────────────

// CreateTierRequest is the payload for creating a tier.
type CreateTierRequest struct {
	Type           Type       `json:"type"`
	Name           string     `json:"name"`
	Description    *string    `json:"description,omitempty"`
	IsHighlighted  bool       `json:"is_highlighted,omitempty"`
	PriceAmount    int64      `json:"price_amount"`
	PriceCurrency  string     `json:"price_currency,omitempty"` // defaults to USD
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	RepositoryID   *uuid.UUID `json:"repository_id,omitempty"`
}

// UpdateTierRequest changes tier attributes. Omitted fields are left unchanged.
type UpdateTierRequest struct {
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	IsHighlighted *bool   `json:"is_highlighted,omitempty"`
	PriceAmount   *int64  `json:"price_amount,omitempty"`
	PriceCurrency *string `json:"price_currency,omitempty"`
}

// UpdateBenefitsRequest replaces the ordered set of benefits on a tier.
type UpdateBenefitsRequest struct {
	Benefits []uuid.UUID `json:"benefits"`
}
