package benefit

import (
	"encoding/json"
	"time"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/google/uuid"
)

// Type tags a benefit variant.
type Type string

const (
	TypeArticles Type = "articles"
	TypeAds      Type = "ads"
	TypeDiscord  Type = "discord"
	TypeCustom   Type = "custom"
)

// Types lists every known benefit variant.
var Types = []Type{TypeArticles, TypeAds, TypeDiscord, TypeCustom}

func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

const (
	DescriptionMinLength = 3
	DescriptionMaxLength = 42
)

// ── Scope ─────────────────────────────────────────────────────────────────────

// Scope names the creator owning a tier or benefit: an organization or a
// repository, never both.
type Scope struct {
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	RepositoryID   *uuid.UUID `json:"repository_id,omitempty"`
}

func OrganizationScope(id uuid.UUID) Scope { return Scope{OrganizationID: &id} }

func RepositoryScope(id uuid.UUID) Scope { return Scope{RepositoryID: &id} }

// Validate enforces that exactly one of organization_id and repository_id is set.
func (s Scope) Validate() error {
	if (s.OrganizationID == nil) == (s.RepositoryID == nil) {
		return apperror.Invalid("scope", "exactly one of organization_id or repository_id is required")
	}
	return nil
}

// ID returns whichever id is set.
func (s Scope) ID() uuid.UUID {
	if s.OrganizationID != nil {
		return *s.OrganizationID
	}
	if s.RepositoryID != nil {
		return *s.RepositoryID
	}
	return uuid.Nil
}

func (s Scope) Equal(other Scope) bool {
	return equalID(s.OrganizationID, other.OrganizationID) && equalID(s.RepositoryID, other.RepositoryID)
}

func equalID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ── Benefit ───────────────────────────────────────────────────────────────────

// Benefit is a typed perk granted to subscribers of tiers that include it.
type Benefit struct {
	ID              uuid.UUID  `json:"id"`
	Type            Type       `json:"type"`
	Description     string     `json:"description"`
	Selectable      bool       `json:"selectable"`
	Deletable       bool       `json:"deletable"`
	IsTaxApplicable bool       `json:"is_tax_applicable"`
	Properties      Properties `json:"properties"`
	Scope
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (b *Benefit) Deleted() bool { return b.DeletedAt != nil }

// ── Requests ──────────────────────────────────────────────────────────────────

// CreateBenefitRequest is the payload for creating a creator benefit. The
// properties shape depends on Type; discord expects guild_token and role_id.
type CreateBenefitRequest struct {
	Type            Type            `json:"type"`
	Description     string          `json:"description"`
	IsTaxApplicable bool            `json:"is_tax_applicable,omitempty"`
	OrganizationID  *uuid.UUID      `json:"organization_id,omitempty"`
	RepositoryID    *uuid.UUID      `json:"repository_id,omitempty"`
	Properties      json.RawMessage `json:"properties"`
}

// UpdateBenefitRequest changes the description and, except for articles, the
// properties. Omitted fields are left unchanged.
type UpdateBenefitRequest struct {
	Description *string         `json:"description,omitempty"`
	Properties  json.RawMessage `json:"properties,omitempty"`
}
