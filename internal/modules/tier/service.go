package tier

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/modules/benefit"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service defines tier configuration logic.
type Service interface {
	CreateTier(ctx context.Context, req CreateTierRequest) (*Tier, error)
	GetTier(ctx context.Context, id uuid.UUID) (*Tier, error)
	ListTiers(ctx context.Context, filter ScopeFilter) ([]*Tier, error)
	UpdateTier(ctx context.Context, id uuid.UUID, req UpdateTierRequest) (*Tier, error)
	ArchiveTier(ctx context.Context, id uuid.UUID) (*Tier, error)
	UpdateBenefits(ctx context.Context, id uuid.UUID, req UpdateBenefitsRequest) (*Tier, error)
}

type service struct {
	repo     Repository
	benefits benefit.Service
}

func NewService(repo Repository, benefits benefit.Service) Service {
	return &service{repo: repo, benefits: benefits}
}

// CreateTier stores a tier and attaches the scope's articles benefits to it,
// seeding them on the scope's first tier.
func (s *service) CreateTier(ctx context.Context, req CreateTierRequest) (*Tier, error) {
	scope := benefit.Scope{OrganizationID: req.OrganizationID, RepositoryID: req.RepositoryID}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if req.Type != TypeIndividual && req.Type != TypeBusiness {
		return nil, apperror.Invalid("type", "must be %q or %q", TypeIndividual, TypeBusiness)
	}
	if req.PriceCurrency == "" {
		req.PriceCurrency = Currency
	}

	t := &Tier{
		ID:            uuid.New(),
		Type:          req.Type,
		IsHighlighted: req.IsHighlighted,
		Scope:         scope,
	}
	var err error
	if t.Name, err = validateName(req.Name); err != nil {
		return nil, err
	}
	if t.Description, err = validateDescription(req.Description); err != nil {
		return nil, err
	}
	if err := validatePrice(req.PriceAmount, req.PriceCurrency); err != nil {
		return nil, err
	}
	t.PriceAmount, t.PriceCurrency = req.PriceAmount, strings.ToUpper(req.PriceCurrency)

	articles, err := s.benefits.EnsureArticlesBenefits(ctx, scope)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(articles))
	for i, b := range articles {
		ids[i] = b.ID
	}
	if err := s.repo.CreateTier(ctx, t, ids); err != nil {
		return nil, err
	}
	t.Benefits = articles

	log.Info().Str("tier_id", t.ID.String()).Str("scope_id", scope.ID().String()).Msg("tier created")
	return t, nil
}

func (s *service) GetTier(ctx context.Context, id uuid.UUID) (*Tier, error) {
	return s.repo.GetTier(ctx, id)
}

func (s *service) ListTiers(ctx context.Context, filter ScopeFilter) ([]*Tier, error) {
	return s.repo.ListTiers(ctx, filter)
}

func (s *service) UpdateTier(ctx context.Context, id uuid.UUID, req UpdateTierRequest) (*Tier, error) {
	t, err := s.repo.GetTier(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsArchived {
		return nil, apperror.Invalid("tier", "archived tiers cannot be changed")
	}

	if req.Name != nil {
		if t.Name, err = validateName(*req.Name); err != nil {
			return nil, err
		}
	}
	if req.Description != nil {
		if t.Description, err = validateDescription(req.Description); err != nil {
			return nil, err
		}
	}
	if req.IsHighlighted != nil {
		t.IsHighlighted = *req.IsHighlighted
	}
	amount, currency := t.PriceAmount, t.PriceCurrency
	if req.PriceAmount != nil {
		amount = *req.PriceAmount
	}
	if req.PriceCurrency != nil {
		currency = *req.PriceCurrency
	}
	if err := validatePrice(amount, currency); err != nil {
		return nil, err
	}
	t.PriceAmount, t.PriceCurrency = amount, strings.ToUpper(currency)

	if err := s.repo.UpdateTier(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ArchiveTier hides a tier from new subscribers. There is no way back.
func (s *service) ArchiveTier(ctx context.Context, id uuid.UUID) (*Tier, error) {
	t, err := s.repo.GetTier(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsArchived {
		return t, nil
	}
	if err := s.repo.ArchiveTier(ctx, id); err != nil {
		return nil, err
	}
	t.IsArchived = true
	return t, nil
}

// UpdateBenefits replaces the tier's ordered benefits. Creators can only add
// or remove selectable benefits of the tier's own scope; non-selectable ones
// already attached stay attached. Existing grants are left alone.
func (s *service) UpdateBenefits(ctx context.Context, id uuid.UUID, req UpdateBenefitsRequest) (*Tier, error) {
	t, err := s.repo.GetTier(ctx, id)
	if err != nil {
		return nil, err
	}

	requested := make(map[uuid.UUID]bool, len(req.Benefits))
	var ordered []*benefit.Benefit
	for _, benefitID := range req.Benefits {
		if requested[benefitID] {
			continue
		}
		requested[benefitID] = true

		b, err := s.benefits.GetBenefit(ctx, benefitID)
		if err != nil {
			return nil, err
		}
		if !b.Scope.Equal(t.Scope) {
			return nil, apperror.Invalid("benefits", "benefit %s belongs to another creator", b.ID)
		}
		if !b.Selectable && !t.HasBenefit(b.ID) {
			return nil, apperror.Invalid("benefits", "benefit %s cannot be added to a tier", b.ID)
		}
		ordered = append(ordered, b)
	}
	for _, b := range t.Benefits {
		if !b.Selectable && !requested[b.ID] {
			ordered = append(ordered, b)
		}
	}

	ids := make([]uuid.UUID, len(ordered))
	for i, b := range ordered {
		ids[i] = b.ID
	}
	if err := s.repo.SetTierBenefits(ctx, t.ID, ids); err != nil {
		return nil, err
	}
	t.Benefits = ordered
	return t, nil
}

// ── Validation ────────────────────────────────────────────────────────────────

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < NameMinLength || n > NameMaxLength {
		return "", apperror.Invalid("name", "must be between %d and %d characters", NameMinLength, NameMaxLength)
	}
	return name, nil
}

func validateDescription(description *string) (*string, error) {
	if description == nil {
		return nil, nil
	}
	d := strings.TrimSpace(*description)
	if d == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(d) > DescriptionMaxLength {
		return nil, apperror.Invalid("description", "must be at most %d characters", DescriptionMaxLength)
	}
	return &d, nil
}

func validatePrice(amount int64, currency string) error {
	if amount <= 0 || amount > MaximumPriceAmount {
		return apperror.Invalid("price_amount", "must be greater than 0 and at most %d", MaximumPriceAmount)
	}
	if !strings.EqualFold(currency, Currency) {
		return apperror.Invalid("price_currency", "must be %s", Currency)
	}
	return nil
}
