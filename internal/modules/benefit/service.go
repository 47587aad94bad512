package benefit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GuildTokenDecoder verifies the signed guild token a creator obtains after
// installing the bot and returns the guild id it carries.
type GuildTokenDecoder interface {
	Decode(token string) (string, error)
}

// Reconciler is notified after benefits change so existing grants can follow.
type Reconciler interface {
	BenefitUpdated(ctx context.Context, b *Benefit, previous Properties) error
	BenefitDeleted(ctx context.Context, b *Benefit) error
}

// Service defines benefit configuration logic.
type Service interface {
	CreateBenefit(ctx context.Context, req CreateBenefitRequest) (*Benefit, error)
	GetBenefit(ctx context.Context, id uuid.UUID) (*Benefit, error)
	ListBenefits(ctx context.Context, scope Scope) ([]*Benefit, error)
	UpdateBenefit(ctx context.Context, id uuid.UUID, req UpdateBenefitRequest) (*Benefit, error)
	DeleteBenefit(ctx context.Context, id uuid.UUID) error
	EnsureArticlesBenefits(ctx context.Context, scope Scope) ([]*Benefit, error)
}

type service struct {
	repo       Repository
	guilds     GuildTokenDecoder
	reconciler Reconciler
}

func NewService(repo Repository, guilds GuildTokenDecoder, reconciler Reconciler) Service {
	return &service{repo: repo, guilds: guilds, reconciler: reconciler}
}

func (s *service) CreateBenefit(ctx context.Context, req CreateBenefitRequest) (*Benefit, error) {
	scope := Scope{OrganizationID: req.OrganizationID, RepositoryID: req.RepositoryID}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	switch req.Type {
	case TypeCustom, TypeAds, TypeDiscord:
	case TypeArticles:
		return nil, apperror.Invalid("type", "articles benefits are managed by the platform")
	default:
		return nil, apperror.Invalid("type", "unknown benefit type %q", req.Type)
	}
	description, err := validateDescription(req.Description)
	if err != nil {
		return nil, err
	}
	props, err := s.parseProperties(req.Type, req.Properties)
	if err != nil {
		return nil, err
	}

	b := &Benefit{
		ID:              uuid.New(),
		Type:            req.Type,
		Description:     description,
		Selectable:      true,
		Deletable:       true,
		IsTaxApplicable: req.Type == TypeCustom && req.IsTaxApplicable,
		Properties:      props,
		Scope:           scope,
	}
	if err := s.repo.CreateBenefit(ctx, b); err != nil {
		return nil, err
	}
	log.Info().Str("benefit_id", b.ID.String()).Str("benefit_type", string(b.Type)).Msg("benefit created")
	return b, nil
}

func (s *service) GetBenefit(ctx context.Context, id uuid.UUID) (*Benefit, error) {
	b, err := s.repo.GetBenefit(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Deleted() {
		return nil, apperror.NotFound("benefit")
	}
	return b, nil
}

func (s *service) ListBenefits(ctx context.Context, scope Scope) ([]*Benefit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListBenefits(ctx, scope, nil)
}

func (s *service) UpdateBenefit(ctx context.Context, id uuid.UUID, req UpdateBenefitRequest) (*Benefit, error) {
	b, err := s.GetBenefit(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Description != nil {
		if b.Description, err = validateDescription(*req.Description); err != nil {
			return nil, err
		}
	}

	previous := b.Properties
	propsChanged := false
	if len(req.Properties) > 0 {
		if b.Type == TypeArticles {
			return nil, apperror.Invalid("properties", "articles benefit properties cannot be changed")
		}
		props, err := s.parseProperties(b.Type, req.Properties)
		if err != nil {
			return nil, err
		}
		propsChanged = !reflect.DeepEqual(props, previous)
		b.Properties = props
	}

	if err := s.repo.UpdateBenefit(ctx, b); err != nil {
		return nil, err
	}

	if propsChanged {
		if err := s.reconciler.BenefitUpdated(ctx, b, previous); err != nil {
			log.Error().Err(err).Str("benefit_id", b.ID.String()).Msg("failed to enqueue benefit re-grants")
		}
	}
	return b, nil
}

func (s *service) DeleteBenefit(ctx context.Context, id uuid.UUID) error {
	b, err := s.GetBenefit(ctx, id)
	if err != nil {
		return err
	}
	if !b.Deletable {
		return apperror.PermissionDenied("delete benefit " + b.ID.String())
	}

	now := time.Now()
	if err := s.repo.SoftDeleteBenefit(ctx, b.ID, now); err != nil {
		return err
	}
	b.DeletedAt = &now

	if err := s.reconciler.BenefitDeleted(ctx, b); err != nil {
		log.Error().Err(err).Str("benefit_id", b.ID.String()).Msg("failed to enqueue benefit revokes")
	}
	return nil
}

// EnsureArticlesBenefits seeds the public and premium articles benefits of a
// scope. Existing ones are returned as they are.
func (s *service) EnsureArticlesBenefits(ctx context.Context, scope Scope) ([]*Benefit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	public, premium, err := s.findArticles(ctx, scope)
	if err != nil {
		return nil, err
	}

	// A concurrent first tier may seed the same benefit; the unique index
	// lets one insert win and the other adopts it.
	seed := func(description string, paid bool) (*Benefit, error) {
		b := &Benefit{
			ID:          uuid.New(),
			Type:        TypeArticles,
			Description: description,
			Selectable:  false,
			Deletable:   false,
			Properties:  ArticlesProperties{PaidArticles: paid},
			Scope:       scope,
		}
		err := s.repo.CreateBenefit(ctx, b)
		if errors.Is(err, apperror.ErrConflict) {
			pub, prem, ferr := s.findArticles(ctx, scope)
			if ferr != nil {
				return nil, ferr
			}
			if paid && prem != nil {
				return prem, nil
			}
			if !paid && pub != nil {
				return pub, nil
			}
		}
		if err != nil {
			return nil, fmt.Errorf("seed %q benefit: %w", description, err)
		}
		return b, nil
	}
	if public == nil {
		if public, err = seed("Public posts", false); err != nil {
			return nil, err
		}
	}
	if premium == nil {
		if premium, err = seed("Premium posts", true); err != nil {
			return nil, err
		}
	}
	return []*Benefit{public, premium}, nil
}

func (s *service) findArticles(ctx context.Context, scope Scope) (public, premium *Benefit, err error) {
	t := TypeArticles
	existing, err := s.repo.ListBenefits(ctx, scope, &t)
	if err != nil {
		return nil, nil, err
	}
	for _, b := range existing {
		p, _ := b.Properties.(ArticlesProperties)
		if p.PaidArticles && premium == nil {
			premium = b
		} else if !p.PaidArticles && public == nil {
			public = b
		}
	}
	return public, premium, nil
}

// ── Validation ────────────────────────────────────────────────────────────────

func validateDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	n := utf8.RuneCountInString(description)
	if n < DescriptionMinLength || n > DescriptionMaxLength {
		return "", apperror.Invalid("description", "must be between %d and %d characters", DescriptionMinLength, DescriptionMaxLength)
	}
	return description, nil
}

// discordInput is what creators send: the guild comes from a signed token so
// a benefit can only target a server the bot was installed on.
type discordInput struct {
	GuildToken string `json:"guild_token"`
	RoleID     string `json:"role_id"`
}

func (s *service) parseProperties(t Type, raw json.RawMessage) (Properties, error) {
	if t == TypeDiscord {
		var in discordInput
		if err := json.Unmarshal(orEmpty(raw), &in); err != nil {
			return nil, apperror.Invalid("properties", "%v", err)
		}
		if in.GuildToken == "" {
			return nil, apperror.Invalid("properties.guild_token", "is required")
		}
		guildID, err := s.guilds.Decode(in.GuildToken)
		if err != nil {
			return nil, apperror.Invalid("properties.guild_token", "is invalid")
		}
		props := DiscordProperties{GuildID: guildID, RoleID: in.RoleID}
		return props, validateProperties(props)
	}

	props, err := DecodeProperties(t, orEmpty(raw))
	if err != nil {
		var ve *apperror.ValidationError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, apperror.Invalid("properties", "%v", err)
	}
	return props, validateProperties(props)
}

func orEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}
