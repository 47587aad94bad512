package benefit

import (
	"encoding/json"
	"fmt"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
)

// Properties is the type-specific configuration of a benefit. The set of
// implementations is closed; each one belongs to exactly one Type.
type Properties interface {
	BenefitType() Type
}

type ArticlesProperties struct {
	PaidArticles bool `json:"paid_articles"`
}

func (ArticlesProperties) BenefitType() Type { return TypeArticles }

const (
	defaultAdsImageHeight = 400
	defaultAdsImageWidth  = 400
)

type AdsProperties struct {
	ImageHeight int `json:"image_height"`
	ImageWidth  int `json:"image_width"`
}

func (AdsProperties) BenefitType() Type { return TypeAds }

type DiscordProperties struct {
	GuildID string `json:"guild_id"`
	RoleID  string `json:"role_id"`
}

func (DiscordProperties) BenefitType() Type { return TypeDiscord }

type CustomProperties struct {
	Note *string `json:"note"`
}

func (CustomProperties) BenefitType() Type { return TypeCustom }

// DecodeProperties parses stored properties for a benefit of type t.
func DecodeProperties(t Type, raw []byte) (Properties, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var (
		props Properties
		err   error
	)
	switch t {
	case TypeArticles:
		var p ArticlesProperties
		err = json.Unmarshal(raw, &p)
		props = p
	case TypeAds:
		p := AdsProperties{ImageHeight: defaultAdsImageHeight, ImageWidth: defaultAdsImageWidth}
		err = json.Unmarshal(raw, &p)
		props = p
	case TypeDiscord:
		var p DiscordProperties
		err = json.Unmarshal(raw, &p)
		props = p
	case TypeCustom:
		var p CustomProperties
		err = json.Unmarshal(raw, &p)
		props = p
	default:
		return nil, apperror.Invalid("type", "unknown benefit type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s properties: %w", t, err)
	}
	return props, nil
}

// EncodeProperties serializes props for storage.
func EncodeProperties(props Properties) ([]byte, error) {
	if props == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(props)
}

// validateProperties checks the invariants of a decoded payload.
func validateProperties(props Properties) error {
	switch p := props.(type) {
	case AdsProperties:
		if p.ImageHeight <= 0 || p.ImageWidth <= 0 {
			return apperror.Invalid("properties", "image dimensions must be positive")
		}
	case DiscordProperties:
		if p.GuildID == "" {
			return apperror.Invalid("properties.guild_id", "is required")
		}
		if p.RoleID == "" {
			return apperror.Invalid("properties.role_id", "is required")
		}
	}
	return nil
}
