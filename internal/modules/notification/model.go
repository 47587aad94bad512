package notification

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeBenefitPreconditionError Type = "benefit_precondition_error"
)

// Notification is a message stored for a user to read in-app.
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// BenefitPreconditionErrorPayload tells a subscriber what they must do before
// a benefit can be granted.
type BenefitPreconditionErrorPayload struct {
	SubscriptionID     uuid.UUID              `json:"subscription_id"`
	SubscriptionTierID uuid.UUID              `json:"subscription_tier_id"`
	TierName           string                 `json:"subscription_tier_name"`
	BenefitID          uuid.UUID              `json:"subscription_benefit_id"`
	BenefitType        string                 `json:"subscription_benefit_type"`
	BenefitDescription string                 `json:"subscription_benefit_description"`
	Message            string                 `json:"message"`
	ExtraContext       map[string]interface{} `json:"extra_context,omitempty"`
}
