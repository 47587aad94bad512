package grant

import (
	"time"

	"github.com/georgemunganga/fanbase-backend/internal/modules/fulfillment"
	"github.com/google/uuid"
)

// State of a (subscription, benefit) pair. Only granted and revoked are
// stored; ungranted means there is no record, and granting/revoking mean a
// job for the pair is queued or running.
type State string

const (
	StateUngranted State = "ungranted"
	StateGranting  State = "granting"
	StateGranted   State = "granted"
	StateRevoking  State = "revoking"
	StateRevoked   State = "revoked"
)

// Grant is the fulfillment record of one benefit for one subscription.
type Grant struct {
	ID             uuid.UUID              `json:"id"`
	SubscriptionID uuid.UUID              `json:"subscription_id"`
	BenefitID      uuid.UUID              `json:"subscription_benefit_id"`
	UserID         uuid.UUID              `json:"user_id"`
	State          State                  `json:"state"`
	Properties     fulfillment.Properties `json:"properties"`
	GrantedAt      *time.Time             `json:"granted_at,omitempty"`
	RevokedAt      *time.Time             `json:"revoked_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func (g *Grant) IsGranted() bool { return g != nil && g.State == StateGranted }

// Action is what a job does to its pair.
type Action string

const (
	ActionGrant  Action = "grant"
	ActionRevoke Action = "revoke"
)

// Task names the orchestrator registers on the queue dispatcher.
const (
	TaskGrant  = "benefit.grant"
	TaskRevoke = "benefit.revoke"
)

// Job is one grant or revoke call, as carried by a queued task.
type Job struct {
	Action         Action    `json:"action"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	BenefitID      uuid.UUID `json:"subscription_benefit_id"`
	Update         bool      `json:"update,omitempty"`
	Attempt        int       `json:"attempt"`
}

func (j Job) taskName() string {
	if j.Action == ActionRevoke {
		return TaskRevoke
	}
	return TaskGrant
}

type pairKey struct {
	subscriptionID uuid.UUID
	benefitID      uuid.UUID
}

func (j Job) pair() pairKey { return pairKey{j.SubscriptionID, j.BenefitID} }

func (k pairKey) lockKey() string {
	return "grant:" + k.subscriptionID.String() + ":" + k.benefitID.String()
}

// ReconcileResult counts the jobs an explicit reconcile queued.
type ReconcileResult struct {
	Grants  int `json:"grants"`
	Revokes int `json:"revokes"`
}
