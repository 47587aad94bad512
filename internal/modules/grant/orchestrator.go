package grant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/lock"
	"github.com/georgemunganga/fanbase-backend/internal/metrics"
	"github.com/georgemunganga/fanbase-backend/internal/modules/benefit"
	"github.com/georgemunganga/fanbase-backend/internal/modules/fulfillment"
	"github.com/georgemunganga/fanbase-backend/internal/modules/notification"
	"github.com/georgemunganga/fanbase-backend/internal/modules/subscription"
	"github.com/georgemunganga/fanbase-backend/internal/modules/tier"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
	"github.com/georgemunganga/fanbase-backend/internal/queue"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxAttempts = 10
	defaultFanOut      = 8
)

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Grants        Repository
	Subscriptions subscription.Repository
	Tiers         tier.Repository
	Benefits      benefit.Repository
	Users         user.Repository
	Registry      *fulfillment.Registry
	Locker        lock.Locker
	Scheduler     queue.Scheduler
	Notifier      notification.Service
}

// Options tune retry and fan-out behaviour. Zero values use the defaults.
type Options struct {
	// MaxAttempts caps retries of a single job; the last failure is fatal.
	MaxAttempts int
	// FanOut limits concurrent enqueues when a trigger touches many pairs.
	FanOut int
}

// Orchestrator keeps grant records in step with subscriptions and benefits.
// Triggers only enqueue jobs; Run performs them one pair at a time.
type Orchestrator struct {
	Deps
	maxAttempts int
	fanOut      int
	now         func() time.Time

	mu      sync.Mutex
	pending map[pairKey]*pendingJobs
}

type pendingJobs struct {
	action Action
	count  int
}

func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.FanOut <= 0 {
		opts.FanOut = defaultFanOut
	}
	return &Orchestrator{
		Deps:        deps,
		maxAttempts: opts.MaxAttempts,
		fanOut:      opts.FanOut,
		now:         time.Now,
		pending:     make(map[pairKey]*pendingJobs),
	}
}

// Register binds the grant and revoke task handlers on d.
func (o *Orchestrator) Register(d *queue.Dispatcher) {
	handler := func(ctx context.Context, payload json.RawMessage) error {
		var job Job
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("decode grant job: %w", err)
		}
		return o.Run(ctx, job)
	}
	d.Register(TaskGrant, handler)
	d.Register(TaskRevoke, handler)
}

// ── Triggers ─────────────────────────────────────────────

func (o *Orchestrator) SubscriptionActivated(ctx context.Context, sub *subscription.Subscription) error {
	t, err := o.Tiers.GetTier(ctx, sub.TierID)
	if err != nil {
		return err
	}
	existing, err := o.grantsBySubscription(ctx, sub.ID)
	if err != nil {
		return err
	}
	var jobs []Job
	for _, b := range t.Benefits {
		if existing[b.ID].IsGranted() {
			continue
		}
		jobs = append(jobs, newJob(ActionGrant, sub.ID, b.ID))
	}
	return o.enqueueAll(ctx, jobs)
}

// SubscriptionTierChanged grants benefits only the new tier has and revokes
// those only the previous tier had. Shared benefits are left alone.
func (o *Orchestrator) SubscriptionTierChanged(ctx context.Context, sub *subscription.Subscription, previousTierID uuid.UUID) error {
	previous, err := o.Tiers.GetTier(ctx, previousTierID)
	if err != nil {
		return err
	}
	current, err := o.Tiers.GetTier(ctx, sub.TierID)
	if err != nil {
		return err
	}
	var jobs []Job
	for _, b := range current.Benefits {
		if !previous.HasBenefit(b.ID) {
			jobs = append(jobs, newJob(ActionGrant, sub.ID, b.ID))
		}
	}
	for _, b := range previous.Benefits {
		if !current.HasBenefit(b.ID) {
			jobs = append(jobs, newJob(ActionRevoke, sub.ID, b.ID))
		}
	}
	return o.enqueueAll(ctx, jobs)
}

// SubscriptionEnded revokes everything granted plus every benefit of the
// tier, so a grant still running when the subscription ended is undone once
// it releases the pair lock.
func (o *Orchestrator) SubscriptionEnded(ctx context.Context, sub *subscription.Subscription) error {
	existing, err := o.grantsBySubscription(ctx, sub.ID)
	if err != nil {
		return err
	}
	targets := map[uuid.UUID]bool{}
	for id, g := range existing {
		if g.IsGranted() {
			targets[id] = true
		}
	}
	t, err := o.Tiers.GetTier(ctx, sub.TierID)
	switch {
	case err == nil:
		for _, b := range t.Benefits {
			targets[b.ID] = true
		}
	case !errors.Is(err, apperror.ErrNotFound):
		return err
	}

	jobs := make([]Job, 0, len(targets))
	for id := range targets {
		jobs = append(jobs, newJob(ActionRevoke, sub.ID, id))
	}
	return o.enqueueAll(ctx, jobs)
}

// BenefitUpdated re-grants every current grantee when the benefit type says
// the property change must reach them.
func (o *Orchestrator) BenefitUpdated(ctx context.Context, b *benefit.Benefit, previous benefit.Properties) error {
	required, err := o.Registry.RequiresUpdate(ctx, b, previous)
	if err != nil {
		return err
	}
	if !required {
		log.Debug().Str("benefit_id", b.ID.String()).Msg("benefit change needs no re-grant")
		return nil
	}
	grants, err := o.Grants.ListGrantedByBenefit(ctx, b.ID)
	if err != nil {
		return err
	}
	jobs := make([]Job, 0, len(grants))
	for _, g := range grants {
		job := newJob(ActionGrant, g.SubscriptionID, b.ID)
		job.Update = true
		jobs = append(jobs, job)
	}
	return o.enqueueAll(ctx, jobs)
}

func (o *Orchestrator) BenefitDeleted(ctx context.Context, b *benefit.Benefit) error {
	grants, err := o.Grants.ListGrantedByBenefit(ctx, b.ID)
	if err != nil {
		return err
	}
	jobs := make([]Job, 0, len(grants))
	for _, g := range grants {
		jobs = append(jobs, newJob(ActionRevoke, g.SubscriptionID, b.ID))
	}
	return o.enqueueAll(ctx, jobs)
}

// ReconcileSubscription compares the subscription's tier with its grant
// records and queues whatever brings them back in line. Unlike tier edits,
// it also revokes benefits that were detached from the tier. A past_due
// subscription is left untouched.
func (o *Orchestrator) ReconcileSubscription(ctx context.Context, subscriptionID uuid.UUID) (*ReconcileResult, error) {
	sub, err := o.Subscriptions.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	existing, err := o.grantsBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{}
	var jobs []Job
	switch {
	case sub.IsActive():
		t, err := o.Tiers.GetTier(ctx, sub.TierID)
		if err != nil {
			return nil, err
		}
		for _, b := range t.Benefits {
			if !existing[b.ID].IsGranted() {
				jobs = append(jobs, newJob(ActionGrant, sub.ID, b.ID))
				result.Grants++
			}
		}
		for id, g := range existing {
			if g.IsGranted() && !t.HasBenefit(id) {
				jobs = append(jobs, newJob(ActionRevoke, sub.ID, id))
				result.Revokes++
			}
		}
	case sub.Status.Ended():
		for id, g := range existing {
			if g.IsGranted() {
				jobs = append(jobs, newJob(ActionRevoke, sub.ID, id))
				result.Revokes++
			}
		}
	}
	if err := o.enqueueAll(ctx, jobs); err != nil {
		return nil, err
	}
	return result, nil
}

// ── Queries ──────────────────────────────────────────────

// State reports the pair's state. Queued or running jobs known to this
// process show as granting or revoking.
func (o *Orchestrator) State(ctx context.Context, subscriptionID, benefitID uuid.UUID) (State, error) {
	o.mu.Lock()
	p, ok := o.pending[pairKey{subscriptionID, benefitID}]
	var action Action
	if ok {
		action = p.action
	}
	o.mu.Unlock()
	if ok {
		if action == ActionRevoke {
			return StateRevoking, nil
		}
		return StateGranting, nil
	}

	g, err := o.Grants.GetGrant(ctx, subscriptionID, benefitID)
	if errors.Is(err, apperror.ErrNotFound) {
		return StateUngranted, nil
	}
	if err != nil {
		return "", err
	}
	return g.State, nil
}

// ListGrants returns the subscription's grant records.
func (o *Orchestrator) ListGrants(ctx context.Context, subscriptionID uuid.UUID) ([]*Grant, error) {
	return o.Grants.ListBySubscription(ctx, subscriptionID)
}

// ── Execution ────────────────────────────────────────────

// Run performs one job while holding the pair's lock. Jobs that no longer
// apply are skipped. Retriable errors reschedule the job and preconditions
// notify the user; both return nil. Any other error is returned.
func (o *Orchestrator) Run(ctx context.Context, job Job) error {
	defer o.settle(job)

	release, err := o.Locker.Acquire(ctx, job.pair().lockKey())
	if err != nil {
		return fmt.Errorf("acquire grant lock: %w", err)
	}
	defer release()

	sub, err := o.Subscriptions.GetSubscription(ctx, job.SubscriptionID)
	if errors.Is(err, apperror.ErrNotFound) {
		o.skip(job, "", "subscription not found")
		return nil
	}
	if err != nil {
		return err
	}
	b, err := o.Benefits.GetBenefit(ctx, job.BenefitID)
	if errors.Is(err, apperror.ErrNotFound) {
		o.skip(job, "", "benefit not found")
		return nil
	}
	if err != nil {
		return err
	}
	svc, err := o.Registry.Lookup(b.Type)
	if err != nil {
		return err
	}
	u, err := o.Users.GetUserByID(ctx, sub.UserID)
	if err != nil {
		return err
	}
	existing, err := o.Grants.GetGrant(ctx, sub.ID, b.ID)
	if errors.Is(err, apperror.ErrNotFound) {
		existing = nil
	} else if err != nil {
		return err
	}

	if job.Action == ActionRevoke {
		return o.revoke(ctx, job, svc, sub, b, u, existing)
	}
	return o.grant(ctx, job, svc, sub, b, u, existing)
}

func (o *Orchestrator) grant(ctx context.Context, job Job, svc fulfillment.Service,
	sub *subscription.Subscription, b *benefit.Benefit, u *user.User, existing *Grant) error {
	switch {
	case b.Deleted():
		o.skip(job, b.Type, "benefit deleted")
		return nil
	case !sub.IsActive():
		o.skip(job, b.Type, "subscription not active")
		return nil
	case job.Update && !existing.IsGranted():
		o.skip(job, b.Type, "nothing granted to update")
		return nil
	case !job.Update && existing.IsGranted():
		o.skip(job, b.Type, "already granted")
		return nil
	}
	if !job.Update {
		t, err := o.Tiers.GetTier(ctx, sub.TierID)
		if err != nil {
			return err
		}
		if !t.HasBenefit(b.ID) {
			o.skip(job, b.Type, "benefit not on subscription tier")
			return nil
		}
	}

	props := fulfillment.Properties{}
	if existing != nil {
		props = existing.Properties.Clone()
	}

	start := o.now()
	granted, err := svc.Grant(ctx, b, sub, u, props, fulfillment.GrantOptions{Update: job.Update, Attempt: job.Attempt})
	elapsed := o.now().Sub(start)
	if err != nil {
		return o.handleError(ctx, job, sub, b, err, elapsed)
	}

	now := o.now()
	g := existing
	if g == nil {
		g = &Grant{ID: uuid.New(), SubscriptionID: sub.ID, BenefitID: b.ID, UserID: u.ID}
	}
	g.State = StateGranted
	g.Properties = granted
	g.GrantedAt = &now
	g.RevokedAt = nil
	// The role or side effect already happened; record it even if the
	// worker is shutting down.
	if err := o.Grants.UpsertGrant(context.WithoutCancel(ctx), g); err != nil {
		return fmt.Errorf("save grant: %w", err)
	}

	metrics.RecordBenefitOperation(string(job.Action), string(b.Type), metrics.OutcomeSuccess, elapsed)
	log.Info().
		Str("subscription_id", sub.ID.String()).
		Str("benefit_id", b.ID.String()).
		Str("type", string(b.Type)).
		Bool("update", job.Update).
		Int("attempt", job.Attempt).
		Msg("benefit granted")
	return nil
}

func (o *Orchestrator) revoke(ctx context.Context, job Job, svc fulfillment.Service,
	sub *subscription.Subscription, b *benefit.Benefit, u *user.User, existing *Grant) error {
	if !existing.IsGranted() {
		o.skip(job, b.Type, "nothing granted")
		return nil
	}
	if sub.IsActive() && !b.Deleted() {
		t, err := o.Tiers.GetTier(ctx, sub.TierID)
		if err != nil {
			return err
		}
		if t.HasBenefit(b.ID) {
			o.skip(job, b.Type, "benefit still on active tier")
			return nil
		}
	}

	start := o.now()
	revoked, err := svc.Revoke(ctx, b, sub, u, existing.Properties.Clone(), job.Attempt)
	elapsed := o.now().Sub(start)
	if err != nil {
		return o.handleError(ctx, job, sub, b, err, elapsed)
	}

	now := o.now()
	existing.State = StateRevoked
	existing.Properties = revoked
	existing.RevokedAt = &now
	if err := o.Grants.UpsertGrant(context.WithoutCancel(ctx), existing); err != nil {
		return fmt.Errorf("save grant: %w", err)
	}

	metrics.RecordBenefitOperation(string(job.Action), string(b.Type), metrics.OutcomeSuccess, elapsed)
	log.Info().
		Str("subscription_id", sub.ID.String()).
		Str("benefit_id", b.ID.String()).
		Str("type", string(b.Type)).
		Int("attempt", job.Attempt).
		Msg("benefit revoked")
	return nil
}

func (o *Orchestrator) handleError(ctx context.Context, job Job, sub *subscription.Subscription,
	b *benefit.Benefit, err error, elapsed time.Duration) error {
	logger := log.With().
		Str("subscription_id", sub.ID.String()).
		Str("benefit_id", b.ID.String()).
		Str("type", string(b.Type)).
		Str("action", string(job.Action)).
		Int("attempt", job.Attempt).
		Logger()

	var retriable *fulfillment.RetriableError
	var precondition *fulfillment.PreconditionError
	switch {
	case errors.As(err, &retriable):
		if job.Attempt >= o.maxAttempts {
			metrics.RecordBenefitOperation(string(job.Action), string(b.Type), metrics.OutcomeFailed, elapsed)
			logger.Error().Err(err).Msg("benefit operation out of attempts")
			return fmt.Errorf("%s benefit after %d attempts: %w", job.Action, job.Attempt, err)
		}
		next := job
		next.Attempt++
		if err := o.enqueue(ctx, next, o.now().Add(retriable.Defer())); err != nil {
			return fmt.Errorf("reschedule %s: %w", job.Action, err)
		}
		metrics.RecordBenefitOperation(string(job.Action), string(b.Type), metrics.OutcomeRetry, elapsed)
		metrics.RecordRetryScheduled(string(job.Action), string(b.Type))
		logger.Warn().Err(retriable.Err).Int("defer_seconds", retriable.DeferSeconds).Msg("benefit operation rescheduled")
		return nil

	case errors.As(err, &precondition):
		metrics.RecordBenefitOperation(string(job.Action), string(b.Type), metrics.OutcomePrecondition, elapsed)
		logger.Warn().Str("reason", precondition.Message).Msg("benefit precondition not met")
		if precondition.Payload == nil {
			return nil
		}
		return o.notifyPrecondition(ctx, sub, b, precondition)

	default:
		metrics.RecordBenefitOperation(string(job.Action), string(b.Type), metrics.OutcomeFailed, elapsed)
		logger.Error().Err(err).Msg("benefit operation failed")
		return err
	}
}

func (o *Orchestrator) notifyPrecondition(ctx context.Context, sub *subscription.Subscription,
	b *benefit.Benefit, pe *fulfillment.PreconditionError) error {
	payload := notification.BenefitPreconditionErrorPayload{
		SubscriptionID:     sub.ID,
		SubscriptionTierID: sub.TierID,
		BenefitID:          b.ID,
		BenefitType:        string(b.Type),
		BenefitDescription: b.Description,
		Message:            pe.Message,
		ExtraContext:       pe.Payload,
	}
	if t, err := o.Tiers.GetTier(ctx, sub.TierID); err == nil {
		payload.TierName = t.Name
	}
	if err := o.Notifier.Notify(ctx, sub.UserID, notification.TypeBenefitPreconditionError, payload); err != nil {
		return fmt.Errorf("notify precondition: %w", err)
	}
	return nil
}

func (o *Orchestrator) grantsBySubscription(ctx context.Context, subscriptionID uuid.UUID) (map[uuid.UUID]*Grant, error) {
	grants, err := o.Grants.ListBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	byBenefit := make(map[uuid.UUID]*Grant, len(grants))
	for _, g := range grants {
		byBenefit[g.BenefitID] = g
	}
	return byBenefit, nil
}

func (o *Orchestrator) skip(job Job, t benefit.Type, reason string) {
	metrics.RecordBenefitOperation(string(job.Action), string(t), metrics.OutcomeSkipped, 0)
	log.Debug().
		Str("subscription_id", job.SubscriptionID.String()).
		Str("benefit_id", job.BenefitID.String()).
		Str("action", string(job.Action)).
		Str("reason", reason).
		Msg("benefit job skipped")
}

// ── Scheduling ───────────────────────────────────────────

func newJob(action Action, subscriptionID, benefitID uuid.UUID) Job {
	return Job{Action: action, SubscriptionID: subscriptionID, BenefitID: benefitID, Attempt: 1}
}

func (o *Orchestrator) enqueueAll(ctx context.Context, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanOut)
	now := o.now()
	for _, job := range jobs {
		job := job
		g.Go(func() error { return o.enqueue(gctx, job, now) })
	}
	return g.Wait()
}

func (o *Orchestrator) enqueue(ctx context.Context, job Job, notBefore time.Time) error {
	task, err := queue.NewTask(job.taskName(), job)
	if err != nil {
		return err
	}
	o.track(job)
	if err := o.Scheduler.Schedule(ctx, task, notBefore); err != nil {
		o.settle(job)
		return err
	}
	return nil
}

func (o *Orchestrator) track(job Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[job.pair()]
	if !ok {
		p = &pendingJobs{}
		o.pending[job.pair()] = p
	}
	p.action = job.Action
	p.count++
}

func (o *Orchestrator) settle(job Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[job.pair()]
	if !ok {
		return
	}
	p.count--
	if p.count <= 0 {
		delete(o.pending, job.pair())
	}
}
