package grant

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/lock"
	"github.com/georgemunganga/fanbase-backend/internal/modules/benefit"
	"github.com/georgemunganga/fanbase-backend/internal/modules/fulfillment"
	"github.com/georgemunganga/fanbase-backend/internal/modules/notification"
	"github.com/georgemunganga/fanbase-backend/internal/modules/subscription"
	"github.com/georgemunganga/fanbase-backend/internal/modules/tier"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
	"github.com/georgemunganga/fanbase-backend/internal/queue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Fakes ────────────────────────────────────────────────

type memoryGrants struct {
	mu      sync.Mutex
	grants  map[pairKey]*Grant
	upserts int
}

func newMemoryGrants() *memoryGrants { return &memoryGrants{grants: map[pairKey]*Grant{}} }

func (m *memoryGrants) GetGrant(ctx context.Context, subscriptionID, benefitID uuid.UUID) (*Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[pairKey{subscriptionID, benefitID}]
	if !ok {
		return nil, apperror.NotFound("grant")
	}
	cp := *g
	cp.Properties = g.Properties.Clone()
	return &cp, nil
}

func (m *memoryGrants) UpsertGrant(ctx context.Context, g *Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.grants[pairKey{g.SubscriptionID, g.BenefitID}] = &cp
	m.upserts++
	return nil
}

func (m *memoryGrants) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Grant
	for k, g := range m.grants {
		if k.subscriptionID == subscriptionID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryGrants) ListGrantedByBenefit(ctx context.Context, benefitID uuid.UUID) ([]*Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Grant
	for k, g := range m.grants {
		if k.benefitID == benefitID && g.IsGranted() {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryGrants) put(subID, benefitID, userID uuid.UUID, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[pairKey{subID, benefitID}] = &Grant{
		ID: uuid.New(), SubscriptionID: subID, BenefitID: benefitID, UserID: userID,
		State: state, Properties: fulfillment.Properties{},
	}
}

func (m *memoryGrants) get(subID, benefitID uuid.UUID) *Grant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[pairKey{subID, benefitID}]
}

type fakeSubscriptions struct {
	subscription.Repository
	subs map[uuid.UUID]*subscription.Subscription
}

func (f *fakeSubscriptions) GetSubscription(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, apperror.NotFound("subscription")
	}
	return sub, nil
}

type fakeTiers struct {
	tier.Repository
	tiers map[uuid.UUID]*tier.Tier
}

func (f *fakeTiers) GetTier(ctx context.Context, id uuid.UUID) (*tier.Tier, error) {
	t, ok := f.tiers[id]
	if !ok {
		return nil, apperror.NotFound("tier")
	}
	return t, nil
}

type fakeBenefits struct {
	benefit.Repository
	benefits map[uuid.UUID]*benefit.Benefit
}

func (f *fakeBenefits) GetBenefit(ctx context.Context, id uuid.UUID) (*benefit.Benefit, error) {
	b, ok := f.benefits[id]
	if !ok {
		return nil, apperror.NotFound("benefit")
	}
	return b, nil
}

type fakeUsers struct {
	user.Repository
	users map[uuid.UUID]*user.User
}

func (f *fakeUsers) GetUserByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user")
	}
	return u, nil
}

type scheduled struct {
	task      queue.Task
	notBefore time.Time
}

type recordingScheduler struct {
	mu    sync.Mutex
	tasks []scheduled
}

func (s *recordingScheduler) Schedule(ctx context.Context, task queue.Task, notBefore time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, scheduled{task: task, notBefore: notBefore})
	return nil
}

// drain removes and decodes everything scheduled so far.
func (s *recordingScheduler) drain(t *testing.T) []Job {
	t.Helper()
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	jobs := make([]Job, 0, len(tasks))
	for _, st := range tasks {
		var job Job
		require.NoError(t, json.Unmarshal(st.task.Payload, &job))
		jobs = append(jobs, job)
	}
	return jobs
}

type sentNotification struct {
	userID  uuid.UUID
	typ     notification.Type
	payload notification.BenefitPreconditionErrorPayload
}

type recordingNotifier struct {
	notification.Service
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(ctx context.Context, userID uuid.UUID, typ notification.Type, payload interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, _ := payload.(notification.BenefitPreconditionErrorPayload)
	n.sent = append(n.sent, sentNotification{userID: userID, typ: typ, payload: p})
	return nil
}

// scriptedService is a fulfillment.Service whose results are set by the test.
type scriptedService struct {
	grantErr  error
	revokeErr error
	requires  bool
	delay     time.Duration
	onGrant   func()

	grants   atomic.Int64
	updates  atomic.Int64
	revokes  atomic.Int64
	inflight atomic.Int64
	peak     atomic.Int64
}

func (s *scriptedService) enter() func() {
	n := s.inflight.Add(1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return func() { s.inflight.Add(-1) }
}

func (s *scriptedService) Grant(ctx context.Context, b *benefit.Benefit, sub *subscription.Subscription, u *user.User,
	props fulfillment.Properties, opts fulfillment.GrantOptions) (fulfillment.Properties, error) {
	defer s.enter()()
	s.grants.Add(1)
	if opts.Update {
		s.updates.Add(1)
	}
	if s.onGrant != nil {
		s.onGrant()
	}
	if s.grantErr != nil {
		return nil, s.grantErr
	}
	out := props.Clone()
	out["granted"] = true
	return out, nil
}

func (s *scriptedService) Revoke(ctx context.Context, b *benefit.Benefit, sub *subscription.Subscription, u *user.User,
	props fulfillment.Properties, attempt int) (fulfillment.Properties, error) {
	defer s.enter()()
	s.revokes.Add(1)
	if s.revokeErr != nil {
		return nil, s.revokeErr
	}
	out := props.Clone()
	delete(out, "granted")
	return out, nil
}

func (s *scriptedService) RequiresUpdate(ctx context.Context, b *benefit.Benefit, previous benefit.Properties) (bool, error) {
	return s.requires, nil
}

// ── Fixture ──────────────────────────────────────────────

type fixture struct {
	o        *Orchestrator
	grants   *memoryGrants
	sched    *recordingScheduler
	notifier *recordingNotifier
	svc      *scriptedService
	subs     *fakeSubscriptions
	tiers    *fakeTiers
	benefits *fakeBenefits
	user     *user.User
	now      time.Time
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		grants:   newMemoryGrants(),
		sched:    &recordingScheduler{},
		notifier: &recordingNotifier{},
		svc:      &scriptedService{},
		subs:     &fakeSubscriptions{subs: map[uuid.UUID]*subscription.Subscription{}},
		tiers:    &fakeTiers{tiers: map[uuid.UUID]*tier.Tier{}},
		benefits: &fakeBenefits{benefits: map[uuid.UUID]*benefit.Benefit{}},
		user:     &user.User{ID: uuid.New()},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.o = NewOrchestrator(Deps{
		Grants:        f.grants,
		Subscriptions: f.subs,
		Tiers:         f.tiers,
		Benefits:      f.benefits,
		Users:         &fakeUsers{users: map[uuid.UUID]*user.User{f.user.ID: f.user}},
		Registry:      fulfillment.NewRegistry(map[benefit.Type]fulfillment.Service{benefit.TypeCustom: f.svc}),
		Locker:        lock.NewMemoryLocker(),
		Scheduler:     f.sched,
		Notifier:      f.notifier,
	}, opts)
	f.o.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) benefit() *benefit.Benefit {
	b := &benefit.Benefit{ID: uuid.New(), Type: benefit.TypeCustom, Description: "Shout-out", Properties: benefit.CustomProperties{}}
	f.benefits.benefits[b.ID] = b
	return b
}

func (f *fixture) tier(benefits ...*benefit.Benefit) *tier.Tier {
	t := &tier.Tier{ID: uuid.New(), Name: "Gold", Benefits: benefits}
	f.tiers.tiers[t.ID] = t
	return t
}

func (f *fixture) subscription(t *tier.Tier, status subscription.Status) *subscription.Subscription {
	sub := &subscription.Subscription{ID: uuid.New(), UserID: f.user.ID, TierID: t.ID, Status: status}
	f.subs.subs[sub.ID] = sub
	return sub
}

// runAll drains the scheduler and runs every job, returning them.
func (f *fixture) runAll(t *testing.T) []Job {
	t.Helper()
	jobs := f.sched.drain(t)
	for _, job := range jobs {
		require.NoError(t, f.o.Run(context.Background(), job))
	}
	return jobs
}

// ── Tests ────────────────────────────────────────────────

func TestActivationGrantsAndEndRevokes(t *testing.T) {
	f := newFixture(Options{})
	b := f.benefit()
	sub := f.subscription(f.tier(b), subscription.StatusActive)
	ctx := context.Background()

	require.NoError(t, f.o.SubscriptionActivated(ctx, sub))
	state, err := f.o.State(ctx, sub.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StateGranting, state)

	f.runAll(t)
	g := f.grants.get(sub.ID, b.ID)
	require.NotNil(t, g)
	assert.Equal(t, StateGranted, g.State)
	assert.Equal(t, true, g.Properties["granted"])
	assert.Equal(t, f.user.ID, g.UserID)
	require.NotNil(t, g.GrantedAt)

	sub.Status = subscription.StatusCanceled
	require.NoError(t, f.o.SubscriptionEnded(ctx, sub))
	state, err = f.o.State(ctx, sub.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRevoking, state)

	jobs := f.runAll(t)
	require.Len(t, jobs, 1)
	assert.Equal(t, ActionRevoke, jobs[0].Action)

	g = f.grants.get(sub.ID, b.ID)
	assert.Equal(t, StateRevoked, g.State)
	assert.NotContains(t, g.Properties, "granted")
	require.NotNil(t, g.RevokedAt)

	state, err = f.o.State(ctx, sub.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRevoked, state)
}

func TestStateWithoutRecordIsUngranted(t *testing.T) {
	f := newFixture(Options{})
	state, err := f.o.State(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, StateUngranted, state)
}

func TestRetriableErrorReschedulesOnce(t *testing.T) {
	f := newFixture(Options{})
	b := f.benefit()
	sub := f.subscription(f.tier(b), subscription.StatusActive)
	f.svc.grantErr = fulfillment.Retry(30*time.Second, errors.New("rate limited"))
	ctx := context.Background()

	require.NoError(t, f.o.SubscriptionActivated(ctx, sub))
	f.runAll(t)

	require.Len(t, f.sched.tasks, 1)
	retry := f.sched.tasks[0]
	assert.Equal(t, TaskGrant, retry.task.Name)
	assert.Equal(t, f.now.Add(30*time.Second), retry.notBefore)

	jobs := f.sched.drain(t)
	assert.Equal(t, 2, jobs[0].Attempt)
	assert.False(t, jobs[0].Update)
	assert.Equal(t, sub.ID, jobs[0].SubscriptionID)

	assert.Zero(t, f.grants.upserts)
	state, err := f.o.State(ctx, sub.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StateGranting, state)
}

func TestRetriesStopAtMaxAttempts(t *testing.T) {
	f := newFixture(Options{MaxAttempts: 2})
	b := f.benefit()
	sub := f.subscription(f.tier(b), subscription.StatusActive)
	f.svc.grantErr = fulfillment.Retry(time.Second, errors.New("unavailable"))

	err := f.o.Run(context.Background(), Job{Action: ActionGrant, SubscriptionID: sub.ID, BenefitID: b.ID, Attempt: 2})
	require.Error(t, err)
	assert.Empty(t, f.sched.tasks)
	assert.Nil(t, f.grants.get(sub.ID, b.ID))
}

func TestFatalErrorIsReturned(t *testing.T) {
	f := newFixture(Options{})
	b := f.benefit()
	sub := f.subscription(f.tier(b), subscription.StatusActive)
	f.svc.grantErr = errors.New("bad configuration")

	err := f.o.Run(context.Background(), newJob(ActionGrant, sub.ID, b.ID))
	assert.EqualError(t, err, "bad configuration")
	assert.Empty(t, f.sched.tasks)
	assert.Nil(t, f.grants.get(sub.ID, b.ID))
}

func TestPreconditionNotifiesOnlyWithPayload(t *testing.T) {
	f := newFixture(Options{})
	b := f.benefit()
	tr := f.tier(b)
	sub := f.subscription(tr, subscription.StatusActive)
	ctx := context.Background()

	f.svc.grantErr = &fulfillment.PreconditionError{
		Message: "Discord account not linked",
		Payload: map[string]interface{}{"action": "link_discord_account"},
	}
	require.NoError(t, f.o.Run(ctx, newJob(ActionGrant, sub.ID, b.ID)))
	require.Len(t, f.notifier.sent, 1)
	sent := f.notifier.sent[0]
	assert.Equal(t, f.user.ID, sent.userID)
	assert.Equal(t, notification.TypeBenefitPreconditionError, sent.typ)
	assert.Equal(t, "Gold", sent.payload.TierName)
	assert.Equal(t, b.ID, sent.payload.BenefitID)
	assert.Equal(t, "Discord account not linked", sent.payload.Message)
	assert.Equal(t, "link_discord_account", sent.payload.ExtraContext["action"])

	f.svc.grantErr = &fulfillment.PreconditionError{Message: "not yet"}
	require.NoError(t, f.o.Run(ctx, newJob(ActionGrant, sub.ID, b.ID)))
	assert.Len(t, f.notifier.sent, 1)

	assert.Nil(t, f.grants.get(sub.ID, b.ID))
	assert.Empty(t, f.sched.tasks)
}

func TestBenefitUpdatedRegrantsWhenRequired(t *testing.T) {
	for _, requires := range []bool{true, false} {
		f := newFixture(Options{})
		b := f.benefit()
		tr := f.tier(b)
		first := f.subscription(tr, subscription.StatusActive)
		second := f.subscription(tr, subscription.StatusActive)
		f.grants.put(first.ID, b.ID, f.user.ID, StateGranted)
		f.grants.put(second.ID, b.ID, f.user.ID, StateGranted)
		f.svc.requires = requires

		require.NoError(t, f.o.BenefitUpdated(context.Background(), b, benefit.CustomProperties{}))
		jobs := f.runAll(t)

		if requires {
			require.Len(t, jobs, 2)
			for _, job := range jobs {
				assert.True(t, job.Update)
			}
			assert.Equal(t, int64(2), f.svc.updates.Load())
		} else {
			assert.Empty(t, jobs)
			assert.Zero(t, f.svc.grants.Load())
		}
	}
}

func TestBenefitDeletedRevokesGrantees(t *testing.T) {
	f := newFixture(Options{})
	b := f.benefit()
	sub := f.subscription(f.tier(b), subscription.StatusActive)
	f.grants.put(sub.ID, b.ID, f.user.ID, StateGranted)

	now := f.now
	b.DeletedAt = &now
	require.NoError(t, f.o.BenefitDeleted(context.Background(), b))
	f.runAll(t)

	assert.Equal(t, int64(1), f.svc.revokes.Load())
	assert.Equal(t, StateRevoked, f.grants.get(sub.ID, b.ID).State)
}

func TestTierChangeTouchesOnlyTheDifference(t *testing.T) {
	f := newFixture(Options{})
	kept, dropped, added := f.benefit(), f.benefit(), f.benefit()
	oldTier := f.tier(kept, dropped)
	newTier := f.tier(kept, added)
	sub := f.subscription(newTier, subscription.StatusActive)
	f.grants.put(sub.ID, kept.ID, f.user.ID, StateGranted)
	f.grants.put(sub.ID, dropped.ID, f.user.ID, StateGranted)

	require.NoError(t, f.o.SubscriptionTierChanged(context.Background(), sub, oldTier.ID))
	jobs := f.runAll(t)

	actions := map[uuid.UUID]Action{}
	for _, job := range jobs {
		actions[job.BenefitID] = job.Action
	}
	assert.Equal(t, map[uuid.UUID]Action{added.ID: ActionGrant, dropped.ID: ActionRevoke}, actions)
	assert.Equal(t, StateGranted, f.grants.get(sub.ID, added.ID).State)
	assert.Equal(t, StateRevoked, f.grants.get(sub.ID, dropped.ID).State)
	assert.Equal(t, StateGranted, f.grants.get(sub.ID, kept.ID).State)
}

func TestTierChangeWhilePastDueSettlesOnReactivation(t *testing.T) {
	f := newFixture(Options{})
	kept, dropped, added := f.benefit(), f.benefit(), f.benefit()
	oldTier := f.tier(kept, dropped)
	newTier := f.tier(kept, added)
	sub := f.subscription(newTier, subscription.StatusPastDue)
	f.grants.put(sub.ID, kept.ID, f.user.ID, StateGranted)
	f.grants.put(sub.ID, dropped.ID, f.user.ID, StateGranted)
	ctx := context.Background()

	require.NoError(t, f.o.SubscriptionTierChanged(ctx, sub, oldTier.ID))
	f.runAll(t)
	assert.Equal(t, StateRevoked, f.grants.get(sub.ID, dropped.ID).State)
	assert.Nil(t, f.grants.get(sub.ID, added.ID), "no grants during the grace period")

	sub.Status = subscription.StatusActive
	require.NoError(t, f.o.SubscriptionActivated(ctx, sub))
	f.runAll(t)
	assert.Equal(t, StateGranted, f.grants.get(sub.ID, added.ID).State)
	assert.Equal(t, StateGranted, f.grants.get(sub.ID, kept.ID).State)
	assert.Equal(t, StateRevoked, f.grants.get(sub.ID, dropped.ID).State)
	assert.Equal(t, int64(1), f.svc.revokes.Load())
}

func TestGrantIsRecordedWhenWorkerStopsMidCall(t *testing.T) {
	f := newFixture(Options{})
	b := f.benefit()
	sub := f.subscription(f.tier(b), subscription.StatusActive)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.onGrant = cancel

	require.NoError(t, f.o.Run(ctx, newJob(ActionGrant, sub.ID, b.ID)))
	g := f.grants.get(sub.ID, b.ID)
	require.NotNil(t, g)
	assert.Equal(t, StateGranted, g.State)
}

func TestStaleJobsAreSkipped(t *testing.T) {
	f := newFixture(Options{})
	b := f.benefit()
	tr := f.tier(b)
	ctx := context.Background()

	// revoke while the benefit is still on the active tier
	active := f.subscription(tr, subscription.StatusActive)
	f.grants.put(active.ID, b.ID, f.user.ID, StateGranted)
	require.NoError(t, f.o.Run(ctx, newJob(ActionRevoke, active.ID, b.ID)))
	assert.Zero(t, f.svc.revokes.Load())
	assert.Equal(t, StateGranted, f.grants.get(active.ID, b.ID).State)

	// grant for a subscription that is no longer active
	canceled := f.subscription(tr, subscription.StatusCanceled)
	require.NoError(t, f.o.Run(ctx, newJob(ActionGrant, canceled.ID, b.ID)))
	assert.Zero(t, f.svc.grants.Load())

	// second fresh grant of an already granted pair
	require.NoError(t, f.o.Run(ctx, newJob(ActionGrant, active.ID, b.ID)))
	assert.Zero(t, f.svc.grants.Load())

	// revoke with nothing granted
	require.NoError(t, f.o.Run(ctx, newJob(ActionRevoke, canceled.ID, b.ID)))
	assert.Zero(t, f.svc.revokes.Load())

	// unknown subscription
	require.NoError(t, f.o.Run(ctx, newJob(ActionGrant, uuid.New(), b.ID)))
}

func TestPairOperationsNeverInterleave(t *testing.T) {
	f := newFixture(Options{})
	f.svc.delay = 2 * time.Millisecond
	b := f.benefit()
	sub := f.subscription(f.tier(b), subscription.StatusActive)
	f.grants.put(sub.ID, b.ID, f.user.ID, StateGranted)

	job := newJob(ActionGrant, sub.ID, b.ID)
	job.Update = true

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.o.Run(context.Background(), job))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), f.svc.grants.Load())
	assert.Equal(t, int64(1), f.svc.peak.Load())
}

func TestReconcileSubscription(t *testing.T) {
	f := newFixture(Options{})
	onTier, detached := f.benefit(), f.benefit()
	sub := f.subscription(f.tier(onTier), subscription.StatusActive)
	f.grants.put(sub.ID, detached.ID, f.user.ID, StateGranted)
	ctx := context.Background()

	result, err := f.o.ReconcileSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, &ReconcileResult{Grants: 1, Revokes: 1}, result)

	f.runAll(t)
	assert.Equal(t, StateGranted, f.grants.get(sub.ID, onTier.ID).State)
	assert.Equal(t, StateRevoked, f.grants.get(sub.ID, detached.ID).State)

	// in line now
	result, err = f.o.ReconcileSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, &ReconcileResult{}, result)

	_, err = f.o.ReconcileSubscription(ctx, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRegisterDispatchesJobs(t *testing.T) {
	f := newFixture(Options{})
	b := f.benefit()
	sub := f.subscription(f.tier(b), subscription.StatusActive)

	d := queue.NewDispatcher()
	f.o.Register(d)
	task, err := queue.NewTask(TaskGrant, newJob(ActionGrant, sub.ID, b.ID))
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), task))

	assert.Equal(t, StateGranted, f.grants.get(sub.ID, b.ID).State)
}
