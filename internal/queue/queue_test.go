package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeting struct {
	Name string `json:"name"`
}

func newRedisScheduler(t *testing.T, now time.Time) (*RedisScheduler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := NewRedisScheduler(client, WithKey("test:tasks"))
	s.nowFn = func() time.Time { return now }
	return s, mr
}

func TestDispatcherRoutesByName(t *testing.T) {
	d := NewDispatcher()
	var got greeting
	d.Register("greet", func(ctx context.Context, payload json.RawMessage) error {
		return json.Unmarshal(payload, &got)
	})

	task, err := NewTask("greet", greeting{Name: "ada"})
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), task))
	assert.Equal(t, "ada", got.Name)

	unknown, err := NewTask("missing", nil)
	require.NoError(t, err)
	assert.ErrorContains(t, d.Dispatch(context.Background(), unknown), "no handler")
}

func TestDispatcherReturnsHandlerError(t *testing.T) {
	d := NewDispatcher()
	d.Register("fail", func(ctx context.Context, payload json.RawMessage) error {
		return errors.New("boom")
	})
	task, _ := NewTask("fail", nil)
	assert.EqualError(t, d.Dispatch(context.Background(), task), "boom")
}

func TestRedisSchedulerClaimsOnlyDueTasks(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newRedisScheduler(t, now)
	ctx := context.Background()

	due, _ := NewTask("greet", greeting{Name: "due"})
	later, _ := NewTask("greet", greeting{Name: "later"})
	require.NoError(t, s.Schedule(ctx, due, now.Add(-time.Second)))
	require.NoError(t, s.Schedule(ctx, later, now.Add(time.Minute)))

	tasks, err := s.Claim(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, due.ID, tasks[0].ID)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	// claiming again returns nothing until the clock moves
	tasks, err = s.Claim(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	s.nowFn = func() time.Time { return now.Add(2 * time.Minute) }
	tasks, err = s.Claim(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, later.ID, tasks[0].ID)
}

func TestRedisSchedulerRunDispatches(t *testing.T) {
	s, _ := newRedisScheduler(t, time.Now())
	s.nowFn = time.Now
	d := NewDispatcher()

	var count atomic.Int64
	d.Register("greet", func(ctx context.Context, payload json.RawMessage) error {
		count.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < 3; i++ {
		task, _ := NewTask("greet", greeting{Name: "x"})
		require.NoError(t, s.Schedule(ctx, task, time.Now().Add(-time.Millisecond)))
	}

	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx, d, 2, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return count.Load() == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestRedisSchedulerRequeuesTaskInterruptedByShutdown(t *testing.T) {
	s, _ := newRedisScheduler(t, time.Now())
	s.nowFn = time.Now
	d := NewDispatcher()

	started := make(chan struct{})
	d.Register("greet", func(ctx context.Context, payload json.RawMessage) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task, _ := NewTask("greet", greeting{Name: "x"})
	require.NoError(t, s.Schedule(ctx, task, time.Now().Add(-time.Millisecond)))

	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx, d, 1, 5*time.Millisecond)
		close(done)
	}()

	<-started
	cancel()
	<-done

	pending, err := s.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestMemorySchedulerHonorsDelay(t *testing.T) {
	d := NewDispatcher()
	var (
		mu    sync.Mutex
		order []string
	)
	d.Register("greet", func(ctx context.Context, payload json.RawMessage) error {
		var g greeting
		_ = json.Unmarshal(payload, &g)
		mu.Lock()
		order = append(order, g.Name)
		mu.Unlock()
		return nil
	})

	s := NewMemoryScheduler(context.Background(), d, 1)
	first, _ := NewTask("greet", greeting{Name: "late"})
	second, _ := NewTask("greet", greeting{Name: "now"})
	require.NoError(t, s.Schedule(context.Background(), first, time.Now().Add(50*time.Millisecond)))
	require.NoError(t, s.Schedule(context.Background(), second, time.Now()))
	s.Wait()

	assert.Equal(t, []string{"now", "late"}, order)
}
