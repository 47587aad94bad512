package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultRedisKey = "fanbase:tasks"

// RedisScheduler keeps tasks in a sorted set scored by their not-before time
// in Unix milliseconds. Any number of workers may poll the same key; a task is
// claimed by whichever worker removes it from the set. A task whose handler
// fails because the worker is stopping goes back into the set.
type RedisScheduler struct {
	client    redis.UniversalClient
	key       string
	batchSize int64
	nowFn     func() time.Time
}

// RedisOption customizes a RedisScheduler.
type RedisOption func(*RedisScheduler)

// WithKey overrides the sorted set key.
func WithKey(key string) RedisOption {
	return func(s *RedisScheduler) { s.key = key }
}

// WithBatchSize caps how many due tasks one poll claims.
func WithBatchSize(n int64) RedisOption {
	return func(s *RedisScheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func NewRedisScheduler(client redis.UniversalClient, opts ...RedisOption) *RedisScheduler {
	s := &RedisScheduler{client: client, key: defaultRedisKey, batchSize: 100, nowFn: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (s *RedisScheduler) Schedule(ctx context.Context, task Task, notBefore time.Time) error {
	member, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	if err := s.client.ZAdd(ctx, s.key, redis.Z{Score: float64(notBefore.UnixMilli()), Member: member}).Err(); err != nil {
		return fmt.Errorf("schedule task %s: %w", task.ID, err)
	}
	return nil
}

// Claim removes and returns the tasks that are due.
func (s *RedisScheduler) Claim(ctx context.Context) ([]Task, error) {
	members, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(s.nowFn().UnixMilli(), 10),
		Count: s.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}

	tasks := make([]Task, 0, len(members))
	for _, member := range members {
		removed, err := s.client.ZRem(ctx, s.key, member).Result()
		if err != nil {
			return tasks, fmt.Errorf("claim task: %w", err)
		}
		if removed == 0 {
			// another worker claimed it
			continue
		}
		var task Task
		if err := json.Unmarshal([]byte(member), &task); err != nil {
			log.Error().Err(err).Msg("dropping undecodable task")
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Pending returns the number of tasks waiting in the set.
func (s *RedisScheduler) Pending(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, s.key).Result()
}

// Run polls for due tasks every interval and dispatches them with at most
// concurrency handlers in flight. It returns when ctx is done.
func (s *RedisScheduler) Run(ctx context.Context, dispatcher *Dispatcher, concurrency int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Str("key", s.key).Int("concurrency", concurrency).Dur("interval", interval).Msg("task worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("task worker stopped")
			return nil
		case <-ticker.C:
		}

		tasks, err := s.Claim(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to claim tasks")
		}
		if len(tasks) == 0 {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for _, task := range tasks {
			task := task
			g.Go(func() error {
				// handler errors are logged by the dispatcher and must not
				// cancel sibling tasks
				if err := dispatcher.Dispatch(gctx, task); err != nil && ctx.Err() != nil {
					s.requeue(ctx, task)
				}
				return nil
			})
		}
		_ = g.Wait()
	}
}

func (s *RedisScheduler) requeue(ctx context.Context, task Task) {
	if err := s.Schedule(context.WithoutCancel(ctx), task, s.nowFn()); err != nil {
		log.Error().Err(err).Str("task", task.Name).Msg("failed to requeue interrupted task")
		return
	}
	log.Info().Str("task", task.Name).Msg("requeued interrupted task")
}
