package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryScheduler runs tasks in-process on timers, bounded by a fixed number
// of concurrent executions. Pending tasks are lost on shutdown.
type MemoryScheduler struct {
	ctx        context.Context
	dispatcher *Dispatcher
	sem        chan struct{}
	wg         sync.WaitGroup
}

func NewMemoryScheduler(ctx context.Context, dispatcher *Dispatcher, concurrency int) *MemoryScheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &MemoryScheduler{ctx: ctx, dispatcher: dispatcher, sem: make(chan struct{}, concurrency)}
}

func (s *MemoryScheduler) Schedule(_ context.Context, task Task, notBefore time.Time) error {
	delay := time.Until(notBefore)
	if delay < 0 {
		delay = 0
	}
	s.wg.Add(1)
	time.AfterFunc(delay, func() {
		defer s.wg.Done()
		select {
		case s.sem <- struct{}{}:
		case <-s.ctx.Done():
			return
		}
		defer func() { <-s.sem }()
		_ = s.dispatcher.Dispatch(s.ctx, task)
	})
	return nil
}

// Wait blocks until every scheduled task has run, including tasks scheduled
// while waiting.
func (s *MemoryScheduler) Wait() {
	s.wg.Wait()
}
