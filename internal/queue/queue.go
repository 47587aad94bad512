package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/georgemunganga/fanbase-backend/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Task is a reference to a registered handler plus its arguments.
type Task struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewTask encodes payload into a task for the handler registered as name.
func NewTask(name string, payload interface{}) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return Task{ID: uuid.NewString(), Name: name, Payload: raw, EnqueuedAt: time.Now().UTC()}, nil
}

// Scheduler runs a task no sooner than notBefore.
type Scheduler interface {
	Schedule(ctx context.Context, task Task, notBefore time.Time) error
}

// Handler executes one task payload.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Dispatcher maps task names to handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds name to h, replacing any previous handler.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Dispatch runs the handler for task. Handler errors are returned after
// being logged and counted.
func (d *Dispatcher) Dispatch(ctx context.Context, task Task) error {
	d.mu.RLock()
	h, ok := d.handlers[task.Name]
	d.mu.RUnlock()
	if !ok {
		metrics.RecordQueueTask(task.Name, metrics.OutcomeSkipped)
		log.Error().Str("task_id", task.ID).Str("task", task.Name).Msg("no handler registered for task")
		return fmt.Errorf("no handler registered for task %q", task.Name)
	}

	if err := h(ctx, task.Payload); err != nil {
		metrics.RecordQueueTask(task.Name, metrics.OutcomeFailed)
		log.Error().Err(err).Str("task_id", task.ID).Str("task", task.Name).Msg("task failed")
		return err
	}
	metrics.RecordQueueTask(task.Name, metrics.OutcomeSuccess)
	return nil
}
