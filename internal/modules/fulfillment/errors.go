package fulfillment

import (
	"fmt"
	"math"
	"time"
)

// RetriableError is a transient failure. The call should be repeated no
// sooner than DeferSeconds from now.
type RetriableError struct {
	DeferSeconds int
	Err          error
}

// Retry builds a RetriableError, rounding d up to whole seconds.
func Retry(d time.Duration, err error) *RetriableError {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return &RetriableError{DeferSeconds: secs, Err: err}
}

func (e *RetriableError) Error() string {
	return fmt.Sprintf("retriable after %ds: %v", e.DeferSeconds, e.Err)
}

func (e *RetriableError) Unwrap() error { return e.Err }

// Defer returns the backoff as a duration.
func (e *RetriableError) Defer() time.Duration {
	return time.Duration(e.DeferSeconds) * time.Second
}

// PreconditionError means the benefit cannot be fulfilled until the user
// does something. Payload, when set, is forwarded to the user as a
// notification.
type PreconditionError struct {
	Message string
	Payload map[string]interface{}
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Message
}

const (
	backoffBase = 5 * time.Second
	backoffMax  = 15 * time.Minute
)

// Backoff returns an exponential delay for attempt, starting at 5s and capped
// at 15m.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffMax {
			return backoffMax
		}
	}
	return d
}
