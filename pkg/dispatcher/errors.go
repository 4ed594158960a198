package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/morezero/apex-dispatch/pkg/message"
)

// ConnectionError reports a broker dial, declare or publish failure.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("dispatcher: broker %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError reports that no reply matched CorrelationID within Timeout.
type TimeoutError struct {
	CorrelationID string
	Timeout       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("dispatcher: no reply for %s within %s", e.CorrelationID, e.Timeout)
}

// Unwrap lets errors.Is match context.DeadlineExceeded.
func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// WorkerLoadError reports a worker that could not be resolved or built. The
// engine logs it and moves on to the next worker.
type WorkerLoadError struct {
	Worker string
	Err    error
}

func (e *WorkerLoadError) Error() string {
	return fmt.Sprintf("dispatcher: failed to load worker %s: %v", e.Worker, e.Err)
}

func (e *WorkerLoadError) Unwrap() error { return e.Err }

// ApplicationError is returned by Dispatch when a worker reported an
// application error. Response holds the full result.
type ApplicationError struct {
	Message  string
	Response *message.Response
}

func (e *ApplicationError) Error() string {
	return "dispatcher: application error: " + e.Message
}
