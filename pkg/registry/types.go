// Package registry resolves worker ids to worker instances and records which
// workers serve each routing key.
package registry

import (
	"context"
	"fmt"
	"regexp"

	"github.com/morezero/apex-dispatch/pkg/db"
	"github.com/morezero/apex-dispatch/pkg/worker"
)

// CategoryWorker is the only component category the dispatcher loads.
const CategoryWorker = "worker"

// Error codes.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
	CodeLoadFailed      = "LOAD_FAILED"
)

var (
	routingKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+\.[A-Za-z0-9_]+$`)
	workerIDPattern   = regexp.MustCompile(`^([A-Za-z0-9_]+):([A-Za-z0-9_]+)$`)
)

// Ref identifies a resolved component. Parent names the package the
// component was provided on behalf of, if any.
type Ref struct {
	Package string
	Parent  string
	Alias   string
}

// ID returns "package:alias".
func (r Ref) ID() string { return r.Package + ":" + r.Alias }

// Factory builds a worker instance for ref.
type Factory func(ctx context.Context, ref Ref) (*worker.Worker, error)

// Routes resolves a routing key to its ordered worker ids.
type Routes interface {
	Workers(ctx context.Context, routingKey string) ([]string, error)
}

// Store persists worker registrations. Implementations keep registration
// order per routing key and ignore duplicates.
type Store interface {
	ListWorkers(ctx context.Context, routingKey string) ([]string, error)
	InsertWorkers(ctx context.Context, regs []db.WorkerRegistration) ([]db.WorkerRegistration, error)
	DeleteWorker(ctx context.Context, routingKey, worker string) (bool, error)
	ListAll(ctx context.Context) ([]db.WorkerRegistration, error)
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
}

// RegistryError is a structured error from the registry.
type RegistryError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *RegistryError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *RegistryError) Unwrap() error { return e.Err }

// NewRegistryError creates a new RegistryError.
func NewRegistryError(code, message string) *RegistryError {
	return &RegistryError{Code: code, Message: message}
}

// ParseWorkerID splits "package:alias".
func ParseWorkerID(id string) (pkg, alias string, err error) {
	m := workerIDPattern.FindStringSubmatch(id)
	if m == nil {
		return "", "", NewRegistryError(CodeInvalidArgument, fmt.Sprintf("worker id %q must be package:alias", id))
	}
	return m[1], m[2], nil
}

// ValidateRoutingKey checks the two-segment "domain.category" form.
func ValidateRoutingKey(key string) error {
	if !routingKeyPattern.MatchString(key) {
		return NewRegistryError(CodeInvalidArgument, fmt.Sprintf("routing key %q must be domain.category", key))
	}
	return nil
}
