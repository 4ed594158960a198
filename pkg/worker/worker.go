// Package worker defines dispatch targets: a worker is a named component with
// an explicit map of the operations it implements.
package worker

import (
	"context"
	"fmt"
	"sort"

	"github.com/morezero/apex-dispatch/pkg/message"
	"github.com/morezero/apex-dispatch/pkg/reqctx"
)

// Invocation is what a handler receives: the message being dispatched and the
// request context it may mutate.
type Invocation struct {
	Message *message.Message
	Request *reqctx.Context
}

// HandlerFunc implements one operation. A returned error is fatal and aborts
// the whole dispatch; application failures are reported through the Outcome.
type HandlerFunc func(ctx context.Context, inv *Invocation) (Outcome, error)

// Worker is a component instance exposing named operations.
type Worker struct {
	pkg      string
	alias    string
	handlers map[string]HandlerFunc
}

// New creates a worker for package pkg under alias.
func New(pkg, alias string) *Worker {
	return &Worker{pkg: pkg, alias: alias, handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for operation op and returns w for chaining.
func (w *Worker) Handle(op string, fn HandlerFunc) *Worker {
	w.handlers[op] = fn
	return w
}

// Package is the owning package, used as the worker's result domain.
func (w *Worker) Package() string { return w.pkg }

// Alias is the worker's class name inside its package.
func (w *Worker) Alias() string { return w.alias }

// ID returns "package:alias".
func (w *Worker) ID() string { return w.pkg + ":" + w.alias }

// Handler returns the handler for op.
func (w *Worker) Handler(op string) (HandlerFunc, bool) {
	fn, ok := w.handlers[op]
	return fn, ok
}

// Operations lists the implemented operations, sorted.
func (w *Worker) Operations() []string {
	ops := make([]string, 0, len(w.handlers))
	for op := range w.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Invoke runs op. ok is false when the worker does not implement op. A panic
// inside the handler is converted to a fatal error.
func (w *Worker) Invoke(ctx context.Context, op string, inv *Invocation) (out Outcome, ok bool, err error) {
	fn, ok := w.handlers[op]
	if !ok {
		return Outcome{}, false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{}
			err = fmt.Errorf("worker %s panicked in %s: %v", w.ID(), op, r)
		}
	}()
	out, err = fn(ctx, inv)
	return out, true, err
}
