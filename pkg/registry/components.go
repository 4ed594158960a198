package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/morezero/apex-dispatch/pkg/worker"
)

const componentsLogPrefix = "registry:components"

type provided struct {
	ref     Ref
	factory Factory
}

// ProvideOption configures Provide.
type ProvideOption func(*provided)

// WithParent records the package a component is provided on behalf of.
func WithParent(pkg string) ProvideOption {
	return func(p *provided) { p.ref.Parent = pkg }
}

// Provide makes the worker id ("package:alias") loadable. Providing the same
// id again replaces the factory and drops any cached instance.
func (r *Registry) Provide(id string, factory Factory, opts ...ProvideOption) error {
	pkg, alias, err := ParseWorkerID(id)
	if err != nil {
		return err
	}
	if factory == nil {
		return NewRegistryError(CodeInvalidArgument, fmt.Sprintf("nil factory for %s", id))
	}

	p := provided{ref: Ref{Package: pkg, Alias: alias}, factory: factory}
	for _, opt := range opts {
		opt(&p)
	}

	r.mu.Lock()
	r.provided[id] = p
	delete(r.loaded, id)
	r.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - Provided %s", componentsLogPrefix, id))
	return nil
}

// Components lists the provided worker ids, sorted.
func (r *Registry) Components() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.provided))
	for id := range r.provided {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Check resolves alias ("package:alias") in category to a Ref.
func (r *Registry) Check(category, alias string) (Ref, error) {
	if category != CategoryWorker {
		return Ref{}, NewRegistryError(CodeInvalidArgument, fmt.Sprintf("unknown component category %q", category))
	}
	if _, _, err := ParseWorkerID(alias); err != nil {
		return Ref{}, err
	}

	r.mu.RLock()
	p, ok := r.provided[alias]
	r.mu.RUnlock()
	if !ok {
		return Ref{}, NewRegistryError(CodeNotFound, fmt.Sprintf("%s %s is not provided", category, alias))
	}
	return p.ref, nil
}

// Load returns the worker instance for ref, building it on first use.
func (r *Registry) Load(ctx context.Context, category string, ref Ref) (*worker.Worker, error) {
	if category != CategoryWorker {
		return nil, NewRegistryError(CodeInvalidArgument, fmt.Sprintf("unknown component category %q", category))
	}
	id := ref.ID()

	r.mu.RLock()
	w, ok := r.loaded[id]
	p, found := r.provided[id]
	r.mu.RUnlock()
	if ok {
		return w, nil
	}
	if !found {
		return nil, NewRegistryError(CodeNotFound, fmt.Sprintf("%s %s is not provided", category, id))
	}

	// The factory runs unlocked so it may load other components.
	w, err := p.factory(ctx, ref)
	if err != nil {
		return nil, &RegistryError{Code: CodeLoadFailed, Message: fmt.Sprintf("failed to load %s", id), Err: err}
	}
	if w == nil {
		return nil, NewRegistryError(CodeLoadFailed, fmt.Sprintf("factory for %s returned no worker", id))
	}
	if w.ID() != id {
		return nil, NewRegistryError(CodeLoadFailed, fmt.Sprintf("factory for %s built %s", id, w.ID()))
	}

	r.mu.Lock()
	if cached, ok := r.loaded[id]; ok {
		w = cached
	} else {
		r.loaded[id] = w
	}
	r.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - Loaded %s with operations %v", componentsLogPrefix, id, w.Operations()))
	return w, nil
}

// Call loads ref and invokes function on it. ok is false when the worker
// does not implement function.
func (r *Registry) Call(ctx context.Context, function, category string, ref Ref, inv *worker.Invocation) (worker.Outcome, bool, error) {
	w, err := r.Load(ctx, category, ref)
	if err != nil {
		return worker.Outcome{}, false, err
	}
	return w.Invoke(ctx, function, inv)
}
