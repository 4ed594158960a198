package registry

import (
	"context"
	"sync"

	"github.com/morezero/apex-dispatch/pkg/events"
	"github.com/morezero/apex-dispatch/pkg/worker"
)

// Registry holds the components provided in code and the worker
// registrations that route messages to them.
type Registry struct {
	store     Store
	publisher events.EventPublisher

	mu       sync.RWMutex
	provided map[string]provided
	loaded   map[string]*worker.Worker
}

// NewRegistryParams holds parameters for NewRegistry.
type NewRegistryParams struct {
	// Store defaults to a new MemoryStore.
	Store Store
	// Publisher defaults to events.NoOpPublisher.
	Publisher events.EventPublisher
}

// NewRegistry creates a new Registry.
func NewRegistry(params NewRegistryParams) *Registry {
	store := params.Store
	if store == nil {
		store = NewMemoryStore()
	}
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	return &Registry{
		store:     store,
		publisher: pub,
		provided:  make(map[string]provided),
		loaded:    make(map[string]*worker.Worker),
	}
}

// Health reports whether the registration store is reachable.
func (r *Registry) Health(ctx context.Context) error {
	return r.store.Ping(ctx)
}
