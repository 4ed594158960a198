package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/morezero/apex-dispatch/pkg/db"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu     sync.RWMutex
	regs   []db.WorkerRegistration
	nextID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// ListWorkers returns the workers for routingKey in registration order.
func (s *MemoryStore) ListWorkers(_ context.Context, routingKey string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, r := range s.regs {
		if r.RoutingKey == routingKey {
			out = append(out, r.Worker)
		}
	}
	return out, nil
}

// InsertWorkers appends regs, skipping ones already present.
func (s *MemoryStore) InsertWorkers(_ context.Context, regs []db.WorkerRegistration) ([]db.WorkerRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []db.WorkerRegistration
	for _, reg := range regs {
		if s.indexOf(reg.RoutingKey, reg.Worker) >= 0 {
			continue
		}
		reg.ID = s.nextID
		s.nextID++
		if reg.Created.IsZero() {
			reg.Created = time.Now().UTC()
		}
		s.regs = append(s.regs, reg)
		inserted = append(inserted, reg)
	}
	return inserted, nil
}

// DeleteWorker removes one registration.
func (s *MemoryStore) DeleteWorker(_ context.Context, routingKey, worker string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(routingKey, worker)
	if i < 0 {
		return false, nil
	}
	s.regs = append(s.regs[:i], s.regs[i+1:]...)
	return true, nil
}

// ListAll returns every registration ordered by routing key, then
// registration order.
func (s *MemoryStore) ListAll(_ context.Context) ([]db.WorkerRegistration, error) {
	s.mu.RLock()
	out := append([]db.WorkerRegistration(nil), s.regs...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].RoutingKey < out[j].RoutingKey })
	return out, nil
}

// Clear removes every registration.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.regs = nil
	s.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) indexOf(routingKey, worker string) int {
	for i, r := range s.regs {
		if r.RoutingKey == routingKey && r.Worker == worker {
			return i
		}
	}
	return -1
}
