package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/morezero/apex-dispatch/pkg/bootstrap"
	"github.com/morezero/apex-dispatch/pkg/db"
	"github.com/morezero/apex-dispatch/pkg/events"
)

const registrationsLogPrefix = "registry:registrations"

// Workers returns the worker ids registered for routingKey, in invocation
// order. It implements Routes.
func (r *Registry) Workers(ctx context.Context, routingKey string) ([]string, error) {
	return r.store.ListWorkers(ctx, routingKey)
}

// Register adds workerID to routingKey. version is the worker package's
// semantic version. Registering an existing pair is a no-op and keeps its
// position.
func (r *Registry) Register(ctx context.Context, routingKey, workerID, version string) error {
	_, err := r.registerAll(ctx, []bootstrap.WorkerEntry{{RoutingKey: routingKey, Worker: workerID, Version: version}})
	return err
}

// Seed registers every manifest entry. Entries are validated first, so an
// invalid entry registers nothing. It returns the number of new
// registrations.
func (r *Registry) Seed(ctx context.Context, m *bootstrap.Manifest) (int, error) {
	slog.Info(fmt.Sprintf("%s - Seeding %d entries from manifest %s@%s", registrationsLogPrefix, len(m.Workers), m.Name, m.Version))
	if err := m.Validate(); err != nil {
		return 0, &RegistryError{Code: CodeInvalidArgument, Message: "invalid manifest", Err: err}
	}
	n, err := r.registerAll(ctx, m.Workers)
	if err != nil {
		return 0, err
	}
	slog.Info(fmt.Sprintf("%s - Seeded %d new registrations", registrationsLogPrefix, n))
	return n, nil
}

func (r *Registry) registerAll(ctx context.Context, entries []bootstrap.WorkerEntry) (int, error) {
	regs := make([]db.WorkerRegistration, 0, len(entries))
	for _, e := range entries {
		reg, err := validateEntry(e)
		if err != nil {
			return 0, err
		}
		regs = append(regs, reg)
	}

	inserted, err := r.store.InsertWorkers(ctx, regs)
	if err != nil {
		return 0, fmt.Errorf("%s - %w", registrationsLogPrefix, err)
	}

	for _, reg := range inserted {
		slog.Info(fmt.Sprintf("%s - Registered %s for %s (version %s)", registrationsLogPrefix, reg.Worker, reg.RoutingKey, reg.Version))
		r.publish(ctx, events.ActionRegistered, reg.RoutingKey, reg.Worker, reg.Version)
	}
	return len(inserted), nil
}

// Unregister removes workerID from routingKey. It reports whether the
// registration existed.
func (r *Registry) Unregister(ctx context.Context, routingKey, workerID string) (bool, error) {
	if err := ValidateRoutingKey(routingKey); err != nil {
		return false, err
	}
	if _, _, err := ParseWorkerID(workerID); err != nil {
		return false, err
	}

	removed, err := r.store.DeleteWorker(ctx, routingKey, workerID)
	if err != nil {
		return false, fmt.Errorf("%s - %w", registrationsLogPrefix, err)
	}
	if removed {
		slog.Info(fmt.Sprintf("%s - Unregistered %s from %s", registrationsLogPrefix, workerID, routingKey))
		r.publish(ctx, events.ActionUnregistered, routingKey, workerID, "")
	}
	return removed, nil
}

// List returns every registration.
func (r *Registry) List(ctx context.Context) ([]db.WorkerRegistration, error) {
	return r.store.ListAll(ctx)
}

// Clear removes every registration without publishing events.
func (r *Registry) Clear(ctx context.Context) error {
	return r.store.Clear(ctx)
}

func (r *Registry) publish(ctx context.Context, action, routingKey, workerID, version string) {
	err := r.publisher.PublishChanged(ctx, &events.RegistrationChangedEvent{
		Action:     action,
		RoutingKey: routingKey,
		Worker:     workerID,
		Version:    version,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		slog.Error(fmt.Sprintf("%s - PublishChanged failed: %v", registrationsLogPrefix, err))
	}
}

func validateEntry(e bootstrap.WorkerEntry) (db.WorkerRegistration, error) {
	if err := ValidateRoutingKey(e.RoutingKey); err != nil {
		return db.WorkerRegistration{}, err
	}
	if _, _, err := ParseWorkerID(e.Worker); err != nil {
		return db.WorkerRegistration{}, err
	}
	v, err := semver.NewVersion(e.Version)
	if err != nil {
		return db.WorkerRegistration{}, &RegistryError{
			Code:    CodeInvalidArgument,
			Message: fmt.Sprintf("version %q of %s is not a semantic version", e.Version, e.Worker),
			Err:     err,
		}
	}
	return db.WorkerRegistration{RoutingKey: e.RoutingKey, Worker: e.Worker, Version: v.String()}, nil
}
