package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// Repository provides database access for worker registrations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// ListWorkers returns the worker ids registered for routingKey in
// registration order.
func (r *Repository) ListWorkers(ctx context.Context, routingKey string) ([]string, error) {
	slog.Debug(fmt.Sprintf("%s - ListWorkers routing_key=%s", repoLogPrefix, routingKey))

	rows, err := r.pool.Query(ctx,
		`SELECT worker FROM worker_registrations
		 WHERE routing_key = $1
		 ORDER BY id`, routingKey)
	if err != nil {
		return nil, fmt.Errorf("%s - list workers for %s: %w", repoLogPrefix, routingKey, err)
	}

	workers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s - scan workers for %s: %w", repoLogPrefix, routingKey, err)
	}
	return workers, nil
}

// InsertWorkers inserts regs in one transaction, in order. Rows already
// present for the same routing key and worker are left untouched and keep
// their position. The rows actually inserted are returned.
func (r *Repository) InsertWorkers(ctx context.Context, regs []WorkerRegistration) ([]WorkerRegistration, error) {
	slog.Info(fmt.Sprintf("%s - InsertWorkers count=%d", repoLogPrefix, len(regs)))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s - begin tx: %w", repoLogPrefix, err)
	}
	defer tx.Rollback(ctx)

	var inserted []WorkerRegistration
	for _, reg := range regs {
		row := tx.QueryRow(ctx,
			`INSERT INTO worker_registrations (routing_key, worker, version)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (routing_key, worker) DO NOTHING
			 RETURNING id, routing_key, worker, version, created`,
			reg.RoutingKey, reg.Worker, reg.Version)

		got, err := scanRegistration(row)
		if errors.Is(err, pgx.ErrNoRows) {
			slog.Debug(fmt.Sprintf("%s - %s already registered for %s", repoLogPrefix, reg.Worker, reg.RoutingKey))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s - insert %s for %s: %w", repoLogPrefix, reg.Worker, reg.RoutingKey, err)
		}
		inserted = append(inserted, *got)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s - commit: %w", repoLogPrefix, err)
	}
	return inserted, nil
}

// DeleteWorker removes one registration. It reports whether a row existed.
func (r *Repository) DeleteWorker(ctx context.Context, routingKey, worker string) (bool, error) {
	slog.Info(fmt.Sprintf("%s - DeleteWorker routing_key=%s worker=%s", repoLogPrefix, routingKey, worker))

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM worker_registrations WHERE routing_key = $1 AND worker = $2`,
		routingKey, worker)
	if err != nil {
		return false, fmt.Errorf("%s - delete %s for %s: %w", repoLogPrefix, worker, routingKey, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListAll returns every registration ordered by routing key, then
// registration order.
func (r *Repository) ListAll(ctx context.Context) ([]WorkerRegistration, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, routing_key, worker, version, created
		 FROM worker_registrations
		 ORDER BY routing_key, id`)
	if err != nil {
		return nil, fmt.Errorf("%s - list registrations: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []WorkerRegistration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("%s - scan registration: %w", repoLogPrefix, err)
		}
		out = append(out, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - list registrations: %w", repoLogPrefix, err)
	}
	return out, nil
}

// Clear removes every registration.
func (r *Repository) Clear(ctx context.Context) error {
	return ClearRegistrations(ctx, r.pool)
}

func scanRegistration(row pgx.Row) (*WorkerRegistration, error) {
	var reg WorkerRegistration
	if err := row.Scan(&reg.ID, &reg.RoutingKey, &reg.Worker, &reg.Version, &reg.Created); err != nil {
		return nil, err
	}
	return &reg, nil
}
