package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearRegistrations truncates worker_registrations. The schema is kept;
// RESTART IDENTITY resets the ordering sequence.
func ClearRegistrations(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing worker registrations", clearLogPrefix))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE worker_registrations RESTART IDENTITY`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Worker registrations cleared", clearLogPrefix))
	return nil
}
