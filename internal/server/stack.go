package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/apex-dispatch/internal/builtin"
	"github.com/morezero/apex-dispatch/internal/config"
	"github.com/morezero/apex-dispatch/pkg/bootstrap"
	"github.com/morezero/apex-dispatch/pkg/broker"
	_ "github.com/morezero/apex-dispatch/pkg/broker/amqpbroker"
	_ "github.com/morezero/apex-dispatch/pkg/broker/natsbroker"
	"github.com/morezero/apex-dispatch/pkg/commsutil"
	"github.com/morezero/apex-dispatch/pkg/db"
	"github.com/morezero/apex-dispatch/pkg/dispatcher"
	"github.com/morezero/apex-dispatch/pkg/events"
	"github.com/morezero/apex-dispatch/pkg/registry"
)

const stackLogPrefix = "server:stack"

// Stack holds the components shared by the listener and the CLI commands.
type Stack struct {
	cfg  *config.Config
	reg  *registry.Registry
	pool *pgxpool.Pool
	nc   *comms.Conn
}

// SetupLogging installs the default slog text handler writing to w at level.
func SetupLogging(w io.Writer, level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})))
}

// OpenStack builds the registry. With DATABASE_URL set registrations live in
// PostgreSQL (migrated first when RUN_MIGRATIONS is on), otherwise in memory.
// Registration changes are published to NATS when an events URL resolves and
// logged otherwise.
// Built-in workers are provided; nothing is registered yet.
func OpenStack(ctx context.Context, cfg *config.Config) (*Stack, error) {
	s := &Stack{cfg: cfg}
	params := registry.NewRegistryParams{}

	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to database: %w", stackLogPrefix, err)
		}
		s.pool = pool

		if cfg.RunMigrations {
			migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("%s - failed to load migrations: %w", stackLogPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
				s.Close()
				return nil, fmt.Errorf("%s - failed to run migrations: %w", stackLogPrefix, err)
			}
		}
		params.Store = db.NewRepository(pool)
	} else {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL not set, keeping registrations in memory", stackLogPrefix))
	}

	if url := cfg.EventsNATSURL(); url != "" {
		nc, err := commsutil.Connect(url, cfg.ServiceName)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%s - failed to connect to events server: %w", stackLogPrefix, err)
		}
		s.nc = nc
		params.Publisher = events.NewCommsPublisher(nc, nil)
	} else {
		params.Publisher = events.NewCallbackPublisher(logRegistrationChange)
	}

	s.reg = registry.NewRegistry(params)
	if err := builtin.Provide(s.reg); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s - failed to provide builtin workers: %w", stackLogPrefix, err)
	}
	return s, nil
}

func logRegistrationChange(_ context.Context, event *events.RegistrationChangedEvent) error {
	slog.Info(fmt.Sprintf("%s - Worker %s %s on %s (version %s)", stackLogPrefix,
		event.Worker, event.Action, event.RoutingKey, event.Version))
	return nil
}

// Registry returns the registry.
func (s *Stack) Registry() *registry.Registry { return s.reg }

// Persistent reports whether registrations are stored in PostgreSQL.
func (s *Stack) Persistent() bool { return s.pool != nil }

// SeedManifest registers the workers of the manifest at path, falling back to
// WORKERS_FILE and the default locations. Existing registrations are kept.
func (s *Stack) SeedManifest(ctx context.Context, path string) (int, error) {
	if path == "" {
		path = s.cfg.WorkersFile
	}
	m, err := bootstrap.LoadManifest(path)
	if err != nil {
		return 0, err
	}
	return s.reg.Seed(ctx, m)
}

// Engine returns an Engine over the registry.
func (s *Stack) Engine() *dispatcher.Engine {
	return dispatcher.NewRegistryEngine(s.reg)
}

// Dispatcher returns a Dispatcher for the configured mode.
func (s *Stack) Dispatcher() (*dispatcher.Dispatcher, error) {
	if !s.cfg.Remote() {
		return dispatcher.New(s.Engine()), nil
	}
	dial, err := broker.DialerFor(s.cfg.BrokerDriver)
	if err != nil {
		return nil, err
	}
	return dispatcher.New(nil,
		dispatcher.WithRemote(dial, s.cfg),
		dispatcher.WithChannel(s.cfg.BrokerChannel),
		dispatcher.WithTimeout(s.cfg.RPCTimeout),
	), nil
}

// Close releases the database pool and the events connection.
func (s *Stack) Close() {
	if s.nc != nil {
		s.nc.Drain()
		s.nc = nil
	}
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}
