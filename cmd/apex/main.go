// Package main is the entrypoint for apex: the listener process and the
// commands that dispatch messages and manage worker registrations.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/morezero/apex-dispatch/internal/config"
	"github.com/morezero/apex-dispatch/internal/server"
	"github.com/morezero/apex-dispatch/pkg/db"
	"github.com/morezero/apex-dispatch/pkg/message"
	"github.com/morezero/apex-dispatch/pkg/reqctx"
)

const usage = `Usage: apex [command]
       apex listen                              Consume the broker channel and run workers.
       apex dispatch [--direct] <key> [arg ...] Dispatch domain.category.function and print the response.
       apex migrate up                          Run database migrations.
       apex migrate status                      Show migration status.
       apex ensure-db [name]                    Create database if missing (default name: apex_test).
       apex seed [file]                         Register the workers listed in a manifest.
       apex register <key> <worker> <version>   Register one worker for domain.category.
       apex unregister <key> <worker>           Remove one registration.
       apex workers                             List registrations.
       apex clear                               Truncate worker registrations; schema is preserved.

Commands:
  listen      (default) Start the listener with its HTTP health endpoint.
  dispatch    Arguments are parsed as JSON, falling back to plain strings.
              --direct sends fire-and-forget; the default is rpc.
  migrate     Apply or inspect SQL migrations in MIGRATION_PATH.
  seed        Manifest path defaults to WORKERS_FILE, config/workers.json, workers.json.

Environment: DISPATCH_MODE (local|remote), BROKER_DRIVER (amqp|nats), BROKER_HOST, BROKER_PORT,
BROKER_USER, BROKER_PASS, BROKER_CHANNEL, RPC_TIMEOUT, WORKERS_FILE, DATABASE_URL, RUN_MIGRATIONS,
MIGRATION_PATH, EVENTS_URL, HTTP_PORT, LOG_LEVEL. Registration commands require DATABASE_URL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "listen", "":
		if err := server.Run(); err != nil {
			log.Fatalf("apex: %v", err)
		}
		return
	}

	if err := run(context.Background(), cmd, args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n%s", err, usage)
			os.Exit(2)
		}
		log.Fatalf("apex %s: %v", cmd, err)
	}
}

var errUsage = errors.New("apex: invalid usage")

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// run executes every command except listen and help.
func run(ctx context.Context, cmd string, args []string, stdout io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(os.Stderr, cfg.LogLevel)

	switch cmd {
	case "dispatch":
		return runDispatch(ctx, cfg, args, stdout)
	case "migrate":
		if len(args) < 1 {
			return usageErr("migrate requires a subcommand (up, status)")
		}
		switch args[0] {
		case "up":
			return runMigrateUp(ctx, cfg)
		case "status":
			return runMigrateStatus(ctx, cfg)
		default:
			return usageErr("unknown migrate subcommand %q (use up, status)", args[0])
		}
	case "ensure-db":
		name := "apex_test"
		if len(args) > 0 && args[0] != "" {
			name = args[0]
		}
		return runEnsureDB(ctx, cfg, name, stdout)
	case "seed":
		file := ""
		if len(args) > 0 {
			file = args[0]
		}
		return runSeed(ctx, cfg, file, stdout)
	case "register":
		if len(args) != 3 {
			return usageErr("register requires <key> <worker> <version>")
		}
		return withRegistry(ctx, cfg, func(s *server.Stack) error {
			if err := s.Registry().Register(ctx, args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Registered %s for %s.\n", args[1], args[0])
			return nil
		})
	case "unregister":
		if len(args) != 2 {
			return usageErr("unregister requires <key> <worker>")
		}
		return withRegistry(ctx, cfg, func(s *server.Stack) error {
			removed, err := s.Registry().Unregister(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%s is not registered for %s", args[1], args[0])
			}
			fmt.Fprintf(stdout, "Unregistered %s from %s.\n", args[1], args[0])
			return nil
		})
	case "workers":
		return withRegistry(ctx, cfg, func(s *server.Stack) error {
			regs, err := s.Registry().List(ctx)
			if err != nil {
				return err
			}
			return printWorkers(stdout, regs)
		})
	case "clear":
		return withRegistry(ctx, cfg, func(s *server.Stack) error {
			if err := s.Registry().Clear(ctx); err != nil {
				return fmt.Errorf("clear registrations: %w", err)
			}
			fmt.Fprintln(stdout, "Worker registrations cleared.")
			return nil
		})
	default:
		return usageErr("unknown command %q", cmd)
	}
}

// dispatchRequest is a parsed dispatch command line.
type dispatchRequest struct {
	routingKey string
	kind       message.Kind
	params     []any
}

func parseDispatchArgs(args []string) (*dispatchRequest, error) {
	req := &dispatchRequest{kind: message.KindRPC}
	for len(args) > 0 && args[0] == "--direct" {
		req.kind = message.KindDirect
		args = args[1:]
	}
	if len(args) == 0 {
		return nil, usageErr("dispatch requires a routing key")
	}
	req.routingKey = args[0]
	for _, raw := range args[1:] {
		req.params = append(req.params, parseArg(raw))
	}
	return req, nil
}

// parseArg decodes raw as JSON. Anything that is not valid JSON is taken as
// a string, so `apex dispatch core.system.echo hello` works unquoted.
func parseArg(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func runDispatch(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	req, err := parseDispatchArgs(args)
	if err != nil {
		return err
	}
	if err := cfg.ValidateForDispatch(); err != nil {
		return err
	}

	s, err := server.OpenStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	if !cfg.Remote() && !s.Persistent() {
		if _, err := s.SeedManifest(ctx, ""); err != nil {
			return err
		}
	}

	d, err := s.Dispatcher()
	if err != nil {
		return err
	}
	defer d.Close()

	rc := reqctx.New()
	rc.SetRequest("CLI", "127.0.0.1", "apex")
	msg, err := message.New(rc, req.routingKey, req.params...)
	if err != nil {
		return err
	}
	if req.kind != message.KindRPC {
		if err := msg.SetKind(req.kind); err != nil {
			return err
		}
	}

	resp, err := d.Dispatch(ctx, rc, msg)
	if err != nil {
		return err
	}
	return printResponse(stdout, resp)
}

func printResponse(w io.Writer, resp *message.Response) error {
	data, err := message.EncodeResponse(resp)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err = w.Write(out.Bytes())
	return err
}

func printWorkers(w io.Writer, regs []db.WorkerRegistration) error {
	if len(regs) == 0 {
		_, err := fmt.Fprintln(w, "No workers registered.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTING KEY\tWORKER\tVERSION")
	for _, r := range regs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.RoutingKey, r.Worker, r.Version)
	}
	return tw.Flush()
}

// withRegistry opens the PostgreSQL-backed stack for registration commands.
// A memory store would not outlive the command.
func withRegistry(ctx context.Context, cfg *config.Config, fn func(s *server.Stack) error) error {
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	s, err := server.OpenStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func runSeed(ctx context.Context, cfg *config.Config, file string, stdout io.Writer) error {
	return withRegistry(ctx, cfg, func(s *server.Stack) error {
		n, err := s.SeedManifest(ctx, file)
		if err != nil {
			return fmt.Errorf("seed workers: %w", err)
		}
		fmt.Fprintf(stdout, "Seeded %d new registrations.\n", n)
		return nil
	})
}

func runMigrateUp(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runEnsureDB(ctx context.Context, cfg *config.Config, name string, stdout io.Writer) error {
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	// Keep host, credentials and query; only the database changes.
	u.Path = "/" + name
	if err := db.EnsureDatabase(ctx, u.String()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Database %q is ready.\n", name)
	return nil
}
