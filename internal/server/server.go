// Package server runs the apex listener process: registry, broker listener
// and HTTP health endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/morezero/apex-dispatch/internal/config"
	"github.com/morezero/apex-dispatch/pkg/broker"
	"github.com/morezero/apex-dispatch/pkg/db"
	"github.com/morezero/apex-dispatch/pkg/listener"
)

const logPrefix = "server:server"

// registryForServer is the registry surface the HTTP handlers use.
type registryForServer interface {
	Health(ctx context.Context) error
	List(ctx context.Context) ([]db.WorkerRegistration, error)
}

// listenerStatus reports the state of the consume loop.
type listenerStatus interface {
	Connected() bool
	Processed() uint64
}

// Server is the apex listener orchestrator.
type Server struct {
	cfg        *config.Config
	reg        registryForServer
	listener   listenerStatus
	httpServer *http.Server
}

// HealthOutput is the /health body.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Timestamp string       `json:"timestamp"`
}

// HealthChecks holds the individual health checks.
type HealthChecks struct {
	Broker   bool `json:"broker"`
	Database bool `json:"database"`
}

// Run starts the listener, blocks until a shutdown signal or a lost broker
// connection, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(os.Stdout, cfg.LogLevel)
	if err := cfg.ValidateForListen(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting %s (broker %s, channel %s)", logPrefix, cfg.ServiceName, cfg.BrokerDriver, cfg.BrokerChannel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: registry and worker registrations
	stack, err := OpenStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	if _, err := stack.SeedManifest(ctx, ""); err != nil {
		return fmt.Errorf("%s - failed to seed workers: %w", logPrefix, err)
	}

	// Step 2: broker listener
	dial, err := broker.DialerFor(cfg.BrokerDriver)
	if err != nil {
		return fmt.Errorf("%s - %w", logPrefix, err)
	}
	l := listener.New(stack.Engine(), dial, cfg, listener.WithChannel(cfg.BrokerChannel))

	listenErr := make(chan error, 1)
	go func() { listenErr <- l.Listen(ctx) }()

	// Step 3: HTTP health server
	s := &Server{cfg: cfg, reg: stack.Registry(), listener: l}
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - %s is ready", logPrefix, cfg.ServiceName))

	// Wait for shutdown signal or listener failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))
		cancel()
		<-listenErr
	case err := <-listenErr:
		slog.Error(fmt.Sprintf("%s - Listener stopped: %v", logPrefix, err))
		runErr = err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HealthCheckTimeout)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)

	slog.Info(fmt.Sprintf("%s - Shutdown complete, %d messages processed", logPrefix, l.Processed()))
	return runErr
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", handleReady)
	return mux
}

// health checks the broker and the registration store.
func (s *Server) health(ctx context.Context) *HealthOutput {
	h := &HealthOutput{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	h.Checks.Broker = s.listener != nil && s.listener.Connected()
	if err := s.reg.Health(ctx); err != nil {
		slog.Warn(fmt.Sprintf("%s - database health check failed: %v", logPrefix, err))
	} else {
		h.Checks.Database = true
	}
	if !h.Checks.Broker || !h.Checks.Database {
		h.Status = "unhealthy"
	}
	return h
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.health(ctx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	}
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// homePageTemplate lists the listener state and every registration.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Service}}</title>
  <style>
    body { font-family: sans-serif; margin: 2rem; color: #222; }
    h1 { margin-bottom: 0.25rem; }
    .ok { color: #1a7f37; font-weight: 600; }
    .bad { color: #b42318; font-weight: 600; }
    table { border-collapse: collapse; min-width: 600px; }
    th, td { border-bottom: 1px solid #ddd; padding: 0.4rem 0.8rem; text-align: left; }
    th { background: #f6f8fa; }
  </style>
</head>
<body>
  <h1>{{.Service}}</h1>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="{{if eq .Health.Status "healthy"}}ok{{else}}bad{{end}}">{{.Health.Status}}</span></p>
    <p>Broker: {{if .Health.Checks.Broker}}<span class="ok">consuming {{.Channel}}</span>{{else}}<span class="bad">disconnected</span>{{end}}</p>
    <p>Database: {{if .Health.Checks.Database}}<span class="ok">reachable</span>{{else}}<span class="bad">unreachable</span>{{end}}</p>
    <p>Messages processed: <b>{{.Processed}}</b></p>
  </section>

  <section>
    <h2>Workers</h2>
    {{if .ListError}}
    <p class="bad">Could not load registrations: {{.ListError}}</p>
    {{else if not .Registrations}}
    <p>No workers registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Routing key</th><th>Worker</th><th>Version</th></tr>
      </thead>
      <tbody>
        {{range .Registrations}}
        <tr><td>{{.RoutingKey}}</td><td>{{.Worker}}</td><td>{{.Version}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

type homeData struct {
	Service       string
	Channel       string
	Health        *HealthOutput
	Processed     uint64
	Registrations []db.WorkerRegistration
	ListError     string
}

func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{
			Service: s.cfg.ServiceName,
			Channel: s.cfg.BrokerChannel,
			Health:  s.health(ctx),
		}
		if s.listener != nil {
			data.Processed = s.listener.Processed()
		}
		regs, err := s.reg.List(ctx)
		if err != nil {
			data.ListError = err.Error()
		} else {
			data.Registrations = regs
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
