// Package builtin provides the workers every apex process ships with.
package builtin

import (
	"context"
	"os"

	"github.com/morezero/apex-dispatch/pkg/registry"
	"github.com/morezero/apex-dispatch/pkg/worker"
)

// SystemWorkerID is the id of the system worker, registered for core.system
// by the default manifest.
const SystemWorkerID = "core:system"

// Whoami is the result of core.system.whoami.
type Whoami struct {
	Host      string `json:"host"`
	PID       int    `json:"pid"`
	UserID    int    `json:"user_id"`
	Area      string `json:"area"`
	Method    string `json:"method"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}

// NewSystemWorker returns the core:system worker. ping answers "pong", echo
// returns its parameters and whoami reports the process that handled the
// call together with the caller's request.
func NewSystemWorker() *worker.Worker {
	return worker.New("core", "system").
		Handle("ping", func(context.Context, *worker.Invocation) (worker.Outcome, error) {
			return worker.Ok("pong"), nil
		}).
		Handle("echo", func(_ context.Context, inv *worker.Invocation) (worker.Outcome, error) {
			return worker.Ok(inv.Message.Params()), nil
		}).
		Handle("whoami", whoami)
}

func whoami(_ context.Context, inv *worker.Invocation) (worker.Outcome, error) {
	host, _ := os.Hostname()
	rc := inv.Request
	return worker.Ok(Whoami{
		Host:      host,
		PID:       os.Getpid(),
		UserID:    rc.UserID(),
		Area:      rc.Area(),
		Method:    rc.Method(),
		IP:        rc.IP(),
		UserAgent: rc.UserAgent(),
	}), nil
}

// Provide makes the builtin workers loadable from reg.
func Provide(reg *registry.Registry) error {
	return reg.Provide(SystemWorkerID, func(context.Context, registry.Ref) (*worker.Worker, error) {
		return NewSystemWorker(), nil
	})
}
