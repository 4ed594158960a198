// Package dispatcher runs messages through their registered workers, either
// in process or on a listener reached over a broker.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/apex-dispatch/pkg/message"
	"github.com/morezero/apex-dispatch/pkg/registry"
	"github.com/morezero/apex-dispatch/pkg/reqctx"
	"github.com/morezero/apex-dispatch/pkg/worker"
)

const localLogPrefix = "dispatcher:local"

// Components resolves, loads and calls workers. *registry.Registry
// implements it.
type Components interface {
	Check(category, alias string) (registry.Ref, error)
	Load(ctx context.Context, category string, ref registry.Ref) (*worker.Worker, error)
	Call(ctx context.Context, function, category string, ref registry.Ref, inv *worker.Invocation) (worker.Outcome, bool, error)
}

// Engine fans a message out to the workers registered for its routing key.
type Engine struct {
	routes     registry.Routes
	components Components
}

// NewEngine creates an Engine.
func NewEngine(routes registry.Routes, components Components) *Engine {
	return &Engine{routes: routes, components: components}
}

// NewRegistryEngine creates an Engine backed by reg for both routes and
// components.
func NewRegistryEngine(reg *registry.Registry) *Engine {
	return NewEngine(reg, reg)
}

// DispatchLocally invokes msg's function on every registered worker, in
// registration order, and returns the aggregated Response. Mutations made to
// rc while the workers run are attached to the Response. When rc is nil a
// context is rebuilt from the message's request snapshot.
//
// A handler error that is an application error (see worker.IsApplicationError)
// sets status error like an Error outcome. The returned error is non-nil only
// for fatal failures: a routing lookup error, or a handler that panicked or
// returned any other error.
func (e *Engine) DispatchLocally(ctx context.Context, rc *reqctx.Context, msg *message.Message) (*message.Response, error) {
	if rc == nil {
		rc = reqctx.FromSnapshot(msg.Request())
	}

	resp := message.NewResponse(msg)
	stop := rc.Record()
	defer stop()

	ids, err := e.routes.Workers(ctx, msg.RoutingKey())
	if err != nil {
		return nil, fmt.Errorf("%s - failed to resolve workers for %s: %w", localLogPrefix, msg.RoutingKey(), err)
	}
	if len(ids) == 0 {
		slog.Debug(fmt.Sprintf("%s - No workers for %s", localLogPrefix, msg.RoutingKey()))
		resp.AttachMutations(stop())
		return resp, nil
	}

	inv := &worker.Invocation{Message: msg, Request: rc}
	for _, id := range ids {
		if resp.Status() == message.StatusError {
			break
		}

		ref, err := e.load(ctx, id)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - %v", localLogPrefix, err))
			continue
		}

		out, ok, err := e.components.Call(ctx, msg.Function(), registry.CategoryWorker, ref, inv)
		if !ok {
			continue
		}
		if err != nil {
			if !worker.IsApplicationError(err) {
				return nil, fmt.Errorf("%s - %s.%s on %s: %w", localLogPrefix, msg.RoutingKey(), msg.Function(), id, err)
			}
			out = worker.Error(err)
		}

		// Only workers that completed appear in called.
		switch out.Kind() {
		case worker.KindError:
			slog.Info(fmt.Sprintf("%s - %s raised application error in %s: %v", localLogPrefix, id, msg.Function(), out.Cause()))
			resp.SetError(out.Cause().Error())
		case worker.KindSoftFail:
			resp.RecordCall(ref.Alias, msg.Function())
			resp.Fail()
			resp.SetResult(ref.Package, out.Value())
		default:
			resp.RecordCall(ref.Alias, msg.Function())
			if msg.Kind() == message.KindDirect && !isTrue(out.Value()) {
				resp.Fail()
			}
			resp.SetResult(ref.Package, out.Value())
		}
	}

	resp.AttachMutations(stop())
	return resp, nil
}

// load resolves id and builds its instance so that Call only fails on the
// handler itself.
func (e *Engine) load(ctx context.Context, id string) (registry.Ref, error) {
	ref, err := e.components.Check(registry.CategoryWorker, id)
	if err != nil {
		return registry.Ref{}, &WorkerLoadError{Worker: id, Err: err}
	}
	if _, err := e.components.Load(ctx, registry.CategoryWorker, ref); err != nil {
		return registry.Ref{}, &WorkerLoadError{Worker: id, Err: err}
	}
	return ref, nil
}

func isTrue(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
