package dispatcher

import (
	"context"
	"testing"

	"github.com/morezero/apex-dispatch/pkg/message"
	"github.com/morezero/apex-dispatch/pkg/registry"
	"github.com/morezero/apex-dispatch/pkg/reqctx"
	"github.com/morezero/apex-dispatch/pkg/worker"
)

// newTestRegistry provides each worker and registers it for routingKey in
// the given order.
func newTestRegistry(t *testing.T, routingKey string, workers ...*worker.Worker) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry(registry.NewRegistryParams{})
	for _, w := range workers {
		w := w
		if err := reg.Provide(w.ID(), func(context.Context, registry.Ref) (*worker.Worker, error) { return w, nil }); err != nil {
			t.Fatalf("dispatcher:helpers_test - Provide(%s): %v", w.ID(), err)
		}
		if err := reg.Register(context.Background(), routingKey, w.ID(), "1.0.0"); err != nil {
			t.Fatalf("dispatcher:helpers_test - Register(%s): %v", w.ID(), err)
		}
	}
	return reg
}

func returning(out worker.Outcome) worker.HandlerFunc {
	return func(context.Context, *worker.Invocation) (worker.Outcome, error) { return out, nil }
}

func newTestMessage(t *testing.T, rc *reqctx.Context, key string, kind message.Kind, params ...any) *message.Message {
	t.Helper()
	msg, err := message.New(rc, key, params...)
	if err != nil {
		t.Fatalf("dispatcher:helpers_test - message.New(%s): %v", key, err)
	}
	if kind != message.KindRPC {
		if err := msg.SetKind(kind); err != nil {
			t.Fatalf("dispatcher:helpers_test - SetKind: %v", err)
		}
	}
	return msg
}

func calledPairs(resp *message.Response) [][2]string {
	var out [][2]string
	for _, c := range resp.Called() {
		out = append(out, [2]string{c.Class, c.Function})
	}
	return out
}
