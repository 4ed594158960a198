package listener

import (
	"context"
	"testing"

	"github.com/morezero/apex-dispatch/pkg/dispatcher"
	"github.com/morezero/apex-dispatch/pkg/message"
	"github.com/morezero/apex-dispatch/pkg/registry"
	"github.com/morezero/apex-dispatch/pkg/reqctx"
	"github.com/morezero/apex-dispatch/pkg/worker"
)

// newTestEngine provides each worker and registers it for routingKey.
func newTestEngine(t *testing.T, routingKey string, workers ...*worker.Worker) *dispatcher.Engine {
	t.Helper()
	reg := registry.NewRegistry(registry.NewRegistryParams{})
	for _, w := range workers {
		w := w
		if err := reg.Provide(w.ID(), func(context.Context, registry.Ref) (*worker.Worker, error) { return w, nil }); err != nil {
			t.Fatalf("listener:helpers_test - Provide(%s): %v", w.ID(), err)
		}
		if err := reg.Register(context.Background(), routingKey, w.ID(), "1.0.0"); err != nil {
			t.Fatalf("listener:helpers_test - Register(%s): %v", w.ID(), err)
		}
	}
	return dispatcher.NewRegistryEngine(reg)
}

func encodeMessage(t *testing.T, rc *reqctx.Context, key string, kind message.Kind, params ...any) []byte {
	t.Helper()
	msg, err := message.New(rc, key, params...)
	if err != nil {
		t.Fatalf("listener:helpers_test - message.New(%s): %v", key, err)
	}
	if kind != message.KindRPC {
		if err := msg.SetKind(kind); err != nil {
			t.Fatalf("listener:helpers_test - SetKind: %v", err)
		}
	}
	body, err := message.Encode(msg)
	if err != nil {
		t.Fatalf("listener:helpers_test - Encode: %v", err)
	}
	return body
}
