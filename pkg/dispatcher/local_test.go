package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/morezero/apex-dispatch/pkg/message"
	"github.com/morezero/apex-dispatch/pkg/registry"
	"github.com/morezero/apex-dispatch/pkg/reqctx"
	"github.com/morezero/apex-dispatch/pkg/worker"
)

const localTestPrefix = "dispatcher:local_test"

func TestDispatchLocally_NoWorkers(t *testing.T) {
	engine := NewRegistryEngine(registry.NewRegistry(registry.NewRegistryParams{}))
	msg := newTestMessage(t, reqctx.New(), "core.notify.send_email", message.KindRPC)

	resp, err := engine.DispatchLocally(context.Background(), reqctx.New(), msg)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", localTestPrefix, err)
	}
	if resp.Status() != message.StatusOK || len(resp.Called()) != 0 || resp.Results().Len() != 0 {
		t.Errorf("%s - expected seeded ok response, got status=%s called=%v results=%d",
			localTestPrefix, resp.Status(), resp.Called(), resp.Results().Len())
	}
}

func TestDispatchLocally_SingleWorker(t *testing.T) {
	notify := worker.New("core", "notify").Handle("send_email", func(_ context.Context, inv *worker.Invocation) (worker.Outcome, error) {
		if inv.Message.Params() != "bob@example.com" {
			return worker.Errorf("unexpected params %v", inv.Message.Params()), nil
		}
		return worker.Ok(true), nil
	})
	engine := NewRegistryEngine(newTestRegistry(t, "core.notify", notify))

	msg := newTestMessage(t, reqctx.New(), "core.notify.send_email", message.KindRPC, "bob@example.com")
	resp, err := engine.DispatchLocally(context.Background(), reqctx.New(), msg)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", localTestPrefix, err)
	}

	if resp.Status() != message.StatusOK {
		t.Errorf("%s - status = %s, exception = %q", localTestPrefix, resp.Status(), resp.Exception())
	}
	if got := calledPairs(resp); !reflect.DeepEqual(got, [][2]string{{"notify", "send_email"}}) {
		t.Errorf("%s - called = %v", localTestPrefix, got)
	}
	if !reflect.DeepEqual(resp.Results().Map(), map[string]any{"core": true}) {
		t.Errorf("%s - results = %v", localTestPrefix, resp.Results().Map())
	}
}

func TestDispatchLocally_ErrorStopsFanOut(t *testing.T) {
	var thirdCalls int32
	first := worker.New("core", "notify").Handle("send_email", returning(worker.Ok("queued")))
	second := worker.New("crm", "mailer").Handle("send_email", returning(worker.Errorf("smtp unavailable")))
	third := worker.New("audit", "log").Handle("send_email", func(context.Context, *worker.Invocation) (worker.Outcome, error) {
		atomic.AddInt32(&thirdCalls, 1)
		return worker.Ok(true), nil
	})
	engine := NewRegistryEngine(newTestRegistry(t, "core.notify", first, second, third))

	resp, err := engine.DispatchLocally(context.Background(), nil, newTestMessage(t, nil, "core.notify.send_email", message.KindRPC))
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", localTestPrefix, err)
	}

	if resp.Status() != message.StatusError || resp.Exception() != "smtp unavailable" {
		t.Errorf("%s - status = %s, exception = %q", localTestPrefix, resp.Status(), resp.Exception())
	}
	want := [][2]string{{"notify", "send_email"}}
	if got := calledPairs(resp); !reflect.DeepEqual(got, want) {
		t.Errorf("%s - called = %v, want %v", localTestPrefix, got, want)
	}
	if keys := resp.Results().Keys(); !reflect.DeepEqual(keys, []string{"core"}) {
		t.Errorf("%s - result keys = %v", localTestPrefix, keys)
	}
	if atomic.LoadInt32(&thirdCalls) != 0 {
		t.Errorf("%s - worker after the error was invoked", localTestPrefix)
	}
}

func TestDispatchLocally_DirectRequiresTrue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  message.Status
	}{
		{"true", true, message.StatusOK},
		{"false", false, message.StatusFail},
		{"string", "sent", message.StatusFail},
		{"one", 1, message.StatusFail},
		{"nil", nil, message.StatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := worker.New("core", "notify").Handle("send_email", returning(worker.Ok(tt.value)))
			engine := NewRegistryEngine(newTestRegistry(t, "core.notify", w))

			msg := newTestMessage(t, nil, "core.notify.send_email", message.KindDirect)
			resp, err := engine.DispatchLocally(context.Background(), nil, msg)
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", localTestPrefix, err)
			}
			if resp.Status() != tt.want {
				t.Errorf("%s - status = %s, want %s", localTestPrefix, resp.Status(), tt.want)
			}
			if v, _ := resp.Results().Get("core"); !reflect.DeepEqual(v, tt.value) {
				t.Errorf("%s - result = %v, want %v", localTestPrefix, v, tt.value)
			}
		})
	}
}

func TestDispatchLocally_RPCAcceptsAnyValue(t *testing.T) {
	w := worker.New("core", "notify").Handle("send_email", returning(worker.Ok("sent")))
	engine := NewRegistryEngine(newTestRegistry(t, "core.notify", w))

	resp, err := engine.DispatchLocally(context.Background(), nil, newTestMessage(t, nil, "core.notify.send_email", message.KindRPC))
	if err != nil || resp.Status() != message.StatusOK {
		t.Errorf("%s - status = %v, err = %v", localTestPrefix, resp.Status(), err)
	}
}

func TestDispatchLocally_SoftFailContinues(t *testing.T) {
	first := worker.New("core", "notify").Handle("send_email", returning(worker.SoftFail("bounced")))
	second := worker.New("crm", "mailer").Handle("send_email", returning(worker.Ok(true)))
	engine := NewRegistryEngine(newTestRegistry(t, "core.notify", first, second))

	resp, err := engine.DispatchLocally(context.Background(), nil, newTestMessage(t, nil, "core.notify.send_email", message.KindRPC))
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", localTestPrefix, err)
	}
	if resp.Status() != message.StatusFail {
		t.Errorf("%s - status = %s, want fail", localTestPrefix, resp.Status())
	}
	if len(resp.Called()) != 2 {
		t.Errorf("%s - called = %v", localTestPrefix, resp.Called())
	}
	if keys := resp.Results().Keys(); !reflect.DeepEqual(keys, []string{"core", "crm"}) {
		t.Errorf("%s - result keys = %v", localTestPrefix, keys)
	}
}

func TestDispatchLocally_SkipsUnloadableAndUnimplemented(t *testing.T) {
	implemented := worker.New("core", "notify").Handle("send_email", returning(worker.Ok(true)))
	other := worker.New("crm", "mailer").Handle("send_sms", returning(worker.Ok(true)))
	reg := newTestRegistry(t, "core.notify", other, implemented)
	// Registered but never provided.
	if err := reg.Register(context.Background(), "core.notify", "ghost:worker", "1.0.0"); err != nil {
		t.Fatalf("%s - Register: %v", localTestPrefix, err)
	}
	engine := NewRegistryEngine(reg)

	resp, err := engine.DispatchLocally(context.Background(), nil, newTestMessage(t, nil, "core.notify.send_email", message.KindRPC))
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", localTestPrefix, err)
	}
	if resp.Status() != message.StatusOK {
		t.Errorf("%s - status = %s", localTestPrefix, resp.Status())
	}
	if got := calledPairs(resp); !reflect.DeepEqual(got, [][2]string{{"notify", "send_email"}}) {
		t.Errorf("%s - called = %v", localTestPrefix, got)
	}
}

func TestDispatchLocally_FatalErrors(t *testing.T) {
	boom := errors.New("database gone")
	tests := []struct {
		name    string
		handler worker.HandlerFunc
	}{
		{"returned error", func(context.Context, *worker.Invocation) (worker.Outcome, error) { return worker.Outcome{}, boom }},
		{"panic", func(context.Context, *worker.Invocation) (worker.Outcome, error) { panic("nil map") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := worker.New("core", "notify").Handle("send_email", tt.handler)
			engine := NewRegistryEngine(newTestRegistry(t, "core.notify", w))

			resp, err := engine.DispatchLocally(context.Background(), nil, newTestMessage(t, nil, "core.notify.send_email", message.KindRPC))
			if err == nil {
				t.Fatalf("%s - expected fatal error, got response %+v", localTestPrefix, resp)
			}
			if resp != nil {
				t.Errorf("%s - expected nil response on fatal error", localTestPrefix)
			}
		})
	}
}

func TestDispatchLocally_AppErrorViaFail(t *testing.T) {
	w := worker.New("core", "notify").Handle("send_email", func(context.Context, *worker.Invocation) (worker.Outcome, error) {
		return worker.Fail(&worker.AppError{Message: "recipient unknown"})
	})
	engine := NewRegistryEngine(newTestRegistry(t, "core.notify", w))

	resp, err := engine.DispatchLocally(context.Background(), nil, newTestMessage(t, nil, "core.notify.send_email", message.KindRPC))
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", localTestPrefix, err)
	}
	if resp.Status() != message.StatusError || resp.Exception() != "recipient unknown" {
		t.Errorf("%s - status = %s, exception = %q", localTestPrefix, resp.Status(), resp.Exception())
	}
}

func TestDispatchLocally_ReturnedAppError(t *testing.T) {
	var thirdCalls int32
	first := worker.New("core", "notify").Handle("send_email", returning(worker.Ok("queued")))
	second := worker.New("crm", "mailer").Handle("send_email", func(context.Context, *worker.Invocation) (worker.Outcome, error) {
		return worker.Outcome{}, fmt.Errorf("mailer: %w", &worker.AppError{Message: "recipient unknown"})
	})
	third := worker.New("audit", "log").Handle("send_email", func(context.Context, *worker.Invocation) (worker.Outcome, error) {
		atomic.AddInt32(&thirdCalls, 1)
		return worker.Ok(true), nil
	})
	engine := NewRegistryEngine(newTestRegistry(t, "core.notify", first, second, third))

	resp, err := engine.DispatchLocally(context.Background(), nil, newTestMessage(t, nil, "core.notify.send_email", message.KindRPC))
	if err != nil {
		t.Fatalf("%s - application error treated as fatal: %v", localTestPrefix, err)
	}
	if resp.Status() != message.StatusError || resp.Exception() != "mailer: recipient unknown" {
		t.Errorf("%s - status = %s, exception = %q", localTestPrefix, resp.Status(), resp.Exception())
	}
	if got := calledPairs(resp); !reflect.DeepEqual(got, [][2]string{{"notify", "send_email"}}) {
		t.Errorf("%s - called = %v", localTestPrefix, got)
	}
	if atomic.LoadInt32(&thirdCalls) != 0 {
		t.Errorf("%s - worker after the error was invoked", localTestPrefix)
	}
}

type failingRoutes struct{ err error }

func (f failingRoutes) Workers(context.Context, string) ([]string, error) { return nil, f.err }

func TestDispatchLocally_RoutesErrorIsFatal(t *testing.T) {
	boom := errors.New("connection refused")
	engine := NewEngine(failingRoutes{err: boom}, registry.NewRegistry(registry.NewRegistryParams{}))

	_, err := engine.DispatchLocally(context.Background(), nil, newTestMessage(t, nil, "core.notify.send_email", message.KindRPC))
	if !errors.Is(err, boom) {
		t.Errorf("%s - error = %v, want wrapped %v", localTestPrefix, err, boom)
	}
}

func TestDispatchLocally_RecordsMutations(t *testing.T) {
	w := worker.New("core", "auth").Handle("login", func(_ context.Context, inv *worker.Invocation) (worker.Outcome, error) {
		inv.Request.SetArea("admin")
		inv.Request.SetCookie("sid", "abc", 3600, "/")
		return worker.Ok(true), nil
	})
	engine := NewRegistryEngine(newTestRegistry(t, "core.auth", w))

	rc := reqctx.New()
	resp, err := engine.DispatchLocally(context.Background(), rc, newTestMessage(t, rc, "core.auth.login", message.KindRPC))
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", localTestPrefix, err)
	}

	if rc.Area() != "admin" {
		t.Errorf("%s - worker mutation not applied in place: area = %q", localTestPrefix, rc.Area())
	}
	log := resp.MutationLog()
	if len(log) != 2 || log[0].Action != reqctx.ActionSetArea || log[1].Action != reqctx.ActionSetCookie {
		t.Fatalf("%s - mutation log = %+v", localTestPrefix, log)
	}
	if string(log[0].Data) != `"admin"` || string(log[1].Data) != `["sid","abc",3600,"/"]` {
		t.Errorf("%s - mutation data = %s, %s", localTestPrefix, log[0].Data, log[1].Data)
	}

	// Mutations outside a dispatch are not recorded.
	rc.SetTheme("dark")
	resp2, _ := engine.DispatchLocally(context.Background(), rc, newTestMessage(t, rc, "core.auth.login", message.KindRPC))
	for _, m := range resp2.MutationLog() {
		if m.Action == reqctx.ActionSetTheme {
			t.Errorf("%s - mutation made outside dispatch leaked into log", localTestPrefix)
		}
	}
}

func TestDispatchLocally_NilContextUsesSnapshot(t *testing.T) {
	var seenArea string
	w := worker.New("core", "auth").Handle("whoami", func(_ context.Context, inv *worker.Invocation) (worker.Outcome, error) {
		seenArea = inv.Request.Area()
		return worker.Ok(inv.Request.UserID()), nil
	})
	engine := NewRegistryEngine(newTestRegistry(t, "core.auth", w))

	caller := reqctx.New()
	caller.SetArea("admin")
	caller.SetUserID(42)
	msg := newTestMessage(t, caller, "core.auth.whoami", message.KindRPC)

	resp, err := engine.DispatchLocally(context.Background(), nil, msg)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", localTestPrefix, err)
	}
	if seenArea != "admin" {
		t.Errorf("%s - worker saw area %q", localTestPrefix, seenArea)
	}
	if v, _ := resp.Results().Get("core"); v != 42 {
		t.Errorf("%s - result = %v", localTestPrefix, v)
	}
}

type countingComponents struct {
	*registry.Registry
	calls []string
}

func (c *countingComponents) Call(ctx context.Context, function, category string, ref registry.Ref, inv *worker.Invocation) (worker.Outcome, bool, error) {
	c.calls = append(c.calls, ref.ID()+"."+function)
	return c.Registry.Call(ctx, function, category, ref, inv)
}

func TestDispatchLocally_InvokesThroughComponents(t *testing.T) {
	notify := worker.New("core", "notify").Handle("send_email", returning(worker.Ok(true)))
	audit := worker.New("audit", "log").Handle("send_email", returning(worker.Ok("logged")))
	reg := newTestRegistry(t, "core.notify", notify, audit)
	components := &countingComponents{Registry: reg}
	engine := NewEngine(reg, components)

	resp, err := engine.DispatchLocally(context.Background(), nil, newTestMessage(t, nil, "core.notify.send_email", message.KindRPC))
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", localTestPrefix, err)
	}
	if want := []string{"core:notify.send_email", "audit:log.send_email"}; !reflect.DeepEqual(components.calls, want) {
		t.Errorf("%s - component calls = %v, want %v", localTestPrefix, components.calls, want)
	}
	if !reflect.DeepEqual(resp.Results().Map(), map[string]any{"core": true, "audit": "logged"}) {
		t.Errorf("%s - results = %v", localTestPrefix, resp.Results().Map())
	}
}
