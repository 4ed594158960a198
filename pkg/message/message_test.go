package message

import (
	"errors"
	"reflect"
	"testing"

	"github.com/morezero/apex-dispatch/pkg/reqctx"
)

const messageTestPrefix = "message:message_test"

func TestNew_RoutingKeySegments(t *testing.T) {
	tests := []struct {
		key      string
		routing  string
		function string
	}{
		{"core.notify.send_email", "core.notify", "send_email"},
		{"users.profile.update", "users.profile", "update"},
		{"A1_b.C2_d.E3_f", "A1_b.C2_d", "E3_f"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m, err := New(nil, tt.key)
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", messageTestPrefix, err)
			}
			if m.RoutingKey() != tt.routing {
				t.Errorf("%s - RoutingKey() = %q, want %q", messageTestPrefix, m.RoutingKey(), tt.routing)
			}
			if m.FullRoutingKey() != tt.key {
				t.Errorf("%s - FullRoutingKey() = %q, want %q", messageTestPrefix, m.FullRoutingKey(), tt.key)
			}
			if m.Function() != tt.function {
				t.Errorf("%s - Function() = %q, want %q", messageTestPrefix, m.Function(), tt.function)
			}
		})
	}
}

func TestNew_MalformedRoutingKey(t *testing.T) {
	keys := []string{"bad key", "", "core.notify", "core.notify.send.email", "core.no-tify.send", "core..send", "core.notify.send "}
	for _, key := range keys {
		m, err := New(nil, key)
		if err == nil {
			t.Errorf("%s - expected error for %q", messageTestPrefix, key)
			continue
		}
		var rkErr *RoutingKeyError
		if !errors.As(err, &rkErr) {
			t.Errorf("%s - expected *RoutingKeyError for %q, got %T", messageTestPrefix, key, err)
		}
		if m != nil {
			t.Errorf("%s - expected nil message for %q", messageTestPrefix, key)
		}
	}
}

func TestNew_CapturesRequestAndCaller(t *testing.T) {
	rc := reqctx.New()
	rc.SetRequest("GET", "127.0.0.1", "go-test")
	rc.SetArea("admin")

	m, err := New(rc, "core.notify.send_email", "user@example.com")
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", messageTestPrefix, err)
	}

	// Later mutations must not leak into the snapshot.
	rc.SetArea("public")

	if m.Request().Area != "admin" || m.Request().Method != "GET" {
		t.Errorf("%s - Request() = %+v", messageTestPrefix, m.Request())
	}
	if m.Caller().Function != "TestNew_CapturesRequestAndCaller" {
		t.Errorf("%s - Caller().Function = %q", messageTestPrefix, m.Caller().Function)
	}
	if m.Caller().Line == 0 || m.Caller().Location == "" {
		t.Errorf("%s - Caller() missing location: %+v", messageTestPrefix, m.Caller())
	}
}

func TestParams_Collapsing(t *testing.T) {
	one, _ := New(nil, "a.b.c", "only")
	if one.Params() != "only" {
		t.Errorf("%s - single Params() = %v, want unwrapped", messageTestPrefix, one.Params())
	}

	many, _ := New(nil, "a.b.c", "x", 2)
	if !reflect.DeepEqual(many.Params(), []any{"x", 2}) {
		t.Errorf("%s - Params() = %v, want [x 2]", messageTestPrefix, many.Params())
	}

	none, _ := New(nil, "a.b.c")
	if !reflect.DeepEqual(none.Params(), []any{}) {
		t.Errorf("%s - empty Params() = %#v, want []any{}", messageTestPrefix, none.Params())
	}
}

func TestSetKind(t *testing.T) {
	m, _ := New(nil, "a.b.c")
	if m.Kind() != KindRPC {
		t.Errorf("%s - default kind = %q, want rpc", messageTestPrefix, m.Kind())
	}
	if err := m.SetKind("broadcast"); err == nil {
		t.Errorf("%s - expected error for invalid kind", messageTestPrefix)
	}
	if err := m.SetKind(KindDirect); err != nil {
		t.Fatalf("%s - unexpected error: %v", messageTestPrefix, err)
	}
	if err := m.SetKind(KindRPC); !errors.Is(err, ErrKindAlreadySet) {
		t.Errorf("%s - second SetKind err = %v, want ErrKindAlreadySet", messageTestPrefix, err)
	}
	if m.Kind() != KindDirect {
		t.Errorf("%s - kind = %q, want direct", messageTestPrefix, m.Kind())
	}
}

func TestSplitFuncName(t *testing.T) {
	tests := []struct {
		in, fn, typ string
	}{
		{"github.com/x/y/pkg.(*Worker).Send", "Send", "Worker"},
		{"github.com/x/y/pkg.(Value).Get", "Get", "Value"},
		{"github.com/x/y/pkg.Plain", "Plain", ""},
		{"main.main", "main", ""},
	}
	for _, tt := range tests {
		fn, typ := splitFuncName(tt.in)
		if fn != tt.fn || typ != tt.typ {
			t.Errorf("%s - splitFuncName(%q) = (%q, %q), want (%q, %q)", messageTestPrefix, tt.in, fn, typ, tt.fn, tt.typ)
		}
	}
}

func TestResponse_FailDoesNotDowngradeError(t *testing.T) {
	m, _ := New(nil, "a.b.c")
	r := NewResponse(m)
	if r.Status() != StatusOK {
		t.Fatalf("%s - initial status = %q", messageTestPrefix, r.Status())
	}
	r.Fail()
	if r.Status() != StatusFail {
		t.Errorf("%s - status = %q, want fail", messageTestPrefix, r.Status())
	}
	r.SetError("boom")
	r.Fail()
	if r.Status() != StatusError || r.Exception() != "boom" {
		t.Errorf("%s - status = %q exception = %q", messageTestPrefix, r.Status(), r.Exception())
	}
}
