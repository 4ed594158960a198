// Package message defines the Message a caller dispatches, the Response built
// while processing it, and their JSON wire form.
package message

import (
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/morezero/apex-dispatch/pkg/reqctx"
)

const logPrefix = "message:message"

// Kind selects the delivery contract of a message.
type Kind string

const (
	// KindRPC expects exactly one reply.
	KindRPC Kind = "rpc"
	// KindDirect is fire-and-forget on the transport. Workers must return true to count as ok.
	KindDirect Kind = "direct"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindRPC || k == KindDirect
}

// ErrKindAlreadySet is returned by SetKind when the kind was already chosen.
var ErrKindAlreadySet = errors.New("message: kind already set")

var routingKeyPattern = regexp.MustCompile(`^([A-Za-z0-9_]+)\.([A-Za-z0-9_]+)\.([A-Za-z0-9_]+)$`)

// Caller describes where a message was created. Diagnostics only.
type Caller struct {
	Location string `json:"location"`
	Line     int    `json:"line"`
	Function string `json:"function"`
	Type     string `json:"type"`
}

// Message is an immutable description of one call. Only the kind may be
// changed, once, before dispatch.
type Message struct {
	kind    Kind
	kindSet bool

	domain   string
	category string
	function string

	caller  Caller
	request reqctx.Snapshot
	params  []any
}

// New builds a message for "<domain>.<category>.<function>". The request
// fields of rc are copied; rc may be nil. A malformed routing key returns a
// *RoutingKeyError and no message.
func New(rc *reqctx.Context, routingKey string, params ...any) (*Message, error) {
	domain, category, function, err := parseRoutingKey(routingKey)
	if err != nil {
		return nil, err
	}

	m := &Message{
		kind:     KindRPC,
		domain:   domain,
		category: category,
		function: function,
		caller:   captureCaller(2),
		params:   append([]any{}, params...),
	}
	if rc != nil {
		m.request = rc.Snapshot()
	}
	return m, nil
}

func parseRoutingKey(key string) (domain, category, function string, err error) {
	match := routingKeyPattern.FindStringSubmatch(key)
	if match == nil {
		return "", "", "", &RoutingKeyError{Key: key}
	}
	return match[1], match[2], match[3], nil
}

// RoutingKey returns "<domain>.<category>", the key workers are registered under.
func (m *Message) RoutingKey() string {
	return m.domain + "." + m.category
}

// FullRoutingKey returns "<domain>.<category>.<function>".
func (m *Message) FullRoutingKey() string {
	return m.RoutingKey() + "." + m.function
}

// Domain returns the first routing key segment.
func (m *Message) Domain() string { return m.domain }

// Category returns the second routing key segment.
func (m *Message) Category() string { return m.category }

// Function returns the operation invoked on each worker.
func (m *Message) Function() string { return m.function }

// Kind returns the delivery kind, rpc unless SetKind changed it.
func (m *Message) Kind() Kind { return m.kind }

// Caller returns where the message was created.
func (m *Message) Caller() Caller { return m.caller }

// Request returns the request snapshot taken at construction.
func (m *Message) Request() reqctx.Snapshot { return m.request }

// SetKind chooses the delivery kind. It may be called once.
func (m *Message) SetKind(k Kind) error {
	if !k.Valid() {
		return fmt.Errorf("%s - invalid kind %q", logPrefix, k)
	}
	if m.kindSet {
		return ErrKindAlreadySet
	}
	m.kind = k
	m.kindSet = true
	return nil
}

// Params returns the single argument unwrapped when exactly one was given,
// otherwise the argument slice.
func (m *Message) Params() any {
	if len(m.params) == 1 {
		return m.params[0]
	}
	return m.Args()
}

// Args returns a copy of the arguments.
func (m *Message) Args() []any {
	return append([]any{}, m.params...)
}

// captureCaller describes the frame skip levels above itself.
func captureCaller(skip int) Caller {
	pcs := make([]uintptr, skip+8)
	n := runtime.Callers(1, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for i := 0; ; i++ {
		frame, more := frames.Next()
		if i == skip {
			c := Caller{Location: frame.File, Line: frame.Line}
			c.Function, c.Type = splitFuncName(frame.Function)
			return c
		}
		if !more {
			return Caller{}
		}
	}
}

// splitFuncName turns "example.com/pkg.(*Type).Method" into ("Method", "Type").
func splitFuncName(full string) (function, typ string) {
	name := full
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	parts := strings.Split(name, ".")
	function = parts[len(parts)-1]
	if len(parts) >= 3 && strings.HasPrefix(parts[1], "(") {
		typ = strings.Trim(parts[1], "(*)")
	}
	return function, typ
}
