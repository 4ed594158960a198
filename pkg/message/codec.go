package message

import (
	"fmt"

	"github.com/morezero/apex-dispatch/pkg/commsutil"
	"github.com/morezero/apex-dispatch/pkg/reqctx"
)

type wireMessage struct {
	Kind       Kind            `json:"kind"`
	RoutingKey string          `json:"routing_key"`
	Function   string          `json:"function"`
	Caller     Caller          `json:"caller"`
	Request    reqctx.Snapshot `json:"request"`
	Params     []any           `json:"params"`
}

type wireResponse struct {
	wireMessage
	Status      Status            `json:"status"`
	Called      []Call            `json:"called"`
	Results     *Results          `json:"results"`
	Exception   string            `json:"exception,omitempty"`
	MutationLog []reqctx.Mutation `json:"mutation_log"`
}

func toWire(m *Message) wireMessage {
	return wireMessage{
		Kind:       m.kind,
		RoutingKey: m.RoutingKey(),
		Function:   m.function,
		Caller:     m.caller,
		Request:    m.request,
		Params:     m.Args(),
	}
}

func fromWire(w wireMessage) (*Message, error) {
	if !w.Kind.Valid() {
		return nil, fmt.Errorf("unknown kind %q", w.Kind)
	}
	domain, category, function, err := parseRoutingKey(w.RoutingKey + "." + w.Function)
	if err != nil {
		return nil, err
	}
	return &Message{
		kind:     w.Kind,
		kindSet:  true,
		domain:   domain,
		category: category,
		function: function,
		caller:   w.Caller,
		request:  w.Request,
		params:   append([]any{}, w.Params...),
	}, nil
}

// Encode serializes a message to its wire form.
func Encode(m *Message) ([]byte, error) {
	data, err := commsutil.EncodePayload(toWire(m))
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	return data, nil
}

// Decode parses and validates a wire message.
func Decode(data []byte) (*Message, error) {
	var w wireMessage
	if err := commsutil.DecodePayload(data, &w); err != nil {
		return nil, &SerializationError{Err: err}
	}
	m, err := fromWire(w)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	return m, nil
}

// EncodeResponse serializes a response to its wire form.
func EncodeResponse(r *Response) ([]byte, error) {
	w := wireResponse{
		wireMessage: toWire(r.msg),
		Status:      r.status,
		Called:      r.Called(),
		Results:     r.results,
		Exception:   r.exception,
		MutationLog: r.MutationLog(),
	}
	data, err := commsutil.EncodePayload(w)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	return data, nil
}

// DecodeResponse parses and validates a wire response.
func DecodeResponse(data []byte) (*Response, error) {
	var w wireResponse
	if err := commsutil.DecodePayload(data, &w); err != nil {
		return nil, &SerializationError{Err: err}
	}
	m, err := fromWire(w.wireMessage)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	if !w.Status.Valid() {
		return nil, &SerializationError{Err: fmt.Errorf("unknown status %q", w.Status)}
	}

	r := NewResponse(m)
	r.status = w.Status
	r.exception = w.Exception
	if w.Called != nil {
		r.called = w.Called
	}
	if w.Results != nil {
		r.results = w.Results
	}
	r.mutations = w.MutationLog
	return r, nil
}
