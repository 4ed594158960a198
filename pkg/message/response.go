package message

import (
	"encoding/json"
	"fmt"

	"github.com/morezero/apex-dispatch/pkg/reqctx"
)

// Status is the aggregate outcome of a dispatch.
type Status string

const (
	StatusOK    Status = "ok"
	StatusFail  Status = "fail"
	StatusError Status = "error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusOK || s == StatusFail || s == StatusError
}

// Call records one worker invocation. It travels as [class, function].
type Call struct {
	Class    string
	Function string
}

// MarshalJSON writes the pair as [class, function].
func (c Call) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{c.Class, c.Function})
}

// UnmarshalJSON reads a [class, function] pair.
func (c *Call) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("call entry must have 2 elements, got %d", len(pair))
	}
	c.Class, c.Function = pair[0], pair[1]
	return nil
}

// Response is built by the local dispatch engine while processing a Message.
// It is not modified after it is returned to a dispatcher or encoded.
type Response struct {
	msg       *Message
	status    Status
	called    []Call
	results   *Results
	exception string
	mutations []reqctx.Mutation
}

// NewResponse seeds a response with msg's identity and status ok.
func NewResponse(msg *Message) *Response {
	return &Response{
		msg:     msg,
		status:  StatusOK,
		called:  []Call{},
		results: NewResults(),
	}
}

// Message returns the message this response answers.
func (r *Response) Message() *Message { return r.msg }

// Status returns ok, fail or error.
func (r *Response) Status() Status { return r.status }

// Exception returns the application error text, empty unless status is error.
func (r *Response) Exception() string { return r.exception }

// Called returns the invoked (class, function) pairs in order.
func (r *Response) Called() []Call {
	return append([]Call{}, r.called...)
}

// Results returns the per-domain return values in invocation order.
func (r *Response) Results() *Results {
	return r.results
}

// MutationLog returns the context mutations recorded during dispatch.
func (r *Response) MutationLog() []reqctx.Mutation {
	return append([]reqctx.Mutation{}, r.mutations...)
}

// RecordCall appends an invoked worker.
func (r *Response) RecordCall(class, function string) {
	r.called = append(r.called, Call{Class: class, Function: function})
}

// SetResult stores a worker's return value under its domain.
func (r *Response) SetResult(domain string, value any) {
	r.results.Set(domain, value)
}

// Fail marks a soft failure. An error status is never downgraded.
func (r *Response) Fail() {
	if r.status == StatusOK {
		r.status = StatusFail
	}
}

// SetError marks a hard error with its description.
func (r *Response) SetError(exception string) {
	r.status = StatusError
	r.exception = exception
}

// AttachMutations sets the mutation log.
func (r *Response) AttachMutations(log []reqctx.Mutation) {
	r.mutations = append([]reqctx.Mutation{}, log...)
}
