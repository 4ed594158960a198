package reqctx

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

const mutationLogPrefix = "reqctx:mutation"

// Action is the tag of a recorded context mutation.
type Action string

// Mutation vocabulary. The tags are part of the wire format.
const (
	ActionSetArea           Action = "set_area"
	ActionSetTheme          Action = "set_theme"
	ActionSetURI            Action = "set_uri"
	ActionSetUserID         Action = "set_userid"
	ActionSetCookie         Action = "set_cookie"
	ActionSetResStatus      Action = "set_res_http_status"
	ActionSetResContentType Action = "set_res_content_type"
	ActionSetResHeader      Action = "set_res_header"
	ActionViewAssign        Action = "view_assign"
	ActionViewCallout       Action = "view_callout"
)

// Mutation is one recorded context change. Data holds the mutator's single
// argument as a scalar, or its arguments as an array in call order.
type Mutation struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// NewMutation encodes args into a Mutation.
func NewMutation(action Action, args ...any) (Mutation, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 {
		data, err = json.Marshal(args[0])
	} else {
		data, err = json.Marshal(args)
	}
	if err != nil {
		return Mutation{}, fmt.Errorf("%s - failed to encode %s: %w", mutationLogPrefix, action, err)
	}
	return Mutation{Action: action, Data: data}, nil
}

// record appends a mutation while a recording segment is open. Caller holds c.mu.
func (c *Context) record(action Action, args ...any) {
	if c.depth == 0 {
		return
	}
	m, err := NewMutation(action, args...)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping unrecordable mutation: %v", mutationLogPrefix, err))
		return
	}
	c.log = append(c.log, m)
}

// Record opens a recording segment. Mutations made until the returned stop
// function is called are appended to the log. Segments nest: an outer segment
// also sees the mutations of every inner one. The log is cleared when the
// outermost segment stops.
func (c *Context) Record() (stop func() []Mutation) {
	c.mu.Lock()
	mark := len(c.log)
	c.depth++
	c.mu.Unlock()

	var (
		once    sync.Once
		segment []Mutation
	)
	return func() []Mutation {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if mark <= len(c.log) {
				segment = append([]Mutation(nil), c.log[mark:]...)
			}
			c.depth--
			if c.depth == 0 {
				c.log = nil
			}
		})
		return segment
	}
}
