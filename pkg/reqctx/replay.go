package reqctx

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

const replayLogPrefix = "reqctx:replay"

type mutator func(c *Context, data json.RawMessage) error

var mutators = map[Action]mutator{
	ActionSetArea: func(c *Context, data json.RawMessage) error {
		var area string
		if err := decodeArgs(data, &area); err != nil {
			return err
		}
		c.SetArea(area)
		return nil
	},
	ActionSetTheme: func(c *Context, data json.RawMessage) error {
		var theme string
		if err := decodeArgs(data, &theme); err != nil {
			return err
		}
		c.SetTheme(theme)
		return nil
	},
	ActionSetURI: func(c *Context, data json.RawMessage) error {
		var (
			uri    string
			locked bool
		)
		if err := decodeArgs(data, &uri, &locked); err != nil {
			return err
		}
		c.SetURI(uri, locked)
		return nil
	},
	ActionSetUserID: func(c *Context, data json.RawMessage) error {
		var id int
		if err := decodeArgs(data, &id); err != nil {
			return err
		}
		c.SetUserID(id)
		return nil
	},
	ActionSetCookie: func(c *Context, data json.RawMessage) error {
		var (
			name, value, path string
			ttl               int
		)
		if err := decodeArgs(data, &name, &value, &ttl, &path); err != nil {
			return err
		}
		c.SetCookie(name, value, ttl, path)
		return nil
	},
	ActionSetResStatus: func(c *Context, data json.RawMessage) error {
		var code int
		if err := decodeArgs(data, &code); err != nil {
			return err
		}
		c.SetResponseStatus(code)
		return nil
	},
	ActionSetResContentType: func(c *Context, data json.RawMessage) error {
		var contentType string
		if err := decodeArgs(data, &contentType); err != nil {
			return err
		}
		c.SetContentType(contentType)
		return nil
	},
	ActionSetResHeader: func(c *Context, data json.RawMessage) error {
		var name, value string
		if err := decodeArgs(data, &name, &value); err != nil {
			return err
		}
		c.SetHeader(name, value)
		return nil
	},
	ActionViewAssign: func(c *Context, data json.RawMessage) error {
		var (
			key   string
			value any
		)
		if err := decodeArgs(data, &key, &value); err != nil {
			return err
		}
		c.Assign(key, value)
		return nil
	},
	ActionViewCallout: func(c *Context, data json.RawMessage) error {
		var message, typ string
		if err := decodeArgs(data, &message, &typ); err != nil {
			return err
		}
		c.AddCallout(message, typ)
		return nil
	},
}

// Supported reports whether action has a replay mutator.
func Supported(action Action) bool {
	_, ok := mutators[action]
	return ok
}

// Replay applies log to c in order. Unknown actions are skipped with a
// warning; malformed data stops the replay with an error.
func Replay(c *Context, log []Mutation) error {
	for i, m := range log {
		fn, ok := mutators[m.Action]
		if !ok {
			slog.Warn(fmt.Sprintf("%s - skipping unknown action %q at index %d", replayLogPrefix, m.Action, i))
			continue
		}
		if err := fn(c, m.Data); err != nil {
			return fmt.Errorf("%s - %s at index %d: %w", replayLogPrefix, m.Action, i, err)
		}
	}
	return nil
}

func decodeArgs(data json.RawMessage, targets ...any) error {
	if len(targets) == 1 {
		return json.Unmarshal(data, targets[0])
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != len(targets) {
		return fmt.Errorf("expected %d arguments, got %d", len(targets), len(raw))
	}
	for i, t := range targets {
		if err := json.Unmarshal(raw[i], t); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return nil
}
