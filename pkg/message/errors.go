package message

import "fmt"

// RoutingKeyError reports a routing key that is not "<domain>.<category>.<function>".
type RoutingKeyError struct {
	Key string
}

func (e *RoutingKeyError) Error() string {
	return fmt.Sprintf("invalid routing key %q, expected <domain>.<category>.<function> of [A-Za-z0-9_]", e.Key)
}

// SerializationError reports a payload that could not be encoded or is not a
// well-formed message or response.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return "malformed payload: " + e.Err.Error()
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}
