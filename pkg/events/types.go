// Package events defines the event emitted when worker registrations change,
// and publishers for it.
package events

// Registration change actions.
const (
	ActionRegistered   = "registered"
	ActionUnregistered = "unregistered"
)

// RegistrationChangedEvent is emitted when a worker is added to or removed
// from a routing key.
type RegistrationChangedEvent struct {
	Action     string `json:"action"`
	RoutingKey string `json:"routingKey"`
	Worker     string `json:"worker"`
	Version    string `json:"version,omitempty"`
	Timestamp  string `json:"timestamp"`
}
