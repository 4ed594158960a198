package commsutil

// Default channel and subjects.
const (
	// DefaultChannel is the shared channel listeners consume and dispatchers publish to.
	DefaultChannel = "apex"
	// SubjectRegistryChanged carries worker registration change events.
	SubjectRegistryChanged = "apex.registry.changed"
)

// BuildChangeSubject builds the granular change subject for a routing key.
func BuildChangeSubject(routingKey string) string {
	return SubjectRegistryChanged + "." + routingKey
}

// BuildQueueGroup names the queue group that competing listeners on a channel join.
func BuildQueueGroup(channel string) string {
	return channel + ".listeners"
}
