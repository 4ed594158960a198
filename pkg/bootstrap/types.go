// Package bootstrap loads the worker manifest used to seed worker
// registrations at install time.
package bootstrap

import "fmt"

// WorkerEntry registers one worker for one routing key.
type WorkerEntry struct {
	RoutingKey string `json:"routing_key"`
	Worker     string `json:"worker"`
	Version    string `json:"version"`
}

// Manifest is the root of a workers file.
type Manifest struct {
	Name        string        `json:"name"`
	Version     string        `json:"version"`
	Description string        `json:"description,omitempty"`
	Workers     []WorkerEntry `json:"workers"`
}

// Validate checks that every entry names a routing key, a worker and a
// version. Format checks happen at registration.
func (m *Manifest) Validate() error {
	for i, w := range m.Workers {
		switch {
		case w.RoutingKey == "":
			return fmt.Errorf("%s - workers[%d]: routing_key is required", logPrefix, i)
		case w.Worker == "":
			return fmt.Errorf("%s - workers[%d]: worker is required", logPrefix, i)
		case w.Version == "":
			return fmt.Errorf("%s - workers[%d] (%s): version is required", logPrefix, i, w.Worker)
		}
	}
	return nil
}

// RoutingKeys returns the distinct routing keys in first-seen order.
func (m *Manifest) RoutingKeys() []string {
	seen := make(map[string]bool, len(m.Workers))
	var keys []string
	for _, w := range m.Workers {
		if !seen[w.RoutingKey] {
			seen[w.RoutingKey] = true
			keys = append(keys, w.RoutingKey)
		}
	}
	return keys
}

// WorkersFor returns the worker ids listed for routingKey, in file order.
func (m *Manifest) WorkersFor(routingKey string) []string {
	var ids []string
	for _, w := range m.Workers {
		if w.RoutingKey == routingKey {
			ids = append(ids, w.Worker)
		}
	}
	return ids
}
