package db

import "time"

// WorkerRegistration represents a row in the worker_registrations table.
// Rows for one routing key are returned in ID order, which is the order
// workers are invoked in.
type WorkerRegistration struct {
	ID         int64     `json:"id"`
	RoutingKey string    `json:"routing_key"`
	Worker     string    `json:"worker"`
	Version    string    `json:"version"`
	Created    time.Time `json:"created"`
}
