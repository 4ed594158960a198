// Package broker abstracts the message-queue transport that connects
// dispatchers and listeners running in different processes.
package broker

//go:generate mockgen -destination brokermock/conn.go -package brokermock github.com/morezero/apex-dispatch/pkg/broker Conn,ConnInfoProvider

import (
	"context"
	"fmt"
	"strings"
)

// Standard ports and default credentials used when connection info is unset.
const (
	DefaultHost     = "localhost"
	DefaultUser     = "guest"
	DefaultPass     = "guest"
	DefaultAMQPPort = 5672
	DefaultNATSPort = 4222
)

// Driver names accepted by DialerFor.
const (
	DriverAMQP = "amqp"
	DriverNATS = "nats"
)

// ConnInfo locates and authenticates a broker.
type ConnInfo struct {
	Host string
	Port int
	User string
	Pass string
}

// WithDefaults fills unset fields with localhost, port and guest/guest.
func (c ConnInfo) WithDefaults(port int) ConnInfo {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = port
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.Pass == "" {
		c.Pass = DefaultPass
	}
	return c
}

// Address returns "host:port".
func (c ConnInfo) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConnInfoProvider supplies connection info, typically from configuration.
type ConnInfoProvider interface {
	BrokerConnInfo(ctx context.Context) (ConnInfo, error)
}

// StaticConnInfo is a ConnInfoProvider returning fixed info.
type StaticConnInfo ConnInfo

// BrokerConnInfo returns the info unchanged.
func (s StaticConnInfo) BrokerConnInfo(_ context.Context) (ConnInfo, error) {
	return ConnInfo(s), nil
}

// Publishing is an outbound message.
type Publishing struct {
	Body          []byte
	CorrelationID string
	ReplyTo       string
	Persistent    bool
}

// Delivery is an inbound message. Ack must be called once processing ends;
// it is a no-op on transports without acknowledgements.
type Delivery struct {
	Body          []byte
	CorrelationID string
	ReplyTo       string
	Ack           func() error
}

// Conn is one broker connection. It is not safe for concurrent Publish calls
// from several goroutines unless the implementation says otherwise.
type Conn interface {
	// Publish sends p to dest, a channel or reply queue name.
	Publish(ctx context.Context, dest string, p Publishing) error
	// DeclareReplyQueue creates an exclusive, auto-delete, anonymous queue
	// bound to this connection and starts consuming it.
	DeclareReplyQueue(ctx context.Context) (name string, deliveries <-chan Delivery, err error)
	// Consume starts consuming the shared channel with at most prefetch
	// unacknowledged deliveries in flight. The stream closes when the
	// connection is lost.
	Consume(ctx context.Context, channel string, prefetch int) (<-chan Delivery, error)
	Close() error
}

// Dialer opens a Conn.
type Dialer func(ctx context.Context, info ConnInfo) (Conn, error)

var dialers = map[string]Dialer{}

// RegisterDialer makes a driver available to DialerFor. Transport packages
// call it from init.
func RegisterDialer(driver string, d Dialer) {
	dialers[strings.ToLower(driver)] = d
}

// DialerFor returns the dialer registered for driver.
func DialerFor(driver string) (Dialer, error) {
	d, ok := dialers[strings.ToLower(driver)]
	if !ok {
		return nil, fmt.Errorf("broker: unknown driver %q", driver)
	}
	return d, nil
}

// DefaultPort returns the standard port of driver, or 0 if unknown.
func DefaultPort(driver string) int {
	switch strings.ToLower(driver) {
	case DriverAMQP:
		return DefaultAMQPPort
	case DriverNATS:
		return DefaultNATSPort
	default:
		return 0
	}
}
