// Package amqpbroker implements broker.Conn over AMQP 0-9-1.
package amqpbroker

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/morezero/apex-dispatch/pkg/broker"
)

const logPrefix = "amqpbroker:amqp"

func init() {
	broker.RegisterDialer(broker.DriverAMQP, Dial)
}

// Conn is an AMQP connection with one publishing channel. Consumers get
// channels of their own.
type Conn struct {
	conn *amqp.Connection

	mu  sync.Mutex
	out *amqp.Channel

	done      chan struct{}
	closeOnce sync.Once
}

// URL builds the AMQP URI for info.
func URL(info broker.ConnInfo) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(info.User, info.Pass),
		Host:   info.Address(),
	}
	return u.String()
}

// Dial connects to the broker described by info, applying AMQP defaults.
func Dial(_ context.Context, info broker.ConnInfo) (broker.Conn, error) {
	info = info.WithDefaults(broker.DefaultAMQPPort)
	slog.Info(fmt.Sprintf("%s - Connecting to AMQP at %s as %s", logPrefix, info.Address(), info.User))

	conn, err := amqp.Dial(URL(info))
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to %s: %w", logPrefix, info.Address(), err)
	}

	out, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s - failed to open channel: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to AMQP at %s", logPrefix, info.Address()))
	return &Conn{conn: conn, out: out, done: make(chan struct{})}, nil
}

// Publish sends p through the default exchange to the queue named dest.
func (c *Conn) Publish(_ context.Context, dest string, p broker.Publishing) error {
	mode := amqp.Transient
	if p.Persistent {
		mode = amqp.Persistent
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.out.Publish("", dest, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  mode,
		CorrelationId: p.CorrelationID,
		ReplyTo:       p.ReplyTo,
		Timestamp:     time.Now(),
		Body:          p.Body,
	})
	if err != nil {
		return fmt.Errorf("%s - failed to publish to %s: %w", logPrefix, dest, err)
	}
	return nil
}

// DeclareReplyQueue declares a server-named, exclusive, auto-delete queue and
// consumes it with auto-ack.
func (c *Conn) DeclareReplyQueue(_ context.Context) (string, <-chan broker.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return "", nil, fmt.Errorf("%s - failed to open reply channel: %w", logPrefix, err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return "", nil, fmt.Errorf("%s - failed to declare reply queue: %w", logPrefix, err)
	}

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return "", nil, fmt.Errorf("%s - failed to consume reply queue %s: %w", logPrefix, q.Name, err)
	}

	slog.Debug(fmt.Sprintf("%s - Declared reply queue %s", logPrefix, q.Name))
	return q.Name, c.forward(msgs, false), nil
}

// Consume declares the durable shared queue channel, limits unacknowledged
// deliveries to prefetch and consumes with manual ack.
func (c *Conn) Consume(_ context.Context, channel string, prefetch int) (<-chan broker.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s - failed to open consumer channel: %w", logPrefix, err)
	}

	if _, err := ch.QueueDeclare(channel, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("%s - failed to declare queue %s: %w", logPrefix, channel, err)
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("%s - failed to set prefetch %d: %w", logPrefix, prefetch, err)
	}

	msgs, err := ch.Consume(channel, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("%s - failed to consume %s: %w", logPrefix, channel, err)
	}

	slog.Info(fmt.Sprintf("%s - Consuming %s with prefetch %d", logPrefix, channel, prefetch))
	return c.forward(msgs, true), nil
}

func (c *Conn) forward(msgs <-chan amqp.Delivery, manualAck bool) <-chan broker.Delivery {
	out := make(chan broker.Delivery)
	go func() {
		defer close(out)
		for d := range msgs {
			d := d
			ack := func() error { return nil }
			if manualAck {
				ack = func() error { return d.Ack(false) }
			}
			select {
			case out <- broker.Delivery{
				Body:          d.Body,
				CorrelationID: d.CorrelationId,
				ReplyTo:       d.ReplyTo,
				Ack:           ack,
			}:
			case <-c.done:
				return
			}
		}
	}()
	return out
}

// Close closes the connection and every channel opened on it.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
