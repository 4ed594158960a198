// Package natsbroker implements broker.Conn over core NATS. Channels map to
// subjects consumed through a queue group so listeners compete for messages,
// and reply queues are connection-unique inboxes.
package natsbroker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/apex-dispatch/pkg/broker"
	"github.com/morezero/apex-dispatch/pkg/commsutil"
)

const logPrefix = "natsbroker:nats"

// Header names carrying AMQP-style properties.
const (
	HeaderCorrelationID = "Correlation-Id"
	HeaderDeliveryMode  = "Delivery-Mode"
)

// Delivery mode header values.
const (
	DeliveryPersistent = "persistent"
	DeliveryTransient  = "transient"
)

// ClientName is the connection name reported to the server.
const ClientName = "apex-dispatch"

func init() {
	broker.RegisterDialer(broker.DriverNATS, Dial)
}

// Conn wraps a NATS connection.
type Conn struct {
	nc *comms.Conn

	done      chan struct{}
	closeOnce sync.Once
}

// URL builds the NATS URL for info, without credentials.
func URL(info broker.ConnInfo) string {
	return "nats://" + info.Address()
}

// Dial connects to the server described by info, applying NATS defaults.
func Dial(_ context.Context, info broker.ConnInfo) (broker.Conn, error) {
	info = info.WithDefaults(broker.DefaultNATSPort)
	nc, err := commsutil.Connect(URL(info), ClientName, comms.UserInfo(info.User, info.Pass))
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	return New(nc), nil
}

// New wraps an established connection. Close closes nc.
func New(nc *comms.Conn) *Conn {
	return &Conn{nc: nc, done: make(chan struct{})}
}

// Publish sends p to subject dest.
func (c *Conn) Publish(_ context.Context, dest string, p broker.Publishing) error {
	msg := comms.NewMsg(dest)
	msg.Data = p.Body
	msg.Reply = p.ReplyTo
	if p.CorrelationID != "" {
		msg.Header.Set(HeaderCorrelationID, p.CorrelationID)
	}
	mode := DeliveryTransient
	if p.Persistent {
		mode = DeliveryPersistent
	}
	msg.Header.Set(HeaderDeliveryMode, mode)

	if err := c.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("%s - failed to publish to %s: %w", logPrefix, dest, err)
	}
	return nil
}

// DeclareReplyQueue subscribes to a fresh inbox.
func (c *Conn) DeclareReplyQueue(_ context.Context) (string, <-chan broker.Delivery, error) {
	inbox := c.nc.NewInbox()
	msgs := make(chan *comms.Msg, 64)
	sub, err := c.nc.ChanSubscribe(inbox, msgs)
	if err != nil {
		return "", nil, fmt.Errorf("%s - failed to subscribe to reply inbox: %w", logPrefix, err)
	}

	out := make(chan broker.Delivery)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case m := <-msgs:
				select {
				case out <- toDelivery(m):
				case <-c.done:
					return
				}
			case <-c.done:
				return
			}
		}
	}()

	slog.Debug(fmt.Sprintf("%s - Declared reply inbox %s", logPrefix, inbox))
	return inbox, out, nil
}

// Consume joins the channel's queue group. Messages are pulled one at a time
// so at most one delivery is handed out before the previous one is taken;
// prefetch is accepted for interface parity.
func (c *Conn) Consume(ctx context.Context, channel string, prefetch int) (<-chan broker.Delivery, error) {
	sub, err := c.nc.QueueSubscribeSync(channel, commsutil.BuildQueueGroup(channel))
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, channel, err)
	}
	// Core NATS drops messages with no subscriber, so the server must know
	// about the queue group before callers publish.
	if err := c.nc.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("%s - failed to flush subscription to %s: %w", logPrefix, channel, err)
	}

	out := make(chan broker.Delivery)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			m, err := sub.NextMsgWithContext(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, comms.ErrConnectionClosed) &&
					!errors.Is(err, comms.ErrBadSubscription) {
					slog.Warn(fmt.Sprintf("%s - Stopped consuming %s: %v", logPrefix, channel, err))
				}
				return
			}
			select {
			case out <- toDelivery(m):
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
		}
	}()

	slog.Info(fmt.Sprintf("%s - Consuming %s in queue group %s (prefetch %d)", logPrefix, channel,
		commsutil.BuildQueueGroup(channel), prefetch))
	return out, nil
}

func toDelivery(m *comms.Msg) broker.Delivery {
	d := broker.Delivery{
		Body:    m.Data,
		ReplyTo: m.Reply,
		Ack:     func() error { return nil },
	}
	if m.Header != nil {
		d.CorrelationID = m.Header.Get(HeaderCorrelationID)
	}
	return d
}

// Close closes the connection. Replies not yet received are dropped.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.nc.Close()
	})
	return nil
}
