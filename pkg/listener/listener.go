// Package listener consumes dispatched messages from the broker, runs them
// through the local engine and replies to rpc callers.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/morezero/apex-dispatch/pkg/broker"
	"github.com/morezero/apex-dispatch/pkg/commsutil"
	"github.com/morezero/apex-dispatch/pkg/dispatcher"
	"github.com/morezero/apex-dispatch/pkg/message"
	"github.com/morezero/apex-dispatch/pkg/reqctx"
)

const logPrefix = "listener:listen"

// Prefetch is the number of unacknowledged deliveries a listener holds.
const Prefetch = 1

// InternalErrorException is the exception replied when processing fails
// fatally, so the caller gets an answer instead of a timeout.
const InternalErrorException = "internal error"

// Option configures a Listener.
type Option func(*Listener)

// WithChannel sets the consumed channel.
func WithChannel(name string) Option {
	return func(l *Listener) {
		if name != "" {
			l.channel = name
		}
	}
}

// Listener is the server side of remote dispatch. Run more processes to
// scale; each handles one message at a time.
type Listener struct {
	engine  *dispatcher.Engine
	dial    broker.Dialer
	info    broker.ConnInfoProvider
	channel string

	connected atomic.Bool
	processed atomic.Uint64
}

// New creates a Listener.
func New(engine *dispatcher.Engine, dial broker.Dialer, info broker.ConnInfoProvider, opts ...Option) *Listener {
	l := &Listener{
		engine:  engine,
		dial:    dial,
		info:    info,
		channel: commsutil.DefaultChannel,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Connected reports whether Listen is consuming.
func (l *Listener) Connected() bool { return l.connected.Load() }

// Processed returns the number of deliveries handled.
func (l *Listener) Processed() uint64 { return l.processed.Load() }

// Listen consumes the channel until ctx is cancelled, returning nil, or the
// delivery stream ends, returning a *dispatcher.ConnectionError. A failing
// message never ends the loop.
func (l *Listener) Listen(ctx context.Context) error {
	info, err := l.info.BrokerConnInfo(ctx)
	if err != nil {
		return &dispatcher.ConnectionError{Op: "resolve connection info", Err: err}
	}

	conn, err := l.dial(ctx, info)
	if err != nil {
		return &dispatcher.ConnectionError{Op: "dial", Err: err}
	}
	defer conn.Close()

	deliveries, err := conn.Consume(ctx, l.channel, Prefetch)
	if err != nil {
		return &dispatcher.ConnectionError{Op: "consume", Err: err}
	}

	l.connected.Store(true)
	defer l.connected.Store(false)
	slog.Info(fmt.Sprintf("%s - Listening on %s at %s", logPrefix, l.channel, info.Address()))

	for {
		select {
		case <-ctx.Done():
			slog.Info(fmt.Sprintf("%s - Stopping, %d messages processed", logPrefix, l.Processed()))
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return &dispatcher.ConnectionError{Op: "consume", Err: errors.New("delivery stream closed")}
			}
			l.handle(ctx, conn, d)
		}
	}
}

// handle processes one delivery. It is acknowledged whatever the outcome.
func (l *Listener) handle(ctx context.Context, conn broker.Conn, d broker.Delivery) {
	defer func() {
		l.processed.Add(1)
		if d.Ack == nil {
			return
		}
		if err := d.Ack(); err != nil {
			slog.Warn(fmt.Sprintf("%s - ack failed: %v", logPrefix, err))
		}
	}()

	msg, err := message.Decode(d.Body)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - Dropping malformed message: %v", logPrefix, err))
		return
	}

	resp := l.process(ctx, msg)

	if msg.Kind() != message.KindRPC || d.ReplyTo == "" {
		return
	}

	body, err := message.EncodeResponse(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response for %s: %v", logPrefix, msg.FullRoutingKey(), err))
		body, err = message.EncodeResponse(internalError(msg))
		if err != nil {
			return
		}
	}

	err = conn.Publish(ctx, d.ReplyTo, broker.Publishing{Body: body, CorrelationID: d.CorrelationID})
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to reply to %s: %v", logPrefix, d.ReplyTo, err))
	}
}

func (l *Listener) process(ctx context.Context, msg *message.Message) (resp *message.Response) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - panic processing %s: %v", logPrefix, msg.FullRoutingKey(), r))
			resp = internalError(msg)
		}
	}()

	slog.Debug(fmt.Sprintf("%s - Processing %s kind=%s", logPrefix, msg.FullRoutingKey(), msg.Kind()))
	resp, err := l.engine.DispatchLocally(ctx, reqctx.FromSnapshot(msg.Request()), msg)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - %s failed: %v", logPrefix, msg.FullRoutingKey(), err))
		return internalError(msg)
	}
	return resp
}

func internalError(msg *message.Message) *message.Response {
	resp := message.NewResponse(msg)
	resp.SetError(InternalErrorException)
	return resp
}
