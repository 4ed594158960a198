package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/apex-dispatch/pkg/broker"
	"github.com/morezero/apex-dispatch/pkg/commsutil"
	"github.com/morezero/apex-dispatch/pkg/message"
	"github.com/morezero/apex-dispatch/pkg/reqctx"
)

const logPrefix = "dispatcher:dispatch"

// DefaultTimeout bounds the wait for an rpc reply.
const DefaultTimeout = 5 * time.Second

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRemote sends messages to listeners over the broker reached through
// dial and info instead of running the engine in process.
func WithRemote(dial broker.Dialer, info broker.ConnInfoProvider) Option {
	return func(d *Dispatcher) {
		d.dial = dial
		d.info = info
	}
}

// WithChannel sets the channel remote messages are published to.
func WithChannel(name string) Option {
	return func(d *Dispatcher) {
		if name != "" {
			d.channel = name
		}
	}
}

// WithTimeout sets the rpc reply timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// Dispatcher is the caller side of a dispatch. Calls on one Dispatcher are
// serialized. A remote Dispatcher owns one broker connection and one reply
// queue, created on first use.
type Dispatcher struct {
	engine  *Engine
	dial    broker.Dialer
	info    broker.ConnInfoProvider
	channel string
	timeout time.Duration

	mu      sync.Mutex
	conn    broker.Conn
	replyTo string
	lost    chan struct{}

	pendingMu sync.Mutex
	pending   map[string]chan broker.Delivery
}

// New creates a Dispatcher. Without WithRemote, messages run on engine in
// process.
func New(engine *Engine, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		engine:  engine,
		channel: commsutil.DefaultChannel,
		timeout: DefaultTimeout,
		pending: make(map[string]chan broker.Delivery),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Remote reports whether messages go over the broker.
func (d *Dispatcher) Remote() bool { return d.dial != nil }

// Dispatch runs msg and returns its Response. Mutations the workers made to
// the request context are visible on rc afterwards in both modes. A worker
// application error is returned as *ApplicationError.
func (d *Dispatcher) Dispatch(ctx context.Context, rc *reqctx.Context, msg *message.Message) (*message.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - %s kind=%s remote=%t", logPrefix, msg.FullRoutingKey(), msg.Kind(), d.Remote()))

	var (
		resp *message.Response
		err  error
	)
	if d.Remote() {
		resp, err = d.dispatchRemote(ctx, rc, msg)
	} else {
		resp, err = d.engine.DispatchLocally(ctx, rc, msg)
	}
	if err != nil {
		return nil, err
	}

	if resp.Status() == message.StatusError {
		return nil, &ApplicationError{Message: resp.Exception(), Response: resp}
	}
	return resp, nil
}

func (d *Dispatcher) dispatchRemote(ctx context.Context, rc *reqctx.Context, msg *message.Message) (*message.Response, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}

	body, err := message.Encode(msg)
	if err != nil {
		return nil, err
	}

	if msg.Kind() == message.KindDirect {
		if err := d.conn.Publish(ctx, d.channel, broker.Publishing{Body: body, Persistent: true}); err != nil {
			return nil, &ConnectionError{Op: "publish", Err: err}
		}
		return message.NewResponse(msg), nil
	}

	correlationID := uuid.NewString()
	replies := d.addListener(correlationID)
	defer d.removeListener(correlationID)

	err = d.conn.Publish(ctx, d.channel, broker.Publishing{
		Body:          body,
		CorrelationID: correlationID,
		ReplyTo:       d.replyTo,
		Persistent:    true,
	})
	if err != nil {
		return nil, &ConnectionError{Op: "publish", Err: err}
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	var reply broker.Delivery
	select {
	case reply = <-replies:
	case <-timer.C:
		slog.Warn(fmt.Sprintf("%s - No reply for %s (%s) within %s", logPrefix, msg.FullRoutingKey(), correlationID, d.timeout))
		return nil, &TimeoutError{CorrelationID: correlationID, Timeout: d.timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.lost:
		d.reset()
		return nil, &ConnectionError{Op: "consume replies", Err: fmt.Errorf("reply stream closed")}
	}

	resp, err := message.DecodeResponse(reply.Body)
	if err != nil {
		return nil, err
	}

	if rc != nil {
		if err := reqctx.Replay(rc, resp.MutationLog()); err != nil {
			return nil, fmt.Errorf("%s - failed to replay mutations for %s: %w", logPrefix, correlationID, err)
		}
	}
	return resp, nil
}

// connect dials the broker and declares the reply queue unless a live
// connection exists. Caller holds d.mu.
func (d *Dispatcher) connect(ctx context.Context) error {
	if d.conn != nil {
		select {
		case <-d.lost:
			d.reset()
		default:
			return nil
		}
	}

	info, err := d.info.BrokerConnInfo(ctx)
	if err != nil {
		return &ConnectionError{Op: "resolve connection info", Err: err}
	}

	conn, err := d.dial(ctx, info)
	if err != nil {
		return &ConnectionError{Op: "dial", Err: err}
	}

	replyTo, replies, err := conn.DeclareReplyQueue(ctx)
	if err != nil {
		conn.Close()
		return &ConnectionError{Op: "declare reply queue", Err: err}
	}

	d.conn = conn
	d.replyTo = replyTo
	d.lost = make(chan struct{})
	go d.routeReplies(replies, d.lost)

	slog.Info(fmt.Sprintf("%s - Connected to %s, replies on %s", logPrefix, info.Address(), replyTo))
	return nil
}

// routeReplies hands each reply to the call waiting on its correlation id.
// Replies nobody waits for are dropped.
func (d *Dispatcher) routeReplies(replies <-chan broker.Delivery, lost chan struct{}) {
	defer close(lost)
	for reply := range replies {
		d.pendingMu.Lock()
		ch, ok := d.pending[reply.CorrelationID]
		delete(d.pending, reply.CorrelationID)
		d.pendingMu.Unlock()

		if !ok {
			slog.Warn(fmt.Sprintf("%s - Dropping reply with unknown correlation id %q", logPrefix, reply.CorrelationID))
			continue
		}
		ch <- reply
	}
	slog.Warn(fmt.Sprintf("%s - Reply stream closed", logPrefix))
}

func (d *Dispatcher) addListener(correlationID string) <-chan broker.Delivery {
	ch := make(chan broker.Delivery, 1)
	d.pendingMu.Lock()
	d.pending[correlationID] = ch
	d.pendingMu.Unlock()
	return ch
}

func (d *Dispatcher) removeListener(correlationID string) {
	d.pendingMu.Lock()
	delete(d.pending, correlationID)
	d.pendingMu.Unlock()
}

func (d *Dispatcher) pendingCount() int {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	return len(d.pending)
}

// reset drops a lost connection. Caller holds d.mu.
func (d *Dispatcher) reset() {
	if d.conn != nil {
		d.conn.Close()
	}
	d.conn = nil
	d.replyTo = ""
}

// Close closes the broker connection, if any.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
