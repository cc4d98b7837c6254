package messaging

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/nerrad567/orderlink/internal/infrastructure/config"
	"github.com/nerrad567/orderlink/internal/payload"
	"github.com/nerrad567/orderlink/internal/stomp"
	"github.com/nerrad567/orderlink/internal/transport"
)

// Client is the one long-lived messaging service of a process.
//
// It multiplexes any number of subscriptions over a single STOMP session,
// queues subscriptions and sends requested before the session is up,
// reconnects with exponential backoff after unexpected loss and restores
// live subscriptions without involving callers.
//
// Construct it once at startup with New and pass it to the code that needs
// it. Close is terminal; build a new Client to start over.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Frames reach the socket through a single writer in the order the
//     client accepted them.
type Client struct {
	cfg        *config.Config
	dialer     transport.Dialer
	codec      payload.Codec
	limiter    *rate.Limiter
	metrics    Metrics
	dispatcher *dispatcher
	notifier   *lanes

	// ctx lives until Close; handlers receive it.
	ctx    context.Context
	cancel context.CancelFunc
	closed chan struct{}

	mu           sync.Mutex
	state        State
	changed      chan struct{}
	lastErr      error
	sess         *session
	attempt      *attempt
	reconnecting bool
	registry     *registry
	pendingSubs  deferredQueue[string]
	pendingSends deferredQueue[*pendingSend]
	listeners    []func(StateChange)

	stats clientStats

	logger   Logger
	loggerMu sync.RWMutex
}

// pendingSend is a SEND accepted while no session was ready.
type pendingSend struct {
	ctx context.Context
	out outbound
}

type clientStats struct {
	framesIn          atomic.Uint64
	framesOut         atomic.Uint64
	dropped           atomic.Uint64
	reconnectAttempts atomic.Uint64
	reconnects        atomic.Uint64
}

// Stats is a point-in-time view of the client.
type Stats struct {
	State             State
	Destinations      int
	Subscriptions     int
	PendingSends      int
	FramesIn          uint64
	FramesOut         uint64
	MessagesDelivered uint64
	DroppedFrames     uint64
	ConsumerErrors    uint64
	ReconnectAttempts uint64
	Reconnects        uint64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Equivalent to calling SetLogger after New.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the telemetry sink.
func WithMetrics(m Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// New creates a disconnected Client. Nothing is dialled until the first
// Connect, Subscribe or Send.
//
// Parameters:
//   - cfg: Full configuration; nil selects config.Default()
//   - dialer: Socket dialer; nil selects a WebSocket dialer for cfg.Broker
//   - opts: Optional logger and metrics
//
// Returns:
//   - *Client: Client ready for use
//   - error: If the configured content type has no codec
func New(cfg *config.Config, dialer transport.Dialer, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if dialer == nil {
		dialer = transport.NewWebSocketDialer(cfg.Broker)
	}

	codec, err := payload.Lookup(cfg.Send.ContentType)
	if err != nil {
		return nil, fmt.Errorf("messaging: %w", err)
	}

	limit := rate.Inf
	if cfg.Send.RateLimit > 0 {
		limit = rate.Limit(cfg.Send.RateLimit)
	}
	burst := max(cfg.Send.Burst, 1)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:      cfg,
		dialer:   dialer,
		codec:    codec,
		limiter:  rate.NewLimiter(limit, burst),
		metrics:  noopMetrics{},
		notifier: newLanes(),
		ctx:      ctx,
		cancel:   cancel,
		closed:   make(chan struct{}),
		state:    StateDisconnected,
		changed:  make(chan struct{}),
		registry: newRegistry(),
		logger:   noopLogger{},
	}
	c.dispatcher = newDispatcher(ctx, c.snapshot, c.getLogger, cfg.Dispatch.MaxBacklog)

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Subscribe registers handler on destination.
//
// The first handler on a destination causes one SUBSCRIBE on the wire: now
// if connected, otherwise when the next session comes up. Later handlers on
// the same destination share it. Subscribe never waits for the handshake;
// it starts one if none is running.
//
// Parameters:
//   - ctx: Checked before registering
//   - destination: Broker destination, e.g. Destinations{}.OrderStatus("42")
//   - handler: Callback for each message; see Handler for delivery rules
//
// Returns:
//   - *Subscription: Handle whose Unsubscribe removes this handler
//   - error: ErrInvalidDestination, ErrNilHandler, ErrClosed or ctx error
func (c *Client) Subscribe(ctx context.Context, destination string, handler Handler) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateDestination(destination); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	sub := &Subscription{
		id:          newSubscriptionID(),
		destination: destination,
		handler:     handler,
		client:      c,
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if first := c.registry.add(sub); first {
		if c.state == StateConnected {
			c.subscribeWireLocked(c.sess, destination)
		} else {
			c.pendingSubs.push(destination)
		}
	}
	c.ensureStartedLocked()
	c.mu.Unlock()

	c.getLogger().Debug("subscribed", "destination", destination, "subscription", sub.id)
	return sub, nil
}

// unsubscribe removes sub and cancels the wire subscription when it was the
// last handler and a SUBSCRIBE was written on the current session.
func (c *Client) unsubscribe(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, wireID := c.registry.remove(sub)
	if !last || wireID == "" || c.state != StateConnected || c.sess == nil {
		return
	}
	if err := c.sess.enqueueFrame(stomp.New(stomp.CmdUnsubscribe, stomp.HeaderID, wireID)); err != nil {
		c.getLogger().Debug("unsubscribe not written", "destination", sub.destination, "error", err)
	}
}

// Send encodes v with the configured codec and sends it to destination.
//
// When connected the frame is written at once and Send returns the write
// outcome; a failure matches ErrSend and is not retried. Otherwise the send
// is queued and Send returns once it has been written after the next
// successful connect, or with ErrCancelled if Close comes while it is still
// queued. If ctx ends
// while queued, the send is dropped and ctx's error is returned.
//
// Example:
//
//	err := client.Send(ctx, messaging.Destinations{}.ReviewSubmit(),
//	    map[string]any{"orderId": "42", "rating": 5})
func (c *Client) Send(ctx context.Context, destination string, v any) error {
	body, err := c.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	return c.SendRaw(ctx, destination, body,
		stomp.Header{Key: stomp.HeaderContentType, Value: c.codec.ContentType()})
}

// SendRaw sends a pre-encoded body with optional extra headers. It follows
// the same queueing rules as Send.
func (c *Client) SendRaw(ctx context.Context, destination string, body []byte, headers ...stomp.Header) error {
	if err := validateDestination(destination); err != nil {
		return err
	}

	frame := stomp.Frame{
		Command: stomp.CmdSend,
		Headers: append(stomp.Headers{{Key: stomp.HeaderDestination, Value: destination}}, headers...),
		Body:    body,
	}
	data, err := stomp.Encode(frame)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	out := outbound{
		data:        data,
		destination: destination,
		bodySize:    len(body),
		paced:       true,
		result:      make(chan error, 1),
	}

	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateConnected:
		ok := c.sess.enqueue(out)
		c.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: session ended", ErrSend)
		}
	default:
		c.pendingSends.push(&pendingSend{ctx: ctx, out: out})
		c.ensureStartedLocked()
		c.mu.Unlock()
	}

	select {
	case err := <-out.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		// Close completes queued sends with ErrCancelled; a frame already
		// handed to the session reports its real write outcome.
		select {
		case err := <-out.result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether a session is up and flushed.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// LastError returns the cause of the most recent failure transition, or nil.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Stats returns counters and queue sizes.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	st := Stats{
		State:         c.state,
		Destinations:  len(c.registry.dests),
		Subscriptions: c.registry.subscriberCount(),
		PendingSends:  c.pendingSends.len(),
	}
	c.mu.Unlock()

	st.FramesIn = c.stats.framesIn.Load()
	st.FramesOut = c.stats.framesOut.Load()
	st.DroppedFrames = c.stats.dropped.Load()
	st.ReconnectAttempts = c.stats.reconnectAttempts.Load()
	st.Reconnects = c.stats.reconnects.Load()
	st.MessagesDelivered = c.dispatcher.delivered.Load()
	st.ConsumerErrors = c.dispatcher.consumerErrors.Load()
	return st
}

// HealthCheck reports whether the client is connected.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if connected, ErrNotConnected or ErrClosed otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("messaging health check: %w", ctx.Err())
	default:
	}

	switch st := c.State(); st {
	case StateConnected:
		return nil
	case StateClosed:
		return ErrClosed
	default:
		return fmt.Errorf("%w: %s", ErrNotConnected, st)
	}
}

// OnStateChange registers fn to be called after every state transition.
// Calls are made in transition order from a dedicated goroutine, never
// while the client holds its lock, so fn may call back into the client.
func (c *Client) OnStateChange(fn func(StateChange)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// SetLogger sets a logger for connection events and handler failures.
// If not set, nothing is logged.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger.
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// setStateLocked records a transition, wakes Connect waiters and queues the
// listener notification.
func (c *Client) setStateLocked(to State, err error) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	if err != nil {
		c.lastErr = err
	}
	close(c.changed)
	c.changed = make(chan struct{})

	c.metrics.RecordState(to.String())
	c.getLogger().Info("connection state changed", "from", from.String(), "to", to.String())

	if len(c.listeners) == 0 {
		return
	}
	listeners := slices.Clone(c.listeners)
	change := StateChange{From: from, To: to, Err: err}
	c.notifier.push("state", func() {
		for _, fn := range listeners {
			fn(change)
		}
	})
}

// snapshot returns dest's handlers for the dispatcher.
func (c *Client) snapshot(dest string) []*Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.snapshot(dest)
}

func validateDestination(destination string) error {
	if strings.TrimSpace(destination) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDestination)
	}
	if strings.ContainsAny(destination, "\x00") {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidDestination, destination)
	}
	return nil
}
