package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/orderlink/internal/stomp"
	"github.com/nerrad567/orderlink/internal/transport"
)

// attempt is the first handshake, shared by every Connect caller that
// arrives while it is in flight.
type attempt struct {
	done chan struct{}
	err  error
}

// Connect establishes the broker session.
//
// It returns nil immediately when already connected. While a first
// handshake is in flight all callers share its outcome; while reconnecting
// it waits for the reconnect loop to succeed. A failed first handshake is
// returned as an error matching ErrConnection, and the client keeps
// retrying in the background.
//
// Parameters:
//   - ctx: Bounds only this caller's wait; the shared attempt keeps running
//
// Returns:
//   - error: nil when connected; ErrConnection, ErrCancelled (Close during
//     the wait), ErrClosed, or the context error
func (c *Client) Connect(ctx context.Context) error {
	for {
		c.mu.Lock()
		switch c.state {
		case StateConnected:
			c.mu.Unlock()
			return nil
		case StateClosed:
			c.mu.Unlock()
			return ErrClosed
		case StateDisconnected:
			c.beginAttemptLocked()
		}

		if c.state == StateConnecting {
			a := c.attempt
			c.mu.Unlock()
			select {
			case <-a.done:
				return a.err
			case <-ctx.Done():
				return ctx.Err()
			case <-c.closed:
				return ErrCancelled
			}
		}

		changed := c.changed
		c.mu.Unlock()
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return ErrCancelled
		}
	}
}

// ensureStartedLocked starts the first handshake if nothing has started one.
func (c *Client) ensureStartedLocked() {
	if c.state == StateDisconnected && c.attempt == nil {
		c.beginAttemptLocked()
	}
}

// beginAttemptLocked moves to Connecting and runs the first handshake.
// On failure the state passes through Disconnected and the reconnect loop
// takes over.
func (c *Client) beginAttemptLocked() {
	a := &attempt{done: make(chan struct{})}
	c.attempt = a
	c.setStateLocked(StateConnecting, nil)

	go func() {
		err := c.establish(c.ctx)

		c.mu.Lock()
		switch {
		case err == nil:
		case c.state == StateClosed:
			err = ErrCancelled
		default:
			c.getLogger().Warn("broker connection failed", "url", c.cfg.Broker.URL, "error", err)
			c.setStateLocked(StateDisconnected, err)
			c.setStateLocked(StateReconnecting, err)
			c.startReconnectLocked()
		}
		a.err = err
		c.attempt = nil
		close(a.done)
		c.mu.Unlock()
	}()
}

// establish dials, performs the STOMP handshake and activates the session.
// It is bounded by the broker connect timeout.
func (c *Client) establish(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Broker.ConnectTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	connected, err := c.handshake(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	theirs, err := stomp.ParseHeartBeat(connected.Header(stomp.HeaderHeartBeat))
	if err != nil {
		c.getLogger().Warn("ignoring broker heart-beat header", "error", err)
		theirs = stomp.HeartBeat{}
	}
	outgoing, incoming := stomp.Negotiate(c.heartBeatOffer(), theirs)

	s := newSession(c, conn, connected.Header(stomp.HeaderServer), outgoing, incoming)
	return c.activate(s)
}

// connectFrame builds the CONNECT frame from the broker configuration.
func (c *Client) connectFrame() stomp.Frame {
	f := stomp.New(stomp.CmdConnect,
		stomp.HeaderAcceptVersion, stomp.Version,
		stomp.HeaderHost, c.cfg.Broker.Host,
		stomp.HeaderHeartBeat, c.heartBeatOffer().String(),
	)
	if c.cfg.Broker.Login != "" {
		f = f.WithHeader(stomp.HeaderLogin, c.cfg.Broker.Login)
	}
	if c.cfg.Broker.Passcode != "" {
		f = f.WithHeader(stomp.HeaderPasscode, c.cfg.Broker.Passcode)
	}
	return f
}

// handshake writes CONNECT and waits for CONNECTED or ERROR.
func (c *Client) handshake(ctx context.Context, conn transport.Conn) (stomp.Frame, error) {
	data, err := stomp.Encode(c.connectFrame())
	if err != nil {
		return stomp.Frame{}, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	type result struct {
		frame stomp.Frame
		err   error
	}
	done := make(chan result, 1)
	go func() {
		if err := conn.Write(data); err != nil {
			done <- result{err: err}
			return
		}
		for {
			raw, err := conn.Read()
			if err != nil {
				done <- result{err: err}
				return
			}
			if stomp.IsHeartbeat(raw) {
				continue
			}
			f, err := stomp.Decode(raw)
			done <- result{frame: f, err: err}
			return
		}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		_ = conn.Close()
		return stomp.Frame{}, fmt.Errorf("%w: handshake: %w", ErrConnection, ctx.Err())
	}
	if r.err != nil {
		return stomp.Frame{}, fmt.Errorf("%w: handshake: %w", ErrConnection, r.err)
	}

	switch r.frame.Command {
	case stomp.CmdConnected:
		return r.frame, nil
	case stomp.CmdError:
		return stomp.Frame{}, fmt.Errorf("%w: %s", ErrBrokerError, brokerErrorText(r.frame))
	default:
		return stomp.Frame{}, fmt.Errorf("%w: unexpected %s during handshake", ErrConnection, r.frame.Command)
	}
}

// activate installs s as the current session. Under the lock it starts the
// session, drains pending subscriptions (resubscribes included) and then
// pending sends, and only then reports Connected, so no caller can slip a
// frame in between.
func (c *Client) activate(s *session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		s.shutdown()
		return fmt.Errorf("%w: closed during handshake", ErrCancelled)
	}

	c.sess = s
	c.reconnecting = false
	s.start()

	c.pendingSubs.drain(func(dest string, _ time.Time) {
		c.subscribeWireLocked(s, dest)
	})
	c.pendingSends.drain(func(p *pendingSend, enqueued time.Time) {
		if p.ctx.Err() != nil {
			return
		}
		if !s.enqueue(p.out) {
			p.out.complete(fmt.Errorf("%w: session ended", ErrSend))
			return
		}
		c.getLogger().Debug("flushing queued send",
			"destination", p.out.destination,
			"queued_for", time.Since(enqueued),
		)
	})

	c.setStateLocked(StateConnected, nil)
	c.getLogger().Info("connected to broker",
		"url", c.cfg.Broker.URL,
		"server", s.server,
		"heartbeat_out", s.outgoing,
		"heartbeat_in", s.incoming,
	)
	return nil
}

// subscribeWireLocked writes SUBSCRIBE for dest on s if dest still has
// handlers and is not already subscribed on s.
func (c *Client) subscribeWireLocked(s *session, dest string) {
	wireID, ok := c.registry.assignWire(dest)
	if !ok {
		return
	}
	err := s.enqueueFrame(stomp.New(stomp.CmdSubscribe,
		stomp.HeaderID, wireID,
		stomp.HeaderDestination, dest,
		stomp.HeaderAck, "auto",
	))
	if err != nil {
		c.getLogger().Warn("subscribe not written", "destination", dest, "error", err)
	}
}

// sessionLost moves to Reconnecting after an unexpected session end and
// queues every live destination for resubscription.
func (c *Client) sessionLost(s *session, err error) {
	c.mu.Lock()
	if c.sess != s || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	c.registry.resetWire()
	for _, dest := range c.registry.destinations() {
		c.pendingSubs.push(dest)
	}
	c.setStateLocked(StateReconnecting, err)
	c.startReconnectLocked()
	c.mu.Unlock()

	c.getLogger().Warn("broker connection lost", "error", err)
}

// handleFrame routes one decoded inbound frame.
func (c *Client) handleFrame(s *session, f stomp.Frame) {
	switch f.Command {
	case stomp.CmdMessage:
		wireID := f.Header(stomp.HeaderSubscription)
		c.mu.Lock()
		dest, ok := "", false
		if c.sess == s {
			dest, ok = c.registry.resolve(wireID)
		}
		c.mu.Unlock()
		if !ok {
			c.dropFrame("unknown subscription", fmt.Errorf("subscription %q", wireID))
			return
		}

		c.metrics.RecordMessage(DirectionIn, dest, len(f.Body))
		c.dispatcher.dispatch(Message{
			Destination: dest,
			ID:          f.Header(stomp.HeaderMessageID),
			Headers:     f.Headers,
			Body:        f.Body,
		})

	case stomp.CmdReceipt:
		s.receipt(f.Header(stomp.HeaderReceiptID))

	case stomp.CmdError:
		s.fail(fmt.Errorf("%w: %s", ErrBrokerError, brokerErrorText(f)))

	default:
		c.getLogger().Debug("ignoring frame", "command", string(f.Command))
	}
}

// dropFrame counts and logs a discarded inbound frame.
func (c *Client) dropFrame(reason string, err error) {
	c.stats.dropped.Add(1)
	c.metrics.RecordDroppedFrame(reason)
	c.getLogger().Warn("dropping inbound frame", "reason", reason, "error", err)
}

func brokerErrorText(f stomp.Frame) string {
	if msg := f.Header(stomp.HeaderMessage); msg != "" {
		return msg
	}
	if len(f.Body) > 0 {
		return string(f.Body)
	}
	return "no detail"
}

// Close shuts the client down for good.
//
// It stops any reconnect loop, rejects waiting Connect calls and queued
// Send calls with ErrCancelled, discards every subscription and, when
// connected, sends DISCONNECT and waits up to the disconnect timeout for the
// broker's receipt. Frames already handed to the session are written ahead
// of DISCONNECT, and their Send calls return the write outcome, so a nil
// result always means the frame reached the socket. Calling Close again
// returns nil.
//
// Parameters:
//   - ctx: Bounds the wait for the DISCONNECT receipt
//
// Returns:
//   - error: The context error if ctx ended before the receipt, else nil
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	wasConnected := c.state == StateConnected
	s := c.sess
	c.sess = nil
	c.setStateLocked(StateClosed, nil)
	close(c.closed)
	c.cancel()

	c.pendingSends.drain(func(p *pendingSend, _ time.Time) {
		p.out.complete(ErrCancelled)
	})
	c.pendingSubs.drain(func(string, time.Time) {})
	c.registry.clear()
	c.mu.Unlock()

	var err error
	if s != nil {
		if wasConnected {
			err = c.disconnect(ctx, s)
		}
		s.shutdown()
	}

	c.getLogger().Info("messaging client closed")
	return err
}

// disconnect sends DISCONNECT with a receipt and waits for it.
func (c *Client) disconnect(ctx context.Context, s *session) error {
	id := uuid.NewString()
	receipt := s.expectReceipt(id)
	if err := s.enqueueFrame(stomp.New(stomp.CmdDisconnect, stomp.HeaderReceipt, id)); err != nil {
		return nil
	}

	timer := time.NewTimer(c.cfg.Broker.DisconnectTimeout)
	defer timer.Stop()

	select {
	case <-receipt:
		return nil
	case <-s.done:
		return nil
	case <-timer.C:
		c.getLogger().Warn("no receipt for DISCONNECT", "timeout", c.cfg.Broker.DisconnectTimeout)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("messaging close: %w", ctx.Err())
	}
}
