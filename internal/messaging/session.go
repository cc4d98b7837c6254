package messaging

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/orderlink/internal/stomp"
	"github.com/nerrad567/orderlink/internal/transport"
)

// outbound is one frame queued for the session writer.
type outbound struct {
	data []byte

	// destination and bodySize are set for SEND frames and feed the
	// message metrics.
	destination string
	bodySize    int

	// paced frames wait on the send rate limiter before being written.
	paced bool

	// result receives the write outcome when non-nil. Buffered, size 1.
	result chan error
}

func (o outbound) complete(err error) {
	if o.result != nil {
		o.result <- err
	}
}

// session is one live socket after a successful handshake. It owns three
// goroutines: the reader, the single writer and the heartbeat watchdog.
// A session never recovers; on any failure it ends and the client builds a
// new one.
type session struct {
	client *Client
	conn   transport.Conn
	server string

	// Negotiated heartbeat intervals; zero disables the direction.
	outgoing time.Duration
	incoming time.Duration
	deadline time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	queue    []outbound
	stopped  bool
	receipts map[string]chan struct{}
	wake     chan struct{}

	lastRead atomic.Int64
	quiet    atomic.Bool

	done     chan struct{}
	failOnce sync.Once
	err      error
}

func newSession(c *Client, conn transport.Conn, server string, outgoing, incoming time.Duration) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		client:   c,
		conn:     conn,
		server:   server,
		outgoing: outgoing,
		incoming: incoming,
		deadline: silenceDeadline(incoming, c.cfg.Heartbeat.Tolerance),
		ctx:      ctx,
		cancel:   cancel,
		receipts: make(map[string]chan struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	s.lastRead.Store(time.Now().UnixNano())
	return s
}

// start launches the session goroutines.
func (s *session) start() {
	go s.readLoop()
	go s.writeLoop()
	go s.watchLoop()
}

// enqueue hands o to the writer. It never blocks and returns false when the
// session has already ended.
func (s *session) enqueue(o outbound) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, o)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// enqueueFrame encodes f and queues it without waiting for the write.
func (s *session) enqueueFrame(f stomp.Frame) error {
	data, err := stomp.Encode(f)
	if err != nil {
		return err
	}
	if !s.enqueue(outbound{data: data}) {
		return fmt.Errorf("%w: session ended", ErrSend)
	}
	return nil
}

func (s *session) pop() (outbound, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return outbound{}, false
	}
	o := s.queue[0]
	s.queue[0] = outbound{}
	s.queue = s.queue[1:]
	return o, true
}

// failQueued stops the queue and fails everything not yet written.
func (s *session) failQueued() {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.stopped = true
	s.mu.Unlock()

	for _, o := range pending {
		o.complete(fmt.Errorf("%w: %w", ErrSend, s.err))
	}
}

func (s *session) write(o outbound) error {
	if o.paced {
		if err := s.client.limiter.Wait(s.ctx); err != nil {
			return err
		}
	}
	if err := s.conn.Write(o.data); err != nil {
		return err
	}
	s.client.stats.framesOut.Add(1)
	if o.destination != "" {
		s.client.metrics.RecordMessage(DirectionOut, o.destination, o.bodySize)
	}
	return nil
}

// readLoop decodes inbound frames until the socket fails. Malformed frames
// are dropped and the session stays up.
func (s *session) readLoop() {
	for {
		data, err := s.conn.Read()
		if err != nil {
			s.fail(fmt.Errorf("%w: read: %w", ErrConnection, err))
			return
		}
		s.lastRead.Store(time.Now().UnixNano())

		if stomp.IsHeartbeat(data) {
			continue
		}
		s.client.stats.framesIn.Add(1)

		f, err := stomp.Decode(data)
		if err != nil {
			s.client.dropFrame("malformed", err)
			continue
		}
		s.client.handleFrame(s, f)
	}
}

// expectReceipt registers interest in a RECEIPT with the given id.
func (s *session) expectReceipt(id string) <-chan struct{} {
	ch := make(chan struct{})
	s.mu.Lock()
	s.receipts[id] = ch
	s.mu.Unlock()
	return ch
}

func (s *session) receipt(id string) {
	s.mu.Lock()
	ch, ok := s.receipts[id]
	delete(s.receipts, id)
	s.mu.Unlock()
	if ok {
		close(ch)
	}
}

// fail ends the session with err and reports the loss to the client
// unless the session is being shut down deliberately.
func (s *session) fail(err error) {
	s.failOnce.Do(func() {
		s.err = err
		close(s.done)
		s.cancel()
		_ = s.conn.Close()
		if !s.quiet.Load() {
			s.client.sessionLost(s, err)
		}
	})
}

// shutdown ends the session without triggering a reconnect.
func (s *session) shutdown() {
	s.quiet.Store(true)
	s.fail(ErrClosed)
}
