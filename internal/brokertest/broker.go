// Package brokertest runs an in-process STOMP-over-WebSocket broker for
// tests.
//
// The broker speaks enough STOMP 1.2 to exercise the messaging client:
// CONNECT/CONNECTED (with heart-beat negotiation), SUBSCRIBE, UNSUBSCRIBE,
// SEND (fanned out to matching subscribers), DISCONNECT with RECEIPT. It
// records every frame it receives and lets tests publish, drop every
// connection, reject or delay handshakes and inject raw bytes.
//
//	b := brokertest.New(t)
//	client, _ := messaging.New(b.Config(), nil)
//	...
//	b.Publish("/topic/order/42", []byte(`{"status":"cooking"}`))
package brokertest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/orderlink/internal/infrastructure/config"
	"github.com/nerrad567/orderlink/internal/stomp"
)

// sendBufferSize is the per-connection outbound frame buffer size.
const sendBufferSize = 256

// Broker is an in-process STOMP broker.
type Broker struct {
	t   testing.TB
	srv *httptest.Server

	mu            sync.Mutex
	conns         map[*conn]struct{}
	received      []Received
	heartbeats    int
	connects      int
	nextConn      int
	nextMessage   int
	rejectConnect string
	connectDelay  time.Duration
	heartBeat     stomp.HeartBeat
	sendBeats     bool
	ignoreReceipt bool
}

// Received is one frame the broker read, tagged with the connection it
// arrived on (numbered from 1 in accept order).
type Received struct {
	Conn  int
	Frame stomp.Frame
}

// conn is one accepted client connection.
type conn struct {
	id     int
	ws     *websocket.Conn
	send   chan []byte
	closed bool
	subs   map[string]string // wire id -> destination
}

var upgrader = websocket.Upgrader{
	Subprotocols: []string{stomp.Subprotocol},
	CheckOrigin:  func(*http.Request) bool { return true },
}

// New starts a broker and stops it when the test ends.
func New(t testing.TB) *Broker {
	t.Helper()
	b := &Broker{
		t:     t,
		conns: make(map[*conn]struct{}),
	}

	r := chi.NewRouter()
	r.Get("/ws", b.handleWebSocket)
	b.srv = httptest.NewServer(r)
	t.Cleanup(b.Close)
	return b
}

// URL returns the broker's WebSocket endpoint.
func (b *Broker) URL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws"
}

// Config returns a default configuration pointed at the broker with short
// timeouts and reconnect delays suited to tests.
func (b *Broker) Config() *config.Config {
	cfg := config.Default()
	cfg.Broker.URL = b.URL()
	cfg.Broker.ConnectTimeout = 2 * time.Second
	cfg.Broker.DisconnectTimeout = time.Second
	cfg.Heartbeat.Outgoing = 0
	cfg.Heartbeat.Incoming = 0
	cfg.Reconnect.InitialDelay = 20 * time.Millisecond
	cfg.Reconnect.MaxDelay = 100 * time.Millisecond
	cfg.Reconnect.Jitter = 0
	return cfg
}

// Close stops the broker and drops every connection.
func (b *Broker) Close() {
	b.DropConnections()
	b.srv.Close()
}

// RejectConnect makes later handshakes fail with an ERROR frame carrying
// msg. An empty msg accepts handshakes again.
func (b *Broker) RejectConnect(msg string) {
	b.mu.Lock()
	b.rejectConnect = msg
	b.mu.Unlock()
}

// DelayConnect holds CONNECTED back by d on later handshakes.
func (b *Broker) DelayConnect(d time.Duration) {
	b.mu.Lock()
	b.connectDelay = d
	b.mu.Unlock()
}

// SetHeartBeat sets the heart-beat header sent in CONNECTED. When send is
// false the broker advertises hb.Send but never actually sends heartbeats.
func (b *Broker) SetHeartBeat(hb stomp.HeartBeat, send bool) {
	b.mu.Lock()
	b.heartBeat = hb
	b.sendBeats = send
	b.mu.Unlock()
}

// IgnoreReceipts stops the broker from answering receipt requests.
func (b *Broker) IgnoreReceipts(ignore bool) {
	b.mu.Lock()
	b.ignoreReceipt = ignore
	b.mu.Unlock()
}

// Frames returns the received frames with one of the given commands, or
// all of them when none is given, in arrival order.
func (b *Broker) Frames(cmds ...stomp.Command) []Received {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Received, 0, len(b.received))
	for _, r := range b.received {
		if len(cmds) == 0 || containsCommand(cmds, r.Frame.Command) {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many frames with cmd were received.
func (b *Broker) Count(cmd stomp.Command) int {
	return len(b.Frames(cmd))
}

// Heartbeats returns how many heartbeat messages were received.
func (b *Broker) Heartbeats() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.heartbeats
}

// Connects returns how many handshakes were accepted.
func (b *Broker) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

// Connections returns the number of open connections.
func (b *Broker) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Subscribed reports whether any open connection holds a subscription to dest.
func (b *Broker) Subscribed(dest string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		for _, d := range c.subs {
			if d == dest {
				return true
			}
		}
	}
	return false
}

// Publish delivers body as a MESSAGE to every subscription on dest and
// returns the number of deliveries.
func (b *Broker) Publish(dest string, body []byte, headers ...stomp.Header) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.publishLocked(dest, body, headers)
}

func (b *Broker) publishLocked(dest string, body []byte, headers stomp.Headers) int {
	delivered := 0
	for c := range b.conns {
		for wireID, d := range c.subs {
			if d != dest {
				continue
			}
			b.nextMessage++
			f := stomp.Frame{
				Command: stomp.CmdMessage,
				Headers: append(stomp.Headers{
					{Key: stomp.HeaderDestination, Value: dest},
					{Key: stomp.HeaderSubscription, Value: wireID},
					{Key: stomp.HeaderMessageID, Value: "m-" + strconv.Itoa(b.nextMessage)},
				}, headers...),
				Body: body,
			}
			data, err := stomp.Encode(f)
			if err != nil {
				b.t.Errorf("brokertest: encoding MESSAGE: %v", err)
				return delivered
			}
			c.trySend(data)
			delivered++
		}
	}
	return delivered
}

// SendRaw writes data as one WebSocket message to every connection.
func (b *Broker) SendRaw(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		c.trySend(data)
	}
}

// SendError sends an ERROR frame to every connection.
func (b *Broker) SendError(msg string) {
	data, err := stomp.Encode(stomp.New(stomp.CmdError, stomp.HeaderMessage, msg))
	if err != nil {
		b.t.Errorf("brokertest: encoding ERROR: %v", err)
		return
	}
	b.SendRaw(data)
}

// DropConnections closes every socket abruptly, without a close handshake.
func (b *Broker) DropConnections() {
	b.mu.Lock()
	conns := make([]*conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.ws.Close()
	}
}

func containsCommand(cmds []stomp.Command, cmd stomp.Command) bool {
	for _, c := range cmds {
		if c == cmd {
			return true
		}
	}
	return false
}
