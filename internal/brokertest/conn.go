package brokertest

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/orderlink/internal/stomp"
)

// handleWebSocket upgrades the request and starts the connection pumps.
func (b *Broker) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.nextConn++
	c := &conn{
		id:   b.nextConn,
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]string),
	}
	b.conns[c] = struct{}{}
	b.mu.Unlock()

	go b.writePump(c)
	go b.readPump(c)
}

// unregister removes c. Only the call that removes it closes its send
// channel, so the write pump exits exactly once.
func (b *Broker) unregister(c *conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.conns[c]; !ok {
		return
	}
	delete(b.conns, c)
	c.closed = true
	close(c.send)
}

// trySend queues data without blocking. Caller holds b.mu.
func (c *conn) trySend(data []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump reads frames until the socket fails or the client disconnects.
// The write pump closes the socket after flushing any final reply.
func (b *Broker) readPump(c *conn) {
	defer b.unregister(c)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if stomp.IsHeartbeat(data) {
			b.mu.Lock()
			b.heartbeats++
			b.mu.Unlock()
			continue
		}

		f, err := stomp.Decode(data)
		if err != nil {
			b.t.Logf("brokertest: dropping malformed frame: %v", err)
			continue
		}

		b.mu.Lock()
		b.received = append(b.received, Received{Conn: c.id, Frame: f})
		b.mu.Unlock()

		if !b.handleFrame(c, f) {
			return
		}
	}
}

// writePump writes queued frames and, when configured, heartbeats.
func (b *Broker) writePump(c *conn) {
	var ticker *time.Ticker
	var tick <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			if ticker == nil {
				if ticker = b.heartbeatTicker(); ticker != nil {
					tick = ticker.C
				}
			}
		case <-tick:
			if err := c.ws.WriteMessage(websocket.TextMessage, stomp.Heartbeat); err != nil {
				return
			}
		}
	}
}

// heartbeatTicker returns a ticker at the advertised send interval, or nil
// when heartbeats are off.
func (b *Broker) heartbeatTicker() *time.Ticker {
	b.mu.Lock()
	hb, send := b.heartBeat, b.sendBeats
	b.mu.Unlock()
	if !send || hb.Send <= 0 {
		return nil
	}
	return time.NewTicker(hb.Send)
}

// handleFrame applies one client frame. It returns false when the
// connection should close.
func (b *Broker) handleFrame(c *conn, f stomp.Frame) bool {
	switch f.Command {
	case stomp.CmdConnect, stomp.CmdStomp:
		return b.handleConnect(c)

	case stomp.CmdSubscribe:
		b.mu.Lock()
		c.subs[f.Header(stomp.HeaderID)] = f.Header(stomp.HeaderDestination)
		b.mu.Unlock()

	case stomp.CmdUnsubscribe:
		b.mu.Lock()
		delete(c.subs, f.Header(stomp.HeaderID))
		b.mu.Unlock()

	case stomp.CmdSend:
		var extra stomp.Headers
		if ct := f.Header(stomp.HeaderContentType); ct != "" {
			extra = append(extra, stomp.Header{Key: stomp.HeaderContentType, Value: ct})
		}
		b.mu.Lock()
		b.publishLocked(f.Header(stomp.HeaderDestination), f.Body, extra)
		b.mu.Unlock()

	case stomp.CmdDisconnect:
		b.mu.Lock()
		ignore := b.ignoreReceipt
		b.mu.Unlock()
		if id := f.Header(stomp.HeaderReceipt); id != "" && !ignore {
			b.reply(c, stomp.New(stomp.CmdReceipt, stomp.HeaderReceiptID, id))
		}
		return false
	}

	if id := f.Header(stomp.HeaderReceipt); id != "" && f.Command != stomp.CmdDisconnect {
		b.reply(c, stomp.New(stomp.CmdReceipt, stomp.HeaderReceiptID, id))
	}
	return true
}

// handleConnect answers a handshake with CONNECTED or ERROR.
func (b *Broker) handleConnect(c *conn) bool {
	b.mu.Lock()
	reject, delay, hb := b.rejectConnect, b.connectDelay, b.heartBeat
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if reject != "" {
		b.reply(c, stomp.New(stomp.CmdError, stomp.HeaderMessage, reject))
		return false
	}

	b.mu.Lock()
	b.connects++
	b.mu.Unlock()

	b.reply(c, stomp.New(stomp.CmdConnected,
		stomp.HeaderVersion, stomp.Version,
		stomp.HeaderServer, "brokertest",
		stomp.HeaderHeartBeat, hb.String(),
	))
	return true
}

func (b *Broker) reply(c *conn, f stomp.Frame) {
	data, err := stomp.Encode(f)
	if err != nil {
		b.t.Errorf("brokertest: encoding %s: %v", f.Command, err)
		return
	}
	b.mu.Lock()
	c.trySend(data)
	b.mu.Unlock()
}
