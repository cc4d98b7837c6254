package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/orderlink/internal/infrastructure/config"
	"github.com/nerrad567/orderlink/internal/stomp"
)

// closeGracePeriod bounds the close handshake write on Close.
const closeGracePeriod = time.Second

// WebSocketDialer dials the broker's STOMP-over-WebSocket endpoint.
type WebSocketDialer struct {
	url            string
	header         http.Header
	dialer         websocket.Dialer
	writeTimeout   time.Duration
	maxMessageSize int64
}

// NewWebSocketDialer creates a dialer from the broker configuration.
//
// The handshake timeout is the broker connect timeout; the STOMP handshake
// that follows is bounded separately by the caller's context.
//
// Parameters:
//   - cfg: Broker configuration (URL, timeouts, frame size limit)
//
// Returns:
//   - *WebSocketDialer: Dialer negotiating the v12.stomp subprotocol
func NewWebSocketDialer(cfg config.BrokerConfig) *WebSocketDialer {
	return &WebSocketDialer{
		url:    cfg.URL,
		header: http.Header{},
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
			Subprotocols:     []string{stomp.Subprotocol},
		},
		writeTimeout:   cfg.WriteTimeout,
		maxMessageSize: cfg.MaxFrameSize,
	}
}

// SetHeader adds an HTTP header sent with the upgrade request.
func (d *WebSocketDialer) SetHeader(key, value string) {
	d.header.Set(key, value)
}

// Dial opens a WebSocket connection to the broker.
func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, d.url, d.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // body unused after upgrade
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %s: HTTP %d: %v", ErrDial, d.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrDial, d.url, err)
	}

	if d.maxMessageSize > 0 {
		ws.SetReadLimit(d.maxMessageSize)
	}

	return newWSConn(ws, d.writeTimeout), nil
}

// wsConn adapts a gorilla connection to Conn.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

func newWSConn(ws *websocket.Conn, writeTimeout time.Duration) *wsConn {
	return &wsConn{ws: ws, writeTimeout: writeTimeout}
}

func (c *wsConn) Read() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, translate(err)
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Write(data []byte) error {
	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return translate(err)
		}
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return translate(err)
	}
	return nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// translate maps gorilla and net errors onto the package sentinels.
func translate(err error) error {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		return fmt.Errorf("%w: %v", ErrMessageTooLarge, err)
	case errors.Is(err, net.ErrClosed), errors.Is(err, websocket.ErrCloseSent):
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
