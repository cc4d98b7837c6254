package transport

import (
	"context"
	"errors"
)

// Domain-specific errors for transport operations.
var (
	// ErrDial is returned when the socket cannot be opened.
	ErrDial = errors.New("transport: dial failed")

	// ErrClosed is returned by Read and Write after the connection is closed
	// by either side.
	ErrClosed = errors.New("transport: connection closed")

	// ErrMessageTooLarge is returned by Read when the peer sent more than the
	// configured maximum.
	ErrMessageTooLarge = errors.New("transport: message too large")
)

// Conn is a bidirectional message socket.
type Conn interface {
	// Read blocks until the next message arrives or the connection fails.
	Read() ([]byte, error)

	// Write sends one message. Only one goroutine may call Write at a time.
	Write(data []byte) error

	// Close releases the socket and unblocks pending Read and Write calls.
	// It is safe to call more than once.
	Close() error
}

// Dialer opens new connections to the broker.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}
