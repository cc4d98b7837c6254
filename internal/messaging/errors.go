package messaging

import (
	"errors"
	"fmt"
)

// Domain-specific errors for messaging operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnection is returned when the broker connection cannot be
	// established or was lost. The client keeps retrying in the background.
	ErrConnection = errors.New("messaging: connection failed")

	// ErrSend is returned when a frame could not be written while connected.
	// The send is not retried.
	ErrSend = errors.New("messaging: send failed")

	// ErrCancelled is returned to Connect and Send callers still waiting when
	// Close is called.
	ErrCancelled = errors.New("messaging: cancelled by close")

	// ErrConsumer wraps errors and panics raised by subscription handlers.
	// It is only ever logged.
	ErrConsumer = errors.New("messaging: consumer failed")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("messaging: client closed")

	// ErrNotConnected is returned by HealthCheck when no session is active.
	ErrNotConnected = errors.New("messaging: not connected")

	// ErrInvalidDestination is returned for empty or malformed destinations.
	ErrInvalidDestination = errors.New("messaging: invalid destination")

	// ErrNilHandler is returned when Subscribe is called without a handler.
	ErrNilHandler = errors.New("messaging: handler cannot be nil")
)

// Connection failures with a specific cause. Both match ErrConnection.
var (
	// ErrHeartbeatTimeout is the cause when no inbound traffic arrived within
	// the negotiated deadline.
	ErrHeartbeatTimeout = fmt.Errorf("%w: heartbeat timeout", ErrConnection)

	// ErrBrokerError is the cause when the broker sent an ERROR frame.
	ErrBrokerError = fmt.Errorf("%w: broker error", ErrConnection)
)
