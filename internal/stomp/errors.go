package stomp

import (
	"errors"
	"fmt"
)

// Domain-specific errors for frame encoding and decoding.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMalformedFrame is matched by every *DecodeError.
	ErrMalformedFrame = errors.New("stomp: malformed frame")

	// ErrUnknownCommand is returned when encoding a frame with an unsupported command.
	ErrUnknownCommand = errors.New("stomp: unknown command")

	// ErrMissingHeader is returned when a frame lacks a header its command requires.
	ErrMissingHeader = errors.New("stomp: missing required header")

	// ErrBodyNotAllowed is returned when a body is attached to a command that cannot carry one.
	ErrBodyNotAllowed = errors.New("stomp: body not allowed for command")

	// ErrInvalidHeader is returned when an unescaped header cannot be represented on the wire.
	ErrInvalidHeader = errors.New("stomp: invalid header")

	// ErrInvalidHeartBeat is returned when a heart-beat header value cannot be parsed.
	ErrInvalidHeartBeat = errors.New("stomp: invalid heart-beat header")
)

// DecodeError describes why and where a frame failed to decode.
type DecodeError struct {
	// Offset is the byte position in the input at which decoding stopped.
	Offset int

	// Reason is a short human-readable description of the fault.
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", ErrMalformedFrame, e.Offset, e.Reason)
}

// Is reports whether target is ErrMalformedFrame.
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformedFrame
}

func decodeErrorf(offset int, format string, args ...any) *DecodeError {
	return &DecodeError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
