package stomp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HeartBeat is the pair carried in the heart-beat header. For a client,
// Send is the smallest interval at which it can send keepalives and Receive
// is the interval at which it wants to hear from the peer. Zero disables
// that direction.
type HeartBeat struct {
	Send    time.Duration
	Receive time.Duration
}

// String formats h as the header value "cx,cy" in milliseconds.
func (h HeartBeat) String() string {
	return fmt.Sprintf("%d,%d", h.Send.Milliseconds(), h.Receive.Milliseconds())
}

// ParseHeartBeat parses a heart-beat header value. An empty value means "0,0".
func ParseHeartBeat(value string) (HeartBeat, error) {
	if value == "" {
		return HeartBeat{}, nil
	}
	sx, sy, ok := strings.Cut(value, ",")
	if !ok {
		return HeartBeat{}, fmt.Errorf("%w: %q", ErrInvalidHeartBeat, value)
	}
	send, err := strconv.ParseUint(strings.TrimSpace(sx), 10, 32)
	if err != nil {
		return HeartBeat{}, fmt.Errorf("%w: %q", ErrInvalidHeartBeat, value)
	}
	recv, err := strconv.ParseUint(strings.TrimSpace(sy), 10, 32)
	if err != nil {
		return HeartBeat{}, fmt.Errorf("%w: %q", ErrInvalidHeartBeat, value)
	}
	return HeartBeat{
		Send:    time.Duration(send) * time.Millisecond,
		Receive: time.Duration(recv) * time.Millisecond,
	}, nil
}

// Negotiate combines our offer with the peer's and returns the intervals
// actually in force: outgoing is how often we must send, incoming is how
// often the peer will send. Either is zero when that direction is disabled.
func Negotiate(ours, theirs HeartBeat) (outgoing, incoming time.Duration) {
	if ours.Send > 0 && theirs.Receive > 0 {
		outgoing = max(ours.Send, theirs.Receive)
	}
	if ours.Receive > 0 && theirs.Send > 0 {
		incoming = max(ours.Receive, theirs.Send)
	}
	return outgoing, incoming
}
