package messaging

import (
	"fmt"
	"time"

	"github.com/nerrad567/orderlink/internal/stomp"
)

// silenceDeadline is how long the peer may stay silent before the session
// is considered dead.
func silenceDeadline(incoming time.Duration, tolerance float64) time.Duration {
	if incoming <= 0 {
		return 0
	}
	if tolerance < 1 {
		tolerance = 1
	}
	return time.Duration(float64(incoming) * tolerance)
}

// heartBeatOffer is the heart-beat header value this client sends in CONNECT.
func (c *Client) heartBeatOffer() stomp.HeartBeat {
	return stomp.HeartBeat{
		Send:    c.cfg.Heartbeat.Outgoing,
		Receive: c.cfg.Heartbeat.Incoming,
	}
}

// writeLoop is the only goroutine writing to the socket. Besides queued
// frames it sends an EOL keepalive whenever the socket has been idle for
// half the negotiated outgoing interval.
func (s *session) writeLoop() {
	var tick <-chan time.Time
	if s.outgoing > 0 {
		ticker := time.NewTicker(s.outgoing / 2)
		defer ticker.Stop()
		tick = ticker.C
	}
	lastWrite := time.Now()

	for {
		select {
		case <-s.done:
			s.failQueued()
			return

		case <-s.wake:
			for {
				o, ok := s.pop()
				if !ok {
					break
				}
				if err := s.write(o); err != nil {
					wrapped := fmt.Errorf("%w: write: %w", ErrSend, err)
					o.complete(wrapped)
					s.client.getLogger().Error("broker write failed", "error", err)
					s.fail(fmt.Errorf("%w: %w", ErrConnection, wrapped))
					s.failQueued()
					return
				}
				o.complete(nil)
				lastWrite = time.Now()
			}

		case <-tick:
			if time.Since(lastWrite) < s.outgoing/2 {
				continue
			}
			if err := s.conn.Write(stomp.Heartbeat); err != nil {
				s.fail(fmt.Errorf("%w: heartbeat write: %w", ErrConnection, err))
				s.failQueued()
				return
			}
			lastWrite = time.Now()
		}
	}
}

// watchLoop ends the session when nothing, not even a heartbeat, has been
// read within the silence deadline.
func (s *session) watchLoop() {
	if s.deadline <= 0 {
		return
	}
	ticker := time.NewTicker(max(s.deadline/4, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			silent := time.Since(time.Unix(0, s.lastRead.Load()))
			if silent > s.deadline {
				s.fail(fmt.Errorf("%w: no traffic for %v", ErrHeartbeatTimeout, silent.Round(time.Millisecond)))
				return
			}
		}
	}
}
