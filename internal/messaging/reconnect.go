package messaging

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/orderlink/internal/infrastructure/config"
)

// newBackOff builds the exponential policy for reconnect attempts.
// Attempts are unbounded; only Close stops the loop.
func newBackOff(cfg config.ReconnectConfig) *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.InitialDelay),
		backoff.WithMaxInterval(cfg.MaxDelay),
		backoff.WithMultiplier(cfg.Multiplier),
		backoff.WithRandomizationFactor(cfg.Jitter),
		backoff.WithMaxElapsedTime(0),
	)
}

// startReconnectLocked launches the reconnect loop unless one is running.
// The caller has already moved the state to Reconnecting.
func (c *Client) startReconnectLocked() {
	if c.reconnecting {
		return
	}
	c.reconnecting = true
	go c.reconnectLoop()
}

// reconnectLoop retries establish with backoff until a session is up or the
// client is closed. The running flag is cleared by activate on success, so
// a session lost right after reconnecting can start a fresh loop.
func (c *Client) reconnectLoop() {
	select {
	case <-time.After(c.cfg.Reconnect.InitialDelay):
	case <-c.ctx.Done():
		return
	}

	attempt := 0
	operation := func() error {
		if c.ctx.Err() != nil {
			return backoff.Permanent(ErrClosed)
		}
		attempt++
		c.stats.reconnectAttempts.Add(1)
		c.metrics.RecordReconnectAttempt(attempt)

		err := c.establish(c.ctx)
		if errors.Is(err, ErrCancelled) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		c.getLogger().Warn("reconnect attempt failed",
			"attempt", attempt,
			"retry_in", next,
			"error", err,
		)
	}

	b := backoff.WithContext(newBackOff(c.cfg.Reconnect), c.ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		c.getLogger().Debug("reconnect loop stopped", "error", err)
		return
	}

	c.stats.reconnects.Add(1)
	c.getLogger().Info("reconnected to broker", "attempts", attempt)
}
