package transport

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ReconnectPolicy bounds how an unexpectedly closed connection is re-established.
// MaxAttempts of 0 disables reconnection.
type ReconnectPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Enabled reports whether the policy allows any reconnect attempt
func (p ReconnectPolicy) Enabled() bool {
	return p.MaxAttempts > 0
}

const defaultMaxInterval = 30 * time.Second

func (p ReconnectPolicy) initialInterval() time.Duration {
	if p.InitialInterval > 0 {
		return p.InitialInterval
	}
	return backoff.DefaultInitialInterval
}

// stableAfter is how long a connection must stay up before the attempt budget is restored
func (p ReconnectPolicy) stableAfter() time.Duration {
	if p.MaxInterval > 0 {
		return p.MaxInterval
	}
	return defaultMaxInterval
}

func (p ReconnectPolicy) backOff(ctx context.Context, attempts int) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval()
	eb.MaxInterval = p.stableAfter()
	eb.MaxElapsedTime = 0
	eb.Reset()

	// the first attempt is not a retry
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// redial waits InitialInterval and then re-establishes the connection with exponential
// backoff, making at most attempts dials. It returns how many dials were made.
func (t *WebSocketTransport) redial(attempts int) (*websocket.Conn, int, error) {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()

	wait := time.NewTimer(t.cfg.Reconnect.initialInterval())
	defer wait.Stop()
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-wait.C:
	}

	attempt := 0
	operation := func() (*websocket.Conn, error) {
		attempt++
		ws, err := t.dial(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return ws, err
	}

	notify := func(err error, wait time.Duration) {
		t.logger.Warn("Reconnect attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("remaining", attempts-attempt),
			zap.Duration("retryIn", wait),
			zap.Error(err))
	}

	ws, err := backoff.RetryNotifyWithData(operation, t.cfg.Reconnect.backOff(ctx, attempts), notify)
	return ws, attempt, err
}
