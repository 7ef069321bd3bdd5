package socket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sosnet/realtime/src/types"
)

var errReconnectDisabled = errors.New("reconnection disabled")

// run owns one Connect call: it dials, serves the connection until it drops,
// and redials until the retry budget is spent or ctx is cancelled.
func (m *Manager) run(ctx context.Context, gen uint64) {
	defer m.release(gen)

	initial := true
	for {
		conn, err := m.dial(ctx, initial)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn().Err(err).Msg("giving up on socket connection")
			}
			return
		}
		initial = false

		m.serve(ctx, conn)
		if ctx.Err() != nil {
			m.logger.Debug().Msg("connect context done")
			return
		}

		m.mu.Lock()
		if m.gen == gen {
			m.state = StateReconnecting
		}
		m.mu.Unlock()
		m.logger.Info().Msg("connection lost, reconnecting")
	}
}

// dial tries the socket URL. The first connection gets one immediate try
// plus ReconnectAttempts retries; a reconnect gets ReconnectAttempts tries.
// Every retry waits the fixed ReconnectDelay first.
func (m *Manager) dial(ctx context.Context, initial bool) (types.Conn, error) {
	tries := m.opts.ReconnectAttempts
	if initial {
		tries++
	}

	var lastErr error
	for i := 0; i < tries; i++ {
		if i > 0 || !initial {
			timer := time.NewTimer(m.opts.ReconnectDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		conn, err := m.dialer.Dial(ctx, m.opts.URL)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		m.logger.Debug().Err(err).Int("attempt", i+1).Msg("dial failed")
	}

	if lastErr == nil {
		lastErr = errReconnectDisabled
	}
	return nil, fmt.Errorf("dial %s after %d attempts: %w", m.opts.URL, tries, lastErr)
}

// release returns the manager to disconnected when the run for gen ends,
// unless a later Connect or Disconnect already took over.
func (m *Manager) release(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.conn = nil
	m.send = nil
	m.state = StateDisconnected
}
