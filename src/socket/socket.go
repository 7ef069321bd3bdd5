// Package socket owns the realtime connection of a session: dialing with a
// bounded reconnect policy, the authenticate handshake, serialized writes,
// and the single transport listener per event name that feeds the router.
package socket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sosnet/realtime/src/router"
	"github.com/sosnet/realtime/src/types"
)

var (
	// ErrNotConnected is returned by Emit when no live transport exists.
	ErrNotConnected = errors.New("socket not connected")
	// ErrSendBufferFull is returned by Emit when the write loop is saturated.
	ErrSendBufferFull = errors.New("socket send buffer full")
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Options configures a Manager.
type Options struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	SendBuffer        int
}

func (o *Options) defaults() {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.ReconnectAttempts < 0 {
		o.ReconnectAttempts = 0
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
}

// Manager maintains at most one live connection tagged with the user's identity.
type Manager struct {
	opts   Options
	dialer Dialer
	router *router.Router
	logger zerolog.Logger

	mu     sync.Mutex
	state  State
	conn   types.Conn
	send   chan types.Envelope
	userID int64
	cancel context.CancelFunc
	gen    uint64
	bound  map[string]bool
	onOpen []func()
}

// New creates a manager that delivers incoming events into r and registers
// itself as r's transport binder.
func New(opts Options, dialer Dialer, r *router.Router, logger zerolog.Logger) *Manager {
	opts.defaults()
	m := &Manager{
		opts:   opts,
		dialer: dialer,
		router: r,
		logger: logger.With().Str("component", "socket").Logger(),
		state:  StateDisconnected,
		bound:  make(map[string]bool),
	}
	r.SetBinder(m)
	return m
}

// Connect ensures a connection exists. While a connection is live or being
// established it returns without dialing or authenticating again. Otherwise
// it starts dialing in the background; once open, and on every reopen, it
// sends authenticate carrying userID when userID is non-zero. Dial failures
// are retried per Options and then given up silently.
func (m *Manager) Connect(ctx context.Context, userID int64) {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.state = StateConnecting
	m.userID = userID
	m.cancel = cancel
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	m.logger.Debug().Str("url", m.opts.URL).Int64("user_id", userID).Msg("connecting")
	go m.run(runCtx, gen)
}

// OnOpen registers fn to run after every successful open, once authenticate
// is queued. Emit works from inside fn.
func (m *Manager) OnOpen(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOpen = append(m.onOpen, fn)
}

// Disconnect tears down the connection and clears every subscription on
// the router. It is a full reset, not a selective unsubscribe.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	// cancel under the lock so serve cannot publish a connection after this.
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++
	conn := m.conn
	m.conn = nil
	m.send = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		m.logger.Info().Msg("socket disconnected")
	}
	m.router.Clear()
}

// IsConnected reports whether a live transport exists.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Emit queues an event for the server.
func (m *Manager) Emit(event string, data any) error {
	env, err := types.NewEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	m.mu.Lock()
	send := m.send
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || send == nil {
		return ErrNotConnected
	}
	select {
	case send <- env:
		return nil
	default:
		m.logger.Warn().Str("event", event).Msg("send buffer full, dropping")
		return ErrSendBufferFull
	}
}

// Bind attaches the transport listener for event.
func (m *Manager) Bind(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bound[event] = true
}

// Unbind detaches the transport listener for event.
func (m *Manager) Unbind(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bound, event)
}

func (m *Manager) isBound(event string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bound[event]
}
