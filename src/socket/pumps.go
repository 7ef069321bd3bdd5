package socket

import (
	"context"
	"time"

	"github.com/sosnet/realtime/src/router"
	"github.com/sosnet/realtime/src/types"
)

// serve runs one open connection until it drops or ctx is cancelled.
func (m *Manager) serve(ctx context.Context, conn types.Conn) {
	send := make(chan types.Envelope, m.opts.SendBuffer)

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	// authenticate is queued before the state flips so it is the first frame.
	if m.userID != 0 {
		env, err := types.NewEnvelope(types.EventAuthenticate, types.AuthenticatePayload{UserID: m.userID})
		if err == nil {
			send <- env
		}
	}
	m.conn = conn
	m.send = send
	m.state = StateConnected
	userID := m.userID
	hooks := append([]func(){}, m.onOpen...)
	m.mu.Unlock()

	m.logger.Info().Int64("user_id", userID).Msg("socket connected")
	for _, fn := range hooks {
		fn()
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.writeLoop(connCtx, conn, send)
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	m.readLoop(connCtx, conn)

	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		m.send = nil
	}
	m.mu.Unlock()
}

// readLoop reads frames and hands bound events to the router.
func (m *Manager) readLoop(ctx context.Context, conn types.Conn) {
	for {
		var env types.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil {
				m.logger.Info().Err(err).Msg("socket read failed")
			}
			return
		}
		m.handleFrame(env)
	}
}

func (m *Manager) handleFrame(env types.Envelope) {
	switch env.Event {
	case types.EventConnectionEstablished:
		var p types.ConnectionEstablishedPayload
		_ = env.Decode(&p)
		m.logger.Debug().Str("sid", p.SID).Msg("connection established")
	case types.EventAuthenticated:
		var p types.AuthenticatePayload
		_ = env.Decode(&p)
		m.logger.Debug().Int64("user_id", p.UserID).Msg("authenticated")
	}

	if !m.isBound(env.Event) {
		m.logger.Debug().Str("event", env.Event).Msg("no listener")
		return
	}
	m.router.Deliver(router.Event{
		Name:       env.Event,
		Data:       env.Data,
		ReceivedAt: time.Now(),
	})
}

// writeLoop is the only writer on conn.
func (m *Manager) writeLoop(ctx context.Context, conn types.Conn, send <-chan types.Envelope) {
	for {
		select {
		case env := <-send:
			if err := conn.WriteJSON(env); err != nil {
				m.logger.Info().Err(err).Str("event", env.Event).Msg("socket write failed")
				_ = conn.Close()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
