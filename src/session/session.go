// Package session holds the per-login context: identity, router, socket
// manager and REST client. Views receive a *Session instead of reaching for
// process-wide singletons.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sosnet/realtime/config"
	"github.com/sosnet/realtime/src/api"
	"github.com/sosnet/realtime/src/router"
	"github.com/sosnet/realtime/src/socket"
	"github.com/sosnet/realtime/src/types"
	"github.com/valyala/fasthttp"
)

// Navigator moves the user between screens.
type Navigator interface {
	ToLogin()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

// ToLogin calls f.
func (f NavigatorFunc) ToLogin() { f() }

// Options configures a Session. Dialer and HTTPClient are optional.
type Options struct {
	Config     *config.ClientConfig
	Store      Store
	Navigator  Navigator
	Dialer     socket.Dialer
	HTTPClient *fasthttp.Client
}

// Session is one authenticated user's connection context.
type Session struct {
	store  Store
	nav    Navigator
	logger zerolog.Logger

	mu    sync.RWMutex
	creds Credentials

	router *router.Router
	socket *socket.Manager
	api    *api.Client

	startOnce  sync.Once
	closeOnce  sync.Once
	expireOnce sync.Once
}

// New restores the stored login and builds the session's collaborators.
func New(opts Options, logger zerolog.Logger) (*Session, error) {
	if opts.Store == nil {
		return nil, errors.New("session: store is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultClientConfig()
	}

	creds, err := opts.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}

	s := &Session{
		store:  opts.Store,
		nav:    opts.Navigator,
		creds:  *creds,
		logger: logger.With().Str("component", "session").Int64("user_id", creds.User.ID).Logger(),
	}

	s.router = router.New(logger)

	dialer := opts.Dialer
	if dialer == nil {
		dialer = socket.NewWebsocketDialer(cfg.RequestTimeout, creds.AccessToken)
	}
	s.socket = socket.New(socket.Options{
		URL:               cfg.SocketURL,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
	}, dialer, s.router, logger)
	if creds.User.Role == types.RoleAdmin {
		// Membership does not survive a reconnect, so rejoin on every open.
		s.socket.OnOpen(func() { s.socket.JoinRoom(types.AdminRoom) })
	}

	s.api = api.New(api.Options{
		BaseURL:        cfg.APIURL,
		Timeout:        cfg.RequestTimeout,
		Tokens:         s,
		OnUnauthorized: s.Expire,
		HTTPClient:     opts.HTTPClient,
	}, logger)

	return s, nil
}

// Start runs the router and connects the socket. Admin sessions join the
// admin room each time the socket opens. Safe to call repeatedly.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.router.Run()
	})
	s.socket.Connect(ctx, s.User().ID)
}

// Close disconnects the socket and stops event delivery.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.socket.Disconnect()
		s.router.Stop()
	})
}

// Expire ends the session after the backend rejected its token: stored
// credentials are cleared and the user is sent to the login screen.
// Only the first call has any effect.
func (s *Session) Expire() {
	s.expireOnce.Do(func() {
		s.logger.Warn().Msg("session expired")
		if err := s.store.Clear(); err != nil {
			s.logger.Error().Err(err).Msg("failed to clear credentials")
		}
		s.mu.Lock()
		s.creds.AccessToken = ""
		s.creds.RefreshToken = ""
		s.mu.Unlock()
		s.Close()
		if s.nav != nil {
			s.nav.ToLogin()
		}
	})
}

// OnRefresh calls fn whenever a user is updated or deleted. The returned
// func removes the subscription.
func (s *Session) OnRefresh(fn func()) func() {
	sub := router.NewSubscription(func(router.Event) { fn() })
	s.router.On(types.EventUserUpdated, sub)
	s.router.On(types.EventUserDeleted, sub)
	return func() {
		s.router.Off(types.EventUserUpdated, sub)
		s.router.Off(types.EventUserDeleted, sub)
	}
}

// AccessToken implements api.TokenSource.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken
}

// User returns the signed-in user.
func (s *Session) User() types.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.User
}

// Identity returns the user id and role of the session.
func (s *Session) Identity() types.Identity {
	u := s.User()
	return types.Identity{UserID: u.ID, Role: u.Role}
}

// Router, Socket and API expose the session's collaborators to views.
func (s *Session) Router() *router.Router  { return s.router }
func (s *Session) Socket() *socket.Manager { return s.socket }
func (s *Session) API() *api.Client        { return s.api }
