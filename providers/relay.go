package providers

import (
	"context"
	"fmt"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/sosnet/realtime/config"
	"github.com/sosnet/realtime/src/bridge"
	"github.com/sosnet/realtime/src/hub"
	"github.com/sosnet/realtime/src/service"
	"github.com/valyala/fasthttp"
)

// Relay is the realtime relay server: hub, emit service, optional Redis
// bridge and the HTTP surface.
type Relay struct {
	cfg      *config.RelayConfig
	hub      *hub.Hub
	service  *service.Service
	bridge   bridge.Bridge
	app      *fiber.App
	upgrader websocket.FastHTTPUpgrader
	logger   zerolog.Logger
}

// NewRelay builds a relay. Call Start before serving.
func NewRelay(cfg *config.RelayConfig, logger zerolog.Logger) *Relay {
	if cfg == nil {
		cfg = config.DefaultRelayConfig()
	}
	h := hub.New(hub.Options{
		SendBuffer:      cfg.SendBuffer,
		FramesPerSecond: float64(cfg.FramesPerSecond),
		FrameBurst:      cfg.FrameBurst,
	}, logger)

	r := &Relay{
		cfg:     cfg,
		hub:     h,
		service: service.New(h, logger),
		app:     fiber.New(),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(*fasthttp.RequestCtx) bool { return true },
		},
		logger: logger.With().Str("component", "relay").Logger(),
	}
	r.RegisterRoutes(r.app)
	return r
}

// Start runs the hub event loop and, when enabled, the Redis bridge.
func (r *Relay) Start() {
	go r.hub.Run()
	if r.cfg.EnableBridge {
		r.initBridge()
	}
	r.logger.Info().Msg("relay started")
}

// initBridge tries to start the Redis pub/sub bridge.
// If Redis is not reachable, the relay runs in standalone mode.
func (r *Relay) initBridge() {
	cfg, err := bridge.LoadRedisConfig()
	if err != nil {
		r.logger.Warn().Err(err).Msg("invalid redis config, running standalone")
		return
	}
	rb := bridge.NewRedisBridge(cfg, r.hub, r.logger)

	if err := rb.Start(); err != nil {
		r.logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		_ = rb.Stop()
		return
	}

	r.bridge = rb
	r.hub.SetBridge(rb)
	r.logger.Info().Str("redis_addr", cfg.Addr).Msg("redis bridge connected")
}

// Stop stops the bridge and the hub event loop.
func (r *Relay) Stop() {
	if r.bridge != nil {
		if err := r.bridge.Stop(); err != nil {
			r.logger.Error().Err(err).Msg("bridge stop error")
		}
		r.bridge = nil
	}
	r.hub.Stop()
}

// Service exposes the emit API for in-process backends.
func (r *Relay) Service() *service.Service { return r.service }

// Handler routes /ws to the websocket upgrade and everything else to fiber.
func (r *Relay) Handler() fasthttp.RequestHandler {
	ws := r.FastHTTPHandler()
	routes := r.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			ws(ctx)
			return
		}
		routes(ctx)
	}
}

// ListenAndServe serves until ctx is cancelled.
func (r *Relay) ListenAndServe(ctx context.Context) error {
	srv := &fasthttp.Server{
		Handler:      r.Handler(),
		Name:         "sosnet-relay",
		WriteTimeout: r.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(r.cfg.Addr) }()
	r.logger.Info().Str("addr", r.cfg.Addr).Msg("listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", r.cfg.Addr, err)
	case <-ctx.Done():
		if err := srv.Shutdown(); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
