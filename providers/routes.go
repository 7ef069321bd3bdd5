package providers

import (
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/sosnet/realtime/src/hub"
	"github.com/valyala/fasthttp"
)

// RegisterRoutes registers the info and admin routes via Fiber.
// The websocket upgrade uses FastHTTPHandler, registered at the server
// level since Fiber v3 does not expose *fasthttp.RequestCtx.
func (r *Relay) RegisterRoutes(group fiber.Router) {
	group.Get("/ws/info", r.handleInfo)
	group.Get("/ws/clients", r.handleClients)
	group.Get("/ws/rooms", r.handleRooms)
	group.Post("/events/:event", r.handlePush)
}

func (r *Relay) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  "/ws",
		"clients":   r.hub.ClientCount(),
		"users":     r.hub.UserCount(),
		"rooms":     len(r.hub.Rooms()),
		"bridge":    r.bridge != nil && r.bridge.Available(),
	})
}

// FastHTTPHandler returns a raw fasthttp handler for websocket upgrades.
func (r *Relay) FastHTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}
		if r.cfg.MaxConnections > 0 && r.hub.ClientCount() >= r.cfg.MaxConnections {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			ctx.SetBodyString(`{"error":"capacity","message":"too many connections"}`)
			return
		}

		clientID := uuid.New().String()
		h := r.hub
		timeout := r.cfg.WriteTimeout

		err := r.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			client := hub.NewClient(clientID, &fasthttpConn{conn: conn, writeTimeout: timeout}, h)
			h.Register(client)
			go client.WritePump()
			client.ReadPump()
		})
		if err != nil {
			r.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type fasthttpConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (f *fasthttpConn) WriteJSON(v any) error {
	if f.writeTimeout > 0 {
		if err := f.conn.SetWriteDeadline(time.Now().Add(f.writeTimeout)); err != nil {
			return err
		}
	}
	return f.conn.WriteJSON(v)
}

func (f *fasthttpConn) ReadJSON(v any) error { return f.conn.ReadJSON(v) }
func (f *fasthttpConn) Close() error         { return f.conn.Close() }
