package hub

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/sosnet/realtime/src/types"
	"golang.org/x/time/rate"
)

// MessageBridge publishes deliveries to other relay instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(d types.Delivery) error
	Available() bool
}

// Handler processes one inbound frame from a client.
type Handler func(clientID string, env types.Envelope) error

// Options tunes per-connection limits. Zero values take defaults.
type Options struct {
	SendBuffer      int
	FramesPerSecond float64
	FrameBurst      int
}

// Hub manages relay connections, user sessions and room membership.
type Hub struct {
	clients map[string]*Client
	rooms   map[string]map[string]bool // room -> set of clientIDs
	users   map[int64]map[string]bool  // userID -> set of clientIDs

	register   chan *Client
	unregister chan *Client
	incoming   chan types.Envelope
	broadcast  chan types.Delivery
	localCast  chan types.Delivery // deliveries from bridge, no re-publish

	handlers  map[string]Handler
	onConnect []func(string)
	onDisconn []func(string)

	opts   Options
	bridge MessageBridge
	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
	once   sync.Once
}

// New creates a Hub with the authenticate, join_room, leave_room and
// send_message handlers installed.
func New(opts Options, logger zerolog.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.FramesPerSecond <= 0 {
		opts.FramesPerSecond = 40
	}
	if opts.FrameBurst <= 0 {
		opts.FrameBurst = 80
	}
	h := &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]bool),
		users:      make(map[int64]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan types.Envelope, 256),
		broadcast:  make(chan types.Delivery, 256),
		localCast:  make(chan types.Delivery, 256),
		handlers:   make(map[string]Handler),
		opts:       opts,
		logger:     logger.With().Str("component", "hub").Logger(),
		done:       make(chan struct{}),
	}
	h.registerBuiltins()
	return h
}

// SetBridge attaches a cross-instance bridge. When set, published
// deliveries are also forwarded to other instances.
func (h *Hub) SetBridge(b MessageBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// BroadcastToLocal delivers a bridged delivery to local clients only.
// It does not re-publish to the bridge, preventing loops.
func (h *Hub) BroadcastToLocal(d types.Delivery) {
	select {
	case h.localCast <- d:
	case <-h.done:
	}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case env := <-h.incoming:
			h.handleMessage(env)
		case d := <-h.broadcast:
			h.publishToBridge(d)
			h.deliver(d)
		case d := <-h.localCast:
			h.deliver(d)
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop. Safe to call more than once.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(h.opts.FramesPerSecond), h.opts.FrameBurst)
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.logger.Info().Str("client_id", c.ID).Msg("client registered")
	h.reply(c.ID, types.EventConnectionEstablished, types.ConnectionEstablishedPayload{SID: c.ID})

	for _, cb := range h.onConnect {
		cb(c.ID)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)

	for room, members := range h.rooms {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if uid := c.UserID(); uid != 0 {
		if sessions := h.users[uid]; sessions != nil {
			delete(sessions, c.ID)
			if len(sessions) == 0 {
				delete(h.users, uid)
			}
		}
	}
	h.mu.Unlock()

	c.Close()
	h.logger.Info().Str("client_id", c.ID).Int64("user_id", c.UserID()).Msg("client unregistered")

	for _, cb := range h.onDisconn {
		cb(c.ID)
	}
}
