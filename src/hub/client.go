package hub

import (
	"sync"
	"time"

	"github.com/sosnet/realtime/src/types"
	"golang.org/x/time/rate"
)

// Client wraps a relay connection and manages message flow.
type Client struct {
	ID          string
	conn        types.Conn
	hub         *Hub
	Send        chan types.Envelope
	connectedAt time.Time
	userID      int64
	rooms       map[string]bool
	limiter     *rate.Limiter
	mu          sync.RWMutex
	done        chan struct{}
	closed      bool
}

// NewClient creates a new connection wrapper.
func NewClient(id string, conn types.Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		hub:         h,
		Send:        make(chan types.Envelope, h.opts.SendBuffer),
		connectedAt: time.Now(),
		rooms:       make(map[string]bool),
		limiter:     h.newLimiter(),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	return types.ClientInfo{
		ID:          c.ID,
		UserID:      c.userID,
		ConnectedAt: c.connectedAt,
		Rooms:       rooms,
	}
}

// UserID returns the authenticated user, or 0.
func (c *Client) UserID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) setUserID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = id
}

// AddRoom records room membership.
func (c *Client) AddRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = true
}

// RemoveRoom drops room membership.
func (c *Client) RemoveRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

// ReadPump reads frames from the connection and routes them to the hub.
// Frames over the connection's rate limit are dropped.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		var env types.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		if !c.limiter.Allow() {
			c.hub.logger.Warn().Str("client_id", c.ID).Str("event", env.Event).Msg("rate limited, dropping frame")
			continue
		}
		env.ClientID = c.ID
		env.Timestamp = time.Now()
		select {
		case c.hub.incoming <- env:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump writes frames from the send channel to the connection.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case env, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// enqueue hands env to the write pump without blocking.
func (c *Client) enqueue(env types.Envelope) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}
