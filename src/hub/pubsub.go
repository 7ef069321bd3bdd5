package hub

import (
	"github.com/sosnet/realtime/src/types"
)

func (h *Hub) handleMessage(env types.Envelope) {
	h.mu.RLock()
	handler, ok := h.handlers[env.Event]
	h.mu.RUnlock()

	if !ok {
		h.logger.Debug().Str("event", env.Event).Msg("no handler")
		return
	}
	if err := handler(env.ClientID, env); err != nil {
		h.logger.Error().Err(err).Str("event", env.Event).Str("client_id", env.ClientID).Msg("handler error")
	}
}

// recipients resolves a target to client IDs.
func (h *Hub) recipients(t types.Target) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var set map[string]bool
	switch t.Kind {
	case types.TargetAll:
		ids := make([]string, 0, len(h.clients))
		for id := range h.clients {
			ids = append(ids, id)
		}
		return ids
	case types.TargetClient:
		if _, ok := h.clients[t.ClientID]; ok {
			return []string{t.ClientID}
		}
		return nil
	case types.TargetUser:
		set = h.users[t.UserID]
	case types.TargetRoom:
		set = h.rooms[t.Room]
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// deliver writes d to its local recipients and returns how many accepted it.
func (h *Hub) deliver(d types.Delivery) int {
	sent := 0
	for _, id := range h.recipients(d.Target) {
		h.mu.RLock()
		client, exists := h.clients[id]
		h.mu.RUnlock()
		if !exists {
			continue
		}
		if client.enqueue(d.Envelope) {
			sent++
		} else {
			h.logger.Warn().Str("client_id", id).Str("event", d.Envelope.Event).Msg("send buffer full, dropping")
		}
	}
	return sent
}

// publishToBridge forwards a delivery to the bridge if one is attached.
func (h *Hub) publishToBridge(d types.Delivery) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(d); err != nil {
		h.logger.Error().Err(err).Msg("bridge publish failed")
	}
}

// Publish queues d for local delivery and for the bridge.
func (h *Hub) Publish(d types.Delivery) {
	select {
	case h.broadcast <- d:
	case <-h.done:
	}
}

// route delivers from inside the event loop, where Publish would block.
func (h *Hub) route(d types.Delivery) {
	h.publishToBridge(d)
	h.deliver(d)
}

// reply sends an event straight to one client.
func (h *Hub) reply(clientID, event string, data any) {
	env, err := types.NewEnvelope(event, data)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("encode reply")
		return
	}
	h.SendToClient(clientID, env)
}

// Join adds a client to a room.
func (h *Hub) Join(room, clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return false
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]bool)
	}
	h.rooms[room][clientID] = true
	client.AddRoom(room)
	return true
}

// Leave removes a client from a room.
func (h *Hub) Leave(room, clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	delete(members, clientID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	if c, ok := h.clients[clientID]; ok {
		c.RemoveRoom(room)
	}
	return true
}

// Authenticate binds a connection to a user. A user may hold several
// connections at once.
func (h *Hub) Authenticate(clientID string, userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return false
	}
	if prev := client.UserID(); prev != 0 && prev != userID {
		if sessions := h.users[prev]; sessions != nil {
			delete(sessions, clientID)
			if len(sessions) == 0 {
				delete(h.users, prev)
			}
		}
	}
	if h.users[userID] == nil {
		h.users[userID] = make(map[string]bool)
	}
	h.users[userID][clientID] = true
	client.setUserID(userID)
	return true
}

// SendToClient sends an envelope directly to a specific client.
func (h *Hub) SendToClient(clientID string, env types.Envelope) bool {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return client.enqueue(env)
}
