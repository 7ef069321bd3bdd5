package hub

import (
	"fmt"

	"github.com/sosnet/realtime/src/types"
)

func (h *Hub) registerBuiltins() {
	h.handlers[types.EventAuthenticate] = h.handleAuthenticate
	h.handlers[types.EventJoinRoom] = h.handleJoinRoom
	h.handlers[types.EventLeaveRoom] = h.handleLeaveRoom
	h.handlers[types.EventSendMessage] = h.handleSendMessage
}

func (h *Hub) handleAuthenticate(clientID string, env types.Envelope) error {
	var p types.AuthenticatePayload
	if err := env.Decode(&p); err != nil {
		return fmt.Errorf("decode authenticate: %w", err)
	}
	if p.UserID <= 0 {
		return fmt.Errorf("authenticate: invalid user id %d", p.UserID)
	}
	if !h.Authenticate(clientID, p.UserID) {
		return fmt.Errorf("authenticate: client %s not found", clientID)
	}
	h.logger.Info().Str("client_id", clientID).Int64("user_id", p.UserID).Msg("client authenticated")
	h.reply(clientID, types.EventAuthenticated, p)
	return nil
}

func (h *Hub) handleJoinRoom(clientID string, env types.Envelope) error {
	var p types.RoomPayload
	if err := env.Decode(&p); err != nil {
		return fmt.Errorf("decode join_room: %w", err)
	}
	if p.Room == "" {
		return nil
	}
	if !h.Join(p.Room, clientID) {
		return fmt.Errorf("join_room: client %s not found", clientID)
	}
	h.logger.Debug().Str("client_id", clientID).Str("room", p.Room).Msg("joined room")
	h.reply(clientID, types.EventJoinedRoom, p)
	return nil
}

func (h *Hub) handleLeaveRoom(clientID string, env types.Envelope) error {
	var p types.RoomPayload
	if err := env.Decode(&p); err != nil {
		return fmt.Errorf("decode leave_room: %w", err)
	}
	if p.Room == "" {
		return nil
	}
	h.Leave(p.Room, clientID)
	h.logger.Debug().Str("client_id", clientID).Str("room", p.Room).Msg("left room")
	h.reply(clientID, types.EventLeftRoom, p)
	return nil
}

// handleSendMessage forwards a message to every connection of the
// recipient. A room, when given, takes over if the recipient has no local
// connection; without a room the delivery still goes out to the bridge.
func (h *Hub) handleSendMessage(_ string, env types.Envelope) error {
	var p types.SendMessagePayload
	if err := env.Decode(&p); err != nil {
		return fmt.Errorf("decode send_message: %w", err)
	}
	out, err := types.NewEnvelope(types.EventNewMessage, p.Message)
	if err != nil {
		return fmt.Errorf("encode new_message: %w", err)
	}

	switch {
	case p.RecipientID != 0 && (p.Room == "" || h.UserOnline(p.RecipientID)):
		h.route(types.Delivery{Target: types.ToUser(p.RecipientID), Envelope: out})
	case p.Room != "":
		h.route(types.Delivery{Target: types.ToRoom(p.Room), Envelope: out})
	default:
		h.logger.Debug().Msg("send_message without recipient or room")
	}
	return nil
}
