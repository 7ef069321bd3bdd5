package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sosnet/realtime/src/hub"
	"github.com/sosnet/realtime/src/types"
)

// ErrUnknownEvent rejects pushes for events clients do not understand.
var ErrUnknownEvent = errors.New("unknown event")

// pushable lists the server-to-client events the backend may push.
var pushable = map[string]bool{
	types.EventNewMessage:             true,
	types.EventUserUpdated:            true,
	types.EventUserDeleted:            true,
	types.EventSOSCreated:             true,
	types.EventIncidentCreated:        true,
	types.EventTaskAssigned:           true,
	types.EventTaskUpdated:            true,
	types.EventBroadcastMessage:       true,
	types.EventUserLocationUpdated:    true,
	types.EventVolunteerStatusChanged: true,
}

// Service is the emit API the platform backend uses to reach clients.
type Service struct {
	hub    *hub.Hub
	logger zerolog.Logger
}

// New creates a service backed by the given hub.
func New(h *hub.Hub, logger zerolog.Logger) *Service {
	return &Service{hub: h, logger: logger.With().Str("component", "service").Logger()}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// Emit queues event for target.
func (s *Service) Emit(target types.Target, event string, data any) error {
	env, err := types.NewEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	s.hub.Publish(types.Delivery{Target: target, Envelope: env})
	s.logger.Debug().Str("event", event).Str("target", string(target.Kind)).Msg("emitted")
	return nil
}

func (s *Service) emitUsers(event string, data any, userIDs []int64) error {
	seen := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		if err := s.Emit(types.ToUser(id), event, data); err != nil {
			return err
		}
	}
	return nil
}

// PublishMessage fans a persisted message out as new_message to its sender,
// its recipient and any extra participants (task members). Broadcast
// messages go to everyone as broadcast_message.
func (s *Service) PublishMessage(msg types.ChatMessage, participants ...int64) error {
	if msg.IsBroadcast {
		return s.Broadcast(msg)
	}
	users := append([]int64{msg.SenderID}, participants...)
	if msg.RecipientID != nil {
		users = append(users, *msg.RecipientID)
	}
	return s.emitUsers(types.EventNewMessage, msg, users)
}

// SOSCreated notifies everyone of a new SOS request.
func (s *Service) SOSCreated(data any) error {
	return s.Emit(types.ToAll(), types.EventSOSCreated, data)
}

// IncidentCreated notifies everyone of a new incident report.
func (s *Service) IncidentCreated(data any) error {
	return s.Emit(types.ToAll(), types.EventIncidentCreated, data)
}

// TaskAssigned notifies the assigned volunteer.
func (s *Service) TaskAssigned(data any, volunteerID int64) error {
	return s.emitUsers(types.EventTaskAssigned, data, []int64{volunteerID})
}

// TaskUpdated notifies every user involved in the task.
func (s *Service) TaskUpdated(data any, userIDs ...int64) error {
	return s.emitUsers(types.EventTaskUpdated, data, userIDs)
}

// Broadcast sends an admin broadcast to everyone.
func (s *Service) Broadcast(data any) error {
	return s.Emit(types.ToAll(), types.EventBroadcastMessage, data)
}

// UserLocationUpdated tells dispatchers where a user is.
func (s *Service) UserLocationUpdated(data any) error {
	return s.Emit(types.ToRoom(types.AdminRoom), types.EventUserLocationUpdated, data)
}

// VolunteerStatusChanged notifies everyone of availability changes.
func (s *Service) VolunteerStatusChanged(data any) error {
	return s.Emit(types.ToAll(), types.EventVolunteerStatusChanged, data)
}

// UserUpdated refreshes dispatcher user lists.
func (s *Service) UserUpdated(data any) error {
	return s.Emit(types.ToRoom(types.AdminRoom), types.EventUserUpdated, data)
}

// UserDeleted refreshes dispatcher user lists.
func (s *Service) UserDeleted(data any) error {
	return s.Emit(types.ToRoom(types.AdminRoom), types.EventUserDeleted, data)
}

// PushRequest is a backend push of a raw event payload. UserIDs win over
// Room; with neither the event goes to everyone.
type PushRequest struct {
	Data    json.RawMessage `json:"data"`
	UserIDs []int64         `json:"user_ids,omitempty"`
	Room    string          `json:"room,omitempty"`
}

// Push emits a backend-supplied event.
func (s *Service) Push(event string, req PushRequest) error {
	if !pushable[event] {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	switch {
	case len(req.UserIDs) > 0:
		return s.emitUsers(event, req.Data, req.UserIDs)
	case req.Room != "":
		return s.Emit(types.ToRoom(req.Room), event, req.Data)
	default:
		return s.Emit(types.ToAll(), event, req.Data)
	}
}

// JoinRoom adds a client to a room from the server side.
func (s *Service) JoinRoom(room, clientID string) error {
	if ok := s.hub.Join(room, clientID); !ok {
		return fmt.Errorf("client %s not found", clientID)
	}
	s.logger.Debug().
		Str("client_id", clientID).
		Str("room", room).
		Msg("joined")
	return nil
}

// LeaveRoom removes a client from a room.
func (s *Service) LeaveRoom(room, clientID string) error {
	if ok := s.hub.Leave(room, clientID); !ok {
		return fmt.Errorf("room %s or client %s not found", room, clientID)
	}
	s.logger.Debug().
		Str("client_id", clientID).
		Str("room", room).
		Msg("left")
	return nil
}

// OnConnection registers a callback for new connections.
func (s *Service) OnConnection(cb func(clientID string)) {
	s.hub.OnConnection(cb)
}

// OnDisconnection registers a callback for disconnections.
func (s *Service) OnDisconnection(cb func(clientID string)) {
	s.hub.OnDisconnection(cb)
}

// GetConnectedClients returns IDs of all connected clients.
func (s *Service) GetConnectedClients() []string {
	return s.hub.ConnectedClients()
}

// GetRooms returns active rooms with member counts.
func (s *Service) GetRooms() map[string]int {
	return s.hub.Rooms()
}

// GetClientInfo returns info for a connected client, or error.
func (s *Service) GetClientInfo(clientID string) (*types.ClientInfo, error) {
	info := s.hub.ClientInfo(clientID)
	if info == nil {
		return nil, fmt.Errorf("client %s not found", clientID)
	}
	return info, nil
}
