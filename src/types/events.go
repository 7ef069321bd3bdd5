package types

// Client to server events.
const (
	EventAuthenticate = "authenticate"
	EventJoinRoom     = "join_room"
	EventLeaveRoom    = "leave_room"
	EventSendMessage  = "send_message"
)

// Server to client events.
const (
	EventConnectionEstablished  = "connection_established"
	EventAuthenticated          = "authenticated"
	EventJoinedRoom             = "joined_room"
	EventLeftRoom               = "left_room"
	EventNewMessage             = "new_message"
	EventUserUpdated            = "user_updated"
	EventUserDeleted            = "user_deleted"
	EventSOSCreated             = "sos_created"
	EventIncidentCreated        = "incident_created"
	EventTaskAssigned           = "task_assigned"
	EventTaskUpdated            = "task_updated"
	EventBroadcastMessage       = "broadcast_message"
	EventUserLocationUpdated    = "user_location_updated"
	EventVolunteerStatusChanged = "volunteer_status_changed"
)

// AdminRoom receives dispatcher-only broadcasts.
const AdminRoom = "admin"

// AuthenticatePayload binds a socket to a user.
type AuthenticatePayload struct {
	UserID int64 `json:"user_id"`
}

// RoomPayload names a broadcast room.
type RoomPayload struct {
	Room string `json:"room"`
}

// ConnectionEstablishedPayload is sent by the relay right after the upgrade.
type ConnectionEstablishedPayload struct {
	SID string `json:"sid"`
}

// SendMessagePayload asks the relay to forward a message to a user or a room.
type SendMessagePayload struct {
	RecipientID int64       `json:"recipient_id,omitempty"`
	Room        string      `json:"room,omitempty"`
	Message     ChatMessage `json:"message"`
}
