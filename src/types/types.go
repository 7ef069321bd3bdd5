package types

import (
	"encoding/json"
	"time"
)

// Envelope is a single frame on the realtime socket.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Room      string          `json:"room,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data any) (Envelope, error) {
	env := Envelope{Event: event, Timestamp: time.Now()}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = raw
	return env, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Role tags what a user can do on the platform.
type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleVolunteer Role = "volunteer"
	RoleAdmin     Role = "admin"
)

// Identity is the authenticated user behind a session.
type Identity struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

// ChatMessage is a chat message as persisted by the backend.
type ChatMessage struct {
	ID              int64     `json:"id"`
	Content         string    `json:"content"`
	SenderID        int64     `json:"sender_id"`
	RecipientID     *int64    `json:"recipient_id,omitempty"`
	TaskID          *int64    `json:"task_id,omitempty"`
	IsBroadcast     bool      `json:"is_broadcast,omitempty"`
	IsRead          bool      `json:"is_read"`
	CreatedAt       time.Time `json:"created_at"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
}

// User is the account profile returned by the backend.
type User struct {
	ID              int64  `json:"id"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	FullName        string `json:"full_name"`
	Role            Role   `json:"role"`
	VolunteerID     string `json:"volunteer_id,omitempty"`
	VolunteerStatus string `json:"volunteer_status,omitempty"`
}

// UserSummary is the subset of a user listed by GET /users.
type UserSummary struct {
	ID              int64  `json:"id"`
	FullName        string `json:"full_name"`
	Role            Role   `json:"role,omitempty"`
	VolunteerID     string `json:"volunteer_id,omitempty"`
	VolunteerStatus string `json:"volunteer_status,omitempty"`
}

// ClientInfo holds metadata about a socket connected to the relay.
type ClientInfo struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	Rooms       []string  `json:"rooms"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
