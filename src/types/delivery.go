package types

// TargetKind selects who receives a delivery.
type TargetKind string

const (
	TargetAll    TargetKind = "all"
	TargetClient TargetKind = "client"
	TargetUser   TargetKind = "user"
	TargetRoom   TargetKind = "room"
)

// Target addresses a delivery on the relay.
type Target struct {
	Kind     TargetKind `json:"kind"`
	ClientID string     `json:"client_id,omitempty"`
	UserID   int64      `json:"user_id,omitempty"`
	Room     string     `json:"room,omitempty"`
}

func ToAll() Target { return Target{Kind: TargetAll} }
func ToClient(id string) Target { return Target{Kind: TargetClient, ClientID: id} }
func ToUser(id int64) Target { return Target{Kind: TargetUser, UserID: id} }
func ToRoom(name string) Target { return Target{Kind: TargetRoom, Room: name} }

// Delivery is an envelope plus its audience. It is the unit relayed
// between relay instances.
type Delivery struct {
	Target   Target   `json:"target"`
	Envelope Envelope `json:"envelope"`
}
