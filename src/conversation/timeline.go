package conversation

import "github.com/sosnet/realtime/src/types"

// Status tracks an entry through the send protocol.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Entry is one displayed message. Provisional entries carry a temporary
// id until the server copy replaces them.
type Entry struct {
	types.ChatMessage
	Status        Status `json:"status"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Confirmed reports whether the entry holds a server-assigned id.
func (e Entry) Confirmed() bool { return e.Status == StatusSent }

// timeline is the ordered entry list. Callers hold the controller lock.
type timeline struct {
	entries []*Entry
}

func (t *timeline) reset() { t.entries = nil }

func (t *timeline) append(e *Entry) { t.entries = append(t.entries, e) }

func (t *timeline) indexByID(id int64) int {
	for i, e := range t.entries {
		if e.Confirmed() && e.ID == id {
			return i
		}
	}
	return -1
}

func (t *timeline) indexByCorrelation(id string) int {
	if id == "" {
		return -1
	}
	for i, e := range t.entries {
		if e.CorrelationID == id {
			return i
		}
	}
	return -1
}

// oldestPending finds the first unconfirmed entry from sender with the
// given content.
func (t *timeline) oldestPending(sender int64, content string) int {
	for i, e := range t.entries {
		if e.Status == StatusPending && e.SenderID == sender && e.Content == content {
			return i
		}
	}
	return -1
}

func (t *timeline) remove(i int) {
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
}

// merge folds a server copy into the timeline and reports whether it was
// appended as a new entry. correlationID is set when the caller knows
// which provisional entry the copy answers (the POST response).
//
// Resolution order: a displayed server id is updated in place; otherwise
// a provisional entry found by correlation id, or failing that the oldest
// pending entry from self with identical content, is replaced in place;
// otherwise the message is appended. Every distinct server id ends up
// displayed exactly once, whatever order echoes and responses arrive in.
func (t *timeline) merge(msg types.ChatMessage, correlationID string, self int64) bool {
	if correlationID == "" {
		correlationID = msg.ClientMessageID
	}

	byID := t.indexByID(msg.ID)
	prov := t.indexByCorrelation(correlationID)
	if prov < 0 && correlationID == "" && byID < 0 && msg.SenderID == self {
		prov = t.oldestPending(self, msg.Content)
	}

	switch {
	case byID >= 0:
		held := t.entries[byID]
		held.ChatMessage = msg
		if prov < 0 || prov == byID {
			return false
		}
		other := t.entries[prov]
		if other.Confirmed() {
			// Both copies are on screen but the content fallback paired
			// them with each other's sends.
			held.CorrelationID, other.CorrelationID = other.CorrelationID, held.CorrelationID
			return false
		}
		if held.CorrelationID == "" {
			held.CorrelationID = other.CorrelationID
		}
		t.remove(prov)
		return false
	case prov >= 0:
		e := t.entries[prov]
		displaced, wasConfirmed := e.ChatMessage, e.Confirmed()
		e.ChatMessage = msg
		e.Status = StatusSent
		if wasConfirmed && displaced.ID != msg.ID {
			// The displaced copy belongs to another send; place it again.
			displaced.ClientMessageID = ""
			return t.merge(displaced, "", self)
		}
		return false
	default:
		t.append(&Entry{ChatMessage: msg, Status: StatusSent, CorrelationID: msg.ClientMessageID})
		return true
	}
}

func (t *timeline) snapshot() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = *e
	}
	return out
}
