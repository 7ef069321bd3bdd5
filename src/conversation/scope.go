package conversation

import (
	"fmt"

	"github.com/sosnet/realtime/src/api"
	"github.com/sosnet/realtime/src/types"
)

type scopeKind int

const (
	scopeTask scopeKind = iota + 1
	scopeDirect
)

// Scope identifies which messages a conversation shows.
type Scope struct {
	kind scopeKind
	id   int64
}

// TaskScope selects the messages attached to one task.
func TaskScope(taskID int64) Scope { return Scope{kind: scopeTask, id: taskID} }

// DirectScope selects the one-to-one thread with a counterpart user.
func DirectScope(contactID int64) Scope { return Scope{kind: scopeDirect, id: contactID} }

// Matches reports whether msg belongs to the conversation.
func (s Scope) Matches(msg types.ChatMessage) bool {
	switch s.kind {
	case scopeTask:
		return msg.TaskID != nil && *msg.TaskID == s.id
	case scopeDirect:
		return msg.SenderID == s.id || (msg.RecipientID != nil && *msg.RecipientID == s.id)
	}
	return false
}

// Query is the history request for the scope.
func (s Scope) Query() api.MessageQuery {
	if s.kind == scopeTask {
		return api.MessageQuery{TaskID: s.id}
	}
	return api.MessageQuery{ContactID: s.id}
}

// request fills the addressing fields of an outgoing message.
func (s Scope) request(content, correlationID string) api.SendMessageRequest {
	req := api.SendMessageRequest{Content: content, ClientMessageID: correlationID}
	if s.kind == scopeTask {
		req.TaskID = types.Int64(s.id)
	} else {
		req.RecipientID = types.Int64(s.id)
	}
	return req
}

func (s Scope) String() string {
	if s.kind == scopeTask {
		return fmt.Sprintf("task:%d", s.id)
	}
	return fmt.Sprintf("direct:%d", s.id)
}
