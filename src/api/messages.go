package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/sosnet/realtime/src/types"
	"github.com/valyala/fasthttp"
)

// MessageQuery selects a conversation. TaskID wins when both are set;
// neither set lists every message visible to the caller.
type MessageQuery struct {
	TaskID    int64
	ContactID int64
}

func (q MessageQuery) values() url.Values {
	v := url.Values{}
	switch {
	case q.TaskID != 0:
		v.Set("task_id", strconv.FormatInt(q.TaskID, 10))
	case q.ContactID != 0:
		v.Set("contact_id", strconv.FormatInt(q.ContactID, 10))
	}
	return v
}

// SendMessageRequest is the body of POST /messages.
type SendMessageRequest struct {
	Content         string `json:"content"`
	TaskID          *int64 `json:"task_id,omitempty"`
	RecipientID     *int64 `json:"recipient_id,omitempty"`
	IsBroadcast     bool   `json:"is_broadcast,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
}

// ListMessages returns a conversation's history ordered by creation time.
func (c *Client) ListMessages(ctx context.Context, q MessageQuery) ([]types.ChatMessage, error) {
	var out []types.ChatMessage
	if err := c.do(ctx, fasthttp.MethodGet, "/messages/", q.values(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage persists a message and returns the stored copy.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*types.ChatMessage, error) {
	var out types.ChatMessage
	if err := c.do(ctx, fasthttp.MethodPost, "/messages/", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Broadcasts returns admin broadcasts, newest first.
func (c *Client) Broadcasts(ctx context.Context) ([]types.ChatMessage, error) {
	var out []types.ChatMessage
	if err := c.do(ctx, fasthttp.MethodGet, "/messages/broadcasts", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead flags a received message as read.
func (c *Client) MarkRead(ctx context.Context, messageID int64) error {
	return c.do(ctx, fasthttp.MethodPut, fmt.Sprintf("/messages/%d/read", messageID), nil, nil, nil)
}

// UnreadCount returns how many direct messages the caller has not read.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		UnreadCount int `json:"unread_count"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/messages/unread/count", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}
