package api

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sosnet/realtime/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

// newTestClient serves handler over an in-memory listener.
func newTestClient(t *testing.T, handler fasthttp.RequestHandler, opts Options) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	opts.BaseURL = "http://api.test/api"
	opts.HTTPClient = &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
	return New(opts, zerolog.Nop())
}

func writeJSON(t *testing.T, ctx *fasthttp.RequestCtx, status int, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

func TestListMessagesByTask(t *testing.T) {
	var path, query, auth string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		path = string(ctx.Path())
		query = string(ctx.QueryArgs().QueryString())
		auth = string(ctx.Request.Header.Peek("Authorization"))
		writeJSON(t, ctx, 200, []types.ChatMessage{
			{ID: 1, Content: "first", SenderID: 3, TaskID: types.Int64(42)},
			{ID: 2, Content: "second", SenderID: 4, TaskID: types.Int64(42)},
		})
	}, Options{Tokens: staticToken("tok")})

	msgs, err := c.ListMessages(context.Background(), MessageQuery{TaskID: 42, ContactID: 9})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "/api/messages/", path)
	assert.Equal(t, "task_id=42", query)
	assert.Equal(t, "Bearer tok", auth)
}

func TestListMessagesByContact(t *testing.T) {
	var query string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		query = string(ctx.QueryArgs().QueryString())
		writeJSON(t, ctx, 200, []types.ChatMessage{})
	}, Options{})

	_, err := c.ListMessages(context.Background(), MessageQuery{ContactID: 9})
	require.NoError(t, err)
	assert.Equal(t, "contact_id=9", query)
}

func TestSendMessage(t *testing.T) {
	var body SendMessageRequest
	var method string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		method = string(ctx.Method())
		require.NoError(t, json.Unmarshal(ctx.PostBody(), &body))
		writeJSON(t, ctx, 201, types.ChatMessage{
			ID: 77, Content: body.Content, SenderID: 5, TaskID: body.TaskID,
			ClientMessageID: body.ClientMessageID,
		})
	}, Options{})

	msg, err := c.SendMessage(context.Background(), SendMessageRequest{
		Content: "on my way", TaskID: types.Int64(42), ClientMessageID: "c-1",
	})
	require.NoError(t, err)
	assert.Equal(t, fasthttp.MethodPost, method)
	assert.Equal(t, "on my way", body.Content)
	assert.Nil(t, body.RecipientID)
	assert.Equal(t, int64(77), msg.ID)
	assert.Equal(t, "c-1", msg.ClientMessageID)
}

func TestErrorDetail(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(t, ctx, 403, map[string]string{"detail": "Not a participant"})
	}, Options{})

	_, err := c.ListMessages(context.Background(), MessageQuery{TaskID: 1})
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Status)
	assert.Equal(t, "Not a participant", apiErr.Detail)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestUnauthorizedFiresHook(t *testing.T) {
	var fired atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(t, ctx, 401, map[string]string{"detail": "Could not validate credentials"})
	}, Options{OnUnauthorized: func() { fired.Add(1) }})

	_, err := c.UnreadCount(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), fired.Load())
}

func TestUnreadCountAndMarkRead(t *testing.T) {
	var marked string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/api/messages/unread/count":
			writeJSON(t, ctx, 200, map[string]int{"unread_count": 3})
		case "/api/messages/8/read":
			marked = string(ctx.Method())
			writeJSON(t, ctx, 200, map[string]string{"status": "ok"})
		default:
			ctx.SetStatusCode(404)
		}
	}, Options{})

	n, err := c.UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, c.MarkRead(context.Background(), 8))
	assert.Equal(t, fasthttp.MethodPut, marked)
}

func TestListUsersByRole(t *testing.T) {
	var role string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		role = string(ctx.QueryArgs().Peek("role"))
		writeJSON(t, ctx, 200, []types.UserSummary{{ID: 3, FullName: "Dana", Role: types.RoleVolunteer}})
	}, Options{})

	users, err := c.ListUsers(context.Background(), types.RoleVolunteer)
	require.NoError(t, err)
	assert.Equal(t, "volunteer", role)
	require.Len(t, users, 1)
	assert.Equal(t, "Dana", users[0].FullName)
}

func TestCancelledContextSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		hits.Add(1)
		writeJSON(t, ctx, 200, []types.ChatMessage{})
	}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListMessages(ctx, MessageQuery{TaskID: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), hits.Load())
}

func TestDeadlineExceeded(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(t, ctx, 200, []types.ChatMessage{})
	}, Options{Timeout: 20 * time.Millisecond})

	_, err := c.ListMessages(context.Background(), MessageQuery{TaskID: 1})
	assert.Error(t, err)
}
