package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sosnet/realtime/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn implements types.Conn for testing without a real WebSocket.
type mockConn struct {
	mu       sync.Mutex
	written  []types.Envelope
	readCh   chan types.Envelope
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:   make(chan types.Envelope, 16),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if env, ok := v.(types.Envelope); ok {
		m.written = append(m.written, env)
	}
	return nil
}

func (m *mockConn) ReadJSON(v any) error {
	select {
	case env := <-m.readCh:
		if ptr, ok := v.(*types.Envelope); ok {
			*ptr = env
		}
		return nil
	case <-m.closedCh:
		return &closeError{}
	}
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) events(name string) []types.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Envelope
	for _, env := range m.written {
		if env.Event == name {
			out = append(out, env)
		}
	}
	return out
}

func (m *mockConn) send(t *testing.T, event string, data any) {
	t.Helper()
	env, err := types.NewEnvelope(event, data)
	require.NoError(t, err)
	m.readCh <- env
}

type closeError struct{}

func (e *closeError) Error() string { return "connection closed" }

type mockBridge struct {
	mu        sync.Mutex
	published []types.Delivery
}

func (b *mockBridge) Publish(d types.Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, d)
	return nil
}

func (b *mockBridge) Available() bool { return true }

func (b *mockBridge) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	h := New(opts, zerolog.Nop())
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

// registerClient creates, registers, and starts a mock client with both pumps.
func registerClient(t *testing.T, h *Hub, id string) (*Client, *mockConn) {
	t.Helper()
	conn := newMockConn()
	client := NewClient(id, conn, h)
	h.Register(client)
	go client.WritePump()
	go client.ReadPump()
	require.Eventually(t, func() bool { return h.ClientInfo(id) != nil }, time.Second, 5*time.Millisecond)
	return client, conn
}

func waitEvents(t *testing.T, conn *mockConn, name string, n int) []types.Envelope {
	t.Helper()
	require.Eventually(t, func() bool { return len(conn.events(name)) == n }, time.Second, 5*time.Millisecond)
	return conn.events(name)
}

func authenticate(t *testing.T, h *Hub, conn *mockConn, id string, userID int64) {
	t.Helper()
	conn.send(t, types.EventAuthenticate, types.AuthenticatePayload{UserID: userID})
	waitEvents(t, conn, types.EventAuthenticated, 1)
	require.Equal(t, userID, h.ClientInfo(id).UserID)
}

func TestRegisterSendsConnectionEstablished(t *testing.T) {
	h := newTestHub(t, Options{})
	_, conn := registerClient(t, h, "c1")

	envs := waitEvents(t, conn, types.EventConnectionEstablished, 1)
	var p types.ConnectionEstablishedPayload
	require.NoError(t, envs[0].Decode(&p))
	assert.Equal(t, "c1", p.SID)
	assert.Equal(t, 1, h.ClientCount())
}

func TestAuthenticate(t *testing.T) {
	h := newTestHub(t, Options{})
	_, conn := registerClient(t, h, "c1")

	authenticate(t, h, conn, "c1", 42)
	var p types.AuthenticatePayload
	require.NoError(t, conn.events(types.EventAuthenticated)[0].Decode(&p))
	assert.Equal(t, int64(42), p.UserID)
	assert.True(t, h.UserOnline(42))
	assert.Equal(t, 1, h.UserCount())
}

func TestAuthenticateRejectsZeroUser(t *testing.T) {
	h := newTestHub(t, Options{})
	_, conn := registerClient(t, h, "c1")

	conn.send(t, types.EventAuthenticate, types.AuthenticatePayload{})
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, conn.events(types.EventAuthenticated))
	assert.Equal(t, 0, h.UserCount())
}

func TestUserDeliveryReachesEveryConnection(t *testing.T) {
	h := newTestHub(t, Options{})
	_, tab1 := registerClient(t, h, "tab-1")
	_, tab2 := registerClient(t, h, "tab-2")
	_, other := registerClient(t, h, "other")
	authenticate(t, h, tab1, "tab-1", 7)
	authenticate(t, h, tab2, "tab-2", 7)
	authenticate(t, h, other, "other", 8)

	env, err := types.NewEnvelope(types.EventTaskAssigned, map[string]any{"id": 1})
	require.NoError(t, err)
	h.Publish(types.Delivery{Target: types.ToUser(7), Envelope: env})

	waitEvents(t, tab1, types.EventTaskAssigned, 1)
	waitEvents(t, tab2, types.EventTaskAssigned, 1)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, other.events(types.EventTaskAssigned))
}

func TestJoinAndLeaveRoom(t *testing.T) {
	h := newTestHub(t, Options{})
	_, admin := registerClient(t, h, "admin")
	_, citizen := registerClient(t, h, "citizen")

	admin.send(t, types.EventJoinRoom, types.RoomPayload{Room: types.AdminRoom})
	waitEvents(t, admin, types.EventJoinedRoom, 1)
	assert.Equal(t, 1, h.Rooms()[types.AdminRoom])
	assert.Equal(t, []string{types.AdminRoom}, h.ClientInfo("admin").Rooms)

	env, err := types.NewEnvelope(types.EventUserLocationUpdated, map[string]any{"id": 3})
	require.NoError(t, err)
	h.Publish(types.Delivery{Target: types.ToRoom(types.AdminRoom), Envelope: env})
	waitEvents(t, admin, types.EventUserLocationUpdated, 1)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, citizen.events(types.EventUserLocationUpdated))

	admin.send(t, types.EventLeaveRoom, types.RoomPayload{Room: types.AdminRoom})
	waitEvents(t, admin, types.EventLeftRoom, 1)
	_, ok := h.Rooms()[types.AdminRoom]
	assert.False(t, ok)
}

func TestSendMessageToRecipient(t *testing.T) {
	h := newTestHub(t, Options{})
	_, sender := registerClient(t, h, "sender")
	_, recipient := registerClient(t, h, "recipient")
	authenticate(t, h, sender, "sender", 1)
	authenticate(t, h, recipient, "recipient", 2)

	sender.send(t, types.EventSendMessage, types.SendMessagePayload{
		RecipientID: 2,
		Message:     types.ChatMessage{ID: 10, Content: "hello", SenderID: 1, RecipientID: types.Int64(2)},
	})

	envs := waitEvents(t, recipient, types.EventNewMessage, 1)
	var msg types.ChatMessage
	require.NoError(t, envs[0].Decode(&msg))
	assert.Equal(t, "hello", msg.Content)
	assert.Empty(t, sender.events(types.EventNewMessage))
}

func TestSendMessageFallsBackToRoom(t *testing.T) {
	h := newTestHub(t, Options{})
	_, sender := registerClient(t, h, "sender")
	_, member := registerClient(t, h, "member")
	member.send(t, types.EventJoinRoom, types.RoomPayload{Room: "task_42"})
	waitEvents(t, member, types.EventJoinedRoom, 1)

	sender.send(t, types.EventSendMessage, types.SendMessagePayload{
		RecipientID: 99,
		Room:        "task_42",
		Message:     types.ChatMessage{ID: 11, Content: "status?", TaskID: types.Int64(42)},
	})
	waitEvents(t, member, types.EventNewMessage, 1)
}

func TestUnregisterCleansMembership(t *testing.T) {
	h := newTestHub(t, Options{})
	client, conn := registerClient(t, h, "c1")
	authenticate(t, h, conn, "c1", 5)
	conn.send(t, types.EventJoinRoom, types.RoomPayload{Room: types.AdminRoom})
	waitEvents(t, conn, types.EventJoinedRoom, 1)

	h.Unregister(client)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, h.UserOnline(5))
	assert.Empty(t, h.Rooms())
}

func TestDroppedConnectionUnregisters(t *testing.T) {
	h := newTestHub(t, Options{})
	_, conn := registerClient(t, h, "c1")

	_ = conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestInboundFramesAreRateLimited(t *testing.T) {
	h := newTestHub(t, Options{FramesPerSecond: 0.01, FrameBurst: 2})
	_, conn := registerClient(t, h, "c1")

	for i := 0; i < 5; i++ {
		conn.send(t, types.EventJoinRoom, types.RoomPayload{Room: "r"})
	}
	waitEvents(t, conn, types.EventJoinedRoom, 2)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, conn.events(types.EventJoinedRoom), 2)
}

func TestPublishGoesToBridgeButLocalCastDoesNot(t *testing.T) {
	h := newTestHub(t, Options{})
	b := &mockBridge{}
	h.SetBridge(b)
	_, conn := registerClient(t, h, "c1")

	env, err := types.NewEnvelope(types.EventSOSCreated, map[string]any{"id": 1})
	require.NoError(t, err)

	h.Publish(types.Delivery{Target: types.ToAll(), Envelope: env})
	waitEvents(t, conn, types.EventSOSCreated, 1)
	assert.Equal(t, 1, b.count())

	h.BroadcastToLocal(types.Delivery{Target: types.ToAll(), Envelope: env})
	waitEvents(t, conn, types.EventSOSCreated, 2)
	assert.Equal(t, 1, b.count())
}

func TestSendToClient(t *testing.T) {
	h := newTestHub(t, Options{})
	_, conn := registerClient(t, h, "target")

	env, err := types.NewEnvelope(types.EventBroadcastMessage, map[string]any{"content": "evacuate"})
	require.NoError(t, err)
	assert.True(t, h.SendToClient("target", env))
	waitEvents(t, conn, types.EventBroadcastMessage, 1)

	assert.False(t, h.SendToClient("nonexistent", env))
}

func TestConnectionCallbacks(t *testing.T) {
	h := newTestHub(t, Options{})

	connected := make(chan string, 1)
	disconnected := make(chan string, 1)
	h.OnConnection(func(id string) { connected <- id })
	h.OnDisconnection(func(id string) { disconnected <- id })

	client, _ := registerClient(t, h, "cb-client")
	assert.Equal(t, "cb-client", <-connected)

	h.Unregister(client)
	select {
	case id := <-disconnected:
		assert.Equal(t, "cb-client", id)
	case <-time.After(time.Second):
		t.Fatal("disconnect callback not invoked")
	}
}

func TestCustomHandler(t *testing.T) {
	h := newTestHub(t, Options{})
	got := make(chan string, 1)
	h.RegisterHandler("ping", func(clientID string, _ types.Envelope) error {
		got <- clientID
		return nil
	})
	_, conn := registerClient(t, h, "c1")

	conn.send(t, "ping", nil)
	select {
	case id := <-got:
		assert.Equal(t, "c1", id)
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}
