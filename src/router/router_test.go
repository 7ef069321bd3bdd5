package router

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) HandleEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, string(ev.Data))
	}
	return out
}

// mockBinder records bind/unbind calls from the router.
type mockBinder struct {
	mu      sync.Mutex
	binds   map[string]int
	unbinds map[string]int
}

func newMockBinder() *mockBinder {
	return &mockBinder{binds: map[string]int{}, unbinds: map[string]int{}}
}

func (b *mockBinder) Bind(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.binds[event]++
}

func (b *mockBinder) Unbind(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unbinds[event]++
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r := New(zerolog.Nop())
	go r.Run()
	t.Cleanup(r.Stop)
	return r
}

// flush waits until every event queued so far has been dispatched.
func flush(t *testing.T, r *Router) {
	t.Helper()
	done := make(chan struct{})
	r.OnFunc("__flush", func(Event) { close(done) })
	r.Deliver(Event{Name: "__flush"})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("router did not drain")
	}
	r.Off("__flush", nil)
}

func ev(name, payload string) Event {
	return Event{Name: name, Data: json.RawMessage(payload)}
}

func TestDeliverToSubscriber(t *testing.T) {
	r := newTestRouter(t)
	rec := &recorder{}
	r.On("new_message", rec)

	r.Deliver(ev("new_message", `1`))
	r.Deliver(ev("new_message", `2`))
	flush(t, r)

	assert.Equal(t, []string{"1", "2"}, rec.names())
}

func TestOffStopsDelivery(t *testing.T) {
	r := newTestRouter(t)
	rec := &recorder{}
	r.On("new_message", rec)

	r.Deliver(ev("new_message", `1`))
	flush(t, r)
	r.Off("new_message", rec)
	r.Deliver(ev("new_message", `2`))
	flush(t, r)

	assert.Equal(t, []string{"1"}, rec.names())
}

func TestIndependentSubscribersEachReceiveOnce(t *testing.T) {
	r := newTestRouter(t)
	a, b := &recorder{}, &recorder{}
	r.On("new_message", a)
	r.On("new_message", b)

	for _, p := range []string{`1`, `2`, `3`} {
		r.Deliver(ev("new_message", p))
	}
	flush(t, r)

	assert.Equal(t, []string{"1", "2", "3"}, a.names())
	assert.Equal(t, []string{"1", "2", "3"}, b.names())
}

func TestDuplicateRegistrationDeliversOnce(t *testing.T) {
	r := newTestRouter(t)
	binder := newMockBinder()
	r.SetBinder(binder)
	rec := &recorder{}

	r.On("new_message", rec)
	r.On("new_message", rec)
	assert.Equal(t, 1, r.Subscribers("new_message"))

	r.Deliver(ev("new_message", `1`))
	flush(t, r)

	assert.Equal(t, []string{"1"}, rec.names())
	assert.Equal(t, 1, binder.binds["new_message"])
}

func TestOneTransportBindingPerEvent(t *testing.T) {
	r := newTestRouter(t)
	binder := newMockBinder()
	r.SetBinder(binder)

	a, b := &recorder{}, &recorder{}
	r.On("user_updated", a)
	r.On("user_updated", b)
	assert.Equal(t, 1, binder.binds["user_updated"])

	r.Off("user_updated", a)
	assert.Equal(t, 0, binder.unbinds["user_updated"])
	r.Off("user_updated", b)
	assert.Equal(t, 1, binder.unbinds["user_updated"])
}

func TestSetBinderBindsExistingEvents(t *testing.T) {
	r := newTestRouter(t)
	r.On("user_deleted", &recorder{})

	binder := newMockBinder()
	r.SetBinder(binder)
	assert.Equal(t, 1, binder.binds["user_deleted"])
}

func TestOffWithoutSubscriberRemovesAll(t *testing.T) {
	r := newTestRouter(t)
	a, b := &recorder{}, &recorder{}
	r.On("new_message", a)
	r.On("new_message", b)

	r.Off("new_message", nil)
	r.Deliver(ev("new_message", `1`))
	flush(t, r)

	assert.Empty(t, a.names())
	assert.Empty(t, b.names())
	assert.Equal(t, 0, r.Subscribers("new_message"))
}

func TestOffDuringFanOutSkipsRemovedSubscriber(t *testing.T) {
	r := newTestRouter(t)
	late := &recorder{}
	var first *Subscription
	first = r.OnFunc("new_message", func(Event) {
		r.Off("new_message", late)
	})
	r.On("new_message", late)

	r.Deliver(ev("new_message", `1`))
	flush(t, r)

	assert.Empty(t, late.names())
	assert.Equal(t, 1, r.Subscribers("new_message"))
	r.Off("new_message", first)
}

func TestPanickingSubscriberDoesNotStopFanOut(t *testing.T) {
	r := newTestRouter(t)
	r.OnFunc("new_message", func(Event) { panic("boom") })
	rec := &recorder{}
	r.On("new_message", rec)

	r.Deliver(ev("new_message", `1`))
	flush(t, r)

	assert.Equal(t, []string{"1"}, rec.names())
}

func TestClearRemovesEverything(t *testing.T) {
	r := newTestRouter(t)
	binder := newMockBinder()
	r.SetBinder(binder)
	rec := &recorder{}
	r.On("new_message", rec)
	r.On("user_updated", rec)

	r.Clear()
	assert.Empty(t, r.Events())
	assert.Equal(t, 1, binder.unbinds["new_message"])
	assert.Equal(t, 1, binder.unbinds["user_updated"])

	r.Deliver(ev("new_message", `1`))
	flush(t, r)
	assert.Empty(t, rec.names())
}

func TestEventDecode(t *testing.T) {
	var out struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, ev("new_message", `{"id":7}`).Decode(&out))
	assert.Equal(t, int64(7), out.ID)
	require.NoError(t, Event{Name: "user_updated"}.Decode(&out))
}

func TestDeliverAfterStopReturns(t *testing.T) {
	r := New(zerolog.Nop())
	r.Stop()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			r.Deliver(ev("new_message", `1`))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked after Stop")
	}
}
