package router

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Event is a server event handed to subscribers.
type Event struct {
	Name       string
	Data       json.RawMessage
	ReceivedAt time.Time
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Subscriber receives events for the names it is registered under.
// Implementations must be comparable (pointer receivers): the registry
// keys subscriptions by subscriber value.
type Subscriber interface {
	HandleEvent(Event)
}

// Subscription adapts a plain function to a Subscriber. The pointer is the
// handle to pass to Off.
type Subscription struct {
	fn func(Event)
}

// NewSubscription wraps fn. The same handle may be registered under
// several event names.
func NewSubscription(fn func(Event)) *Subscription {
	return &Subscription{fn: fn}
}

// HandleEvent calls the wrapped function.
func (s *Subscription) HandleEvent(ev Event) { s.fn(ev) }

// Binder owns the transport-level listener for each event name.
// Defined here to avoid circular imports with the socket package.
type Binder interface {
	Bind(event string)
	Unbind(event string)
}

type entry struct {
	sub    Subscriber
	active atomic.Bool
}

// Router fans server events out to the subscribers of each event name.
// All deliveries happen on the goroutine running Run, in arrival order.
type Router struct {
	mu      sync.RWMutex
	entries map[string][]*entry
	binder  Binder

	incoming chan Event
	done     chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

// New creates a router. Call Run in a goroutine to start delivery.
func New(logger zerolog.Logger) *Router {
	return &Router{
		entries:  make(map[string][]*entry),
		incoming: make(chan Event, 256),
		done:     make(chan struct{}),
		logger:   logger.With().Str("component", "router").Logger(),
	}
}

// SetBinder attaches the transport. Event names that already have
// subscribers are bound immediately.
func (r *Router) SetBinder(b Binder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.binder = b
	if b == nil {
		return
	}
	for name := range r.entries {
		b.Bind(name)
	}
}

// On registers sub for event. Registering the same subscriber twice for
// one event is a no-op.
func (r *Router) On(event string, sub Subscriber) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[event]
	for _, e := range list {
		if e.sub == sub {
			return
		}
	}
	e := &entry{sub: sub}
	e.active.Store(true)
	r.entries[event] = append(list, e)

	if len(list) == 0 && r.binder != nil {
		r.binder.Bind(event)
	}
}

// OnFunc registers fn for event and returns its handle.
func (r *Router) OnFunc(event string, fn func(Event)) *Subscription {
	s := NewSubscription(fn)
	r.On(event, s)
	return s
}

// Off removes sub from event. A nil sub removes every subscriber of event.
// A removed subscriber receives nothing further, including events already
// queued for delivery.
func (r *Router) Off(event string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.entries[event]
	if !ok {
		return
	}

	var kept []*entry
	for _, e := range list {
		if sub == nil || e.sub == sub {
			e.active.Store(false)
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) > 0 {
		r.entries[event] = kept
		return
	}

	delete(r.entries, event)
	if r.binder != nil {
		r.binder.Unbind(event)
	}
}

// Clear removes every subscription for every event.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, list := range r.entries {
		for _, e := range list {
			e.active.Store(false)
		}
		if r.binder != nil {
			r.binder.Unbind(name)
		}
	}
	r.entries = make(map[string][]*entry)
}

// Deliver queues an event for dispatch. It blocks while the queue is full
// and returns immediately once the router is stopped.
func (r *Router) Deliver(ev Event) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	select {
	case r.incoming <- ev:
	case <-r.done:
	}
}

// Run starts the dispatch loop. Call in a goroutine.
func (r *Router) Run() {
	for {
		select {
		case ev := <-r.incoming:
			r.dispatch(ev)
		case <-r.done:
			return
		}
	}
}

// Stop halts the dispatch loop.
func (r *Router) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Router) dispatch(ev Event) {
	r.mu.RLock()
	list := append([]*entry(nil), r.entries[ev.Name]...)
	r.mu.RUnlock()

	if len(list) == 0 {
		r.logger.Debug().Str("event", ev.Name).Msg("no subscribers")
		return
	}
	for _, e := range list {
		if !e.active.Load() {
			continue
		}
		r.invoke(e.sub, ev)
	}
}

func (r *Router) invoke(sub Subscriber, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Str("event", ev.Name).Msg("subscriber panicked")
		}
	}()
	sub.HandleEvent(ev)
}
