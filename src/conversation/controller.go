// Package conversation keeps one chat view's message list consistent
// across REST history, optimistic sends and socket-delivered echoes.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sosnet/realtime/src/api"
	"github.com/sosnet/realtime/src/router"
	"github.com/sosnet/realtime/src/types"
)

// State is the view lifecycle.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// Store reads and writes persisted messages.
type Store interface {
	ListMessages(ctx context.Context, q api.MessageQuery) ([]types.ChatMessage, error)
	SendMessage(ctx context.Context, req api.SendMessageRequest) (*types.ChatMessage, error)
}

// Events is the subscription side of the event router.
type Events interface {
	On(event string, sub router.Subscriber)
	Off(event string, sub router.Subscriber)
}

// Viewport scrolls the rendered list.
type Viewport interface {
	ScrollToBottom()
}

// Notifier shows a user-facing alert.
type Notifier interface {
	Alert(message string)
}

// Options configures a Controller. Viewport and Notifier are optional.
type Options struct {
	Scope       Scope
	Self        int64
	Store       Store
	Events      Events
	Viewport    Viewport
	Notifier    Notifier
	ScrollDelay time.Duration
	Now         func() time.Time
}

// Controller drives one open conversation.
type Controller struct {
	scope  Scope
	self   int64
	store  Store
	events Events
	notify Notifier
	now    func() time.Time
	scroll *debouncer
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	timeline timeline
	buffered []types.ChatMessage
	draft    string
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates an idle controller.
func New(opts Options, logger zerolog.Logger) *Controller {
	if opts.ScrollDelay <= 0 {
		opts.ScrollDelay = 100 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Controller{
		scope:  opts.Scope,
		self:   opts.Self,
		store:  opts.Store,
		events: opts.Events,
		notify: opts.Notifier,
		now:    opts.Now,
		state:  StateIdle,
		logger: logger.With().Str("component", "conversation").Str("scope", opts.Scope.String()).Logger(),
	}
	scrollFn := func() {}
	if opts.Viewport != nil {
		scrollFn = opts.Viewport.ScrollToBottom
	}
	c.scroll = newDebouncer(opts.ScrollDelay, scrollFn)
	return c
}

// Open subscribes to live messages and loads history in the background.
// Live messages that arrive before history lands are merged after it.
// Opening an open controller does nothing.
func (c *Controller) Open(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	lifetime, cancel := context.WithCancel(ctx)
	c.ctx, c.cancel = lifetime, cancel
	c.state = StateLoading
	c.timeline.reset()
	c.buffered = nil
	c.mu.Unlock()

	c.events.On(types.EventNewMessage, c)
	go c.load(lifetime)
}

// Close unsubscribes and discards the view state. Fetches and sends still
// in flight complete without touching the view.
func (c *Controller) Close() {
	c.events.Off(types.EventNewMessage, c)
	c.scroll.stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = StateIdle
	c.timeline.reset()
	c.buffered = nil
	c.draft = ""
}

func (c *Controller) load(ctx context.Context) {
	history, err := c.store.ListMessages(ctx, c.scope.Query())

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to load history")
	}

	prior := c.timeline.entries
	c.timeline.reset()
	for _, msg := range history {
		c.timeline.append(&Entry{ChatMessage: msg, Status: StatusSent, CorrelationID: msg.ClientMessageID})
	}
	for _, e := range prior {
		if e.Confirmed() && c.timeline.indexByID(e.ID) >= 0 {
			continue
		}
		if e.Status == StatusPending && c.timeline.indexByCorrelation(e.CorrelationID) >= 0 {
			continue
		}
		c.timeline.append(e)
	}
	for _, msg := range c.buffered {
		c.timeline.merge(msg, "", c.self)
	}
	c.buffered = nil
	c.state = StateReady
	c.mu.Unlock()

	c.logger.Debug().Int("messages", len(history)).Msg("history loaded")
	c.scroll.trigger()
}

// HandleEvent receives new_message frames from the router.
func (c *Controller) HandleEvent(ev router.Event) {
	var msg types.ChatMessage
	if err := ev.Decode(&msg); err != nil {
		c.logger.Debug().Err(err).Msg("malformed new_message")
		return
	}
	if !c.scope.Matches(msg) {
		return
	}

	c.mu.Lock()
	if c.ctx == nil || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	if c.state == StateLoading {
		c.buffered = append(c.buffered, msg)
		c.mu.Unlock()
		return
	}
	appended := c.timeline.merge(msg, "", c.self)
	c.mu.Unlock()

	if appended {
		c.scroll.trigger()
	}
}

// SetDraft replaces the composer text.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// Draft returns the composer text.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Submit sends the draft. The draft is cleared and a provisional entry
// from self is appended before Submit returns; persistence happens in the
// background. It returns the entry's correlation id, or "" when the draft
// was blank or the view is closed.
func (c *Controller) Submit() string {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return ""
	}
	content := strings.TrimSpace(c.draft)
	if content == "" {
		c.mu.Unlock()
		return ""
	}
	c.draft = ""

	now := c.now()
	correlationID := uuid.NewString()
	req := c.scope.request(content, correlationID)
	c.timeline.append(&Entry{
		ChatMessage: types.ChatMessage{
			ID:              now.UnixNano(),
			Content:         content,
			SenderID:        c.self,
			TaskID:          req.TaskID,
			RecipientID:     req.RecipientID,
			CreatedAt:       now,
			ClientMessageID: correlationID,
		},
		Status:        StatusPending,
		CorrelationID: correlationID,
	})
	lifetime := c.ctx
	c.mu.Unlock()

	c.scroll.trigger()
	go c.send(lifetime, req)
	return correlationID
}

// Retry re-sends a failed entry. It reports whether an entry was resent.
func (c *Controller) Retry(correlationID string) bool {
	c.mu.Lock()
	i := c.timeline.indexByCorrelation(correlationID)
	if c.state == StateIdle || i < 0 || c.timeline.entries[i].Status != StatusFailed {
		c.mu.Unlock()
		return false
	}
	e := c.timeline.entries[i]
	e.Status = StatusPending
	req := c.scope.request(e.Content, correlationID)
	lifetime := c.ctx
	c.mu.Unlock()

	go c.send(lifetime, req)
	return true
}

func (c *Controller) send(ctx context.Context, req api.SendMessageRequest) {
	msg, err := c.store.SendMessage(ctx, req)

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	if err != nil {
		if i := c.timeline.indexByCorrelation(req.ClientMessageID); i >= 0 && c.timeline.entries[i].Status == StatusPending {
			c.timeline.entries[i].Status = StatusFailed
		}
		c.mu.Unlock()

		c.logger.Error().Err(err).Str("correlation_id", req.ClientMessageID).Msg("failed to send message")
		if c.notify != nil && !errors.Is(err, api.ErrUnauthorized) {
			c.notify.Alert("Failed to send message")
		}
		return
	}
	c.timeline.merge(*msg, req.ClientMessageID, c.self)
	c.mu.Unlock()
}

// Messages returns a copy of the displayed entries in order.
func (c *Controller) Messages() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeline.snapshot()
}

// State returns the view lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Scope returns the conversation the view shows.
func (c *Controller) Scope() Scope { return c.scope }
