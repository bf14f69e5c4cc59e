// Package chat owns conversation state for the poetry assistant: the ordered
// message log, the loading flag and the single reply being streamed.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"shijian-backend/internal/models"
)

const (
	WelcomeID = "welcome"
	ResetID   = "reset"

	WelcomeText   = "您好！我是AI诗词助手，可以帮您赏析诗词、解答疑问、提供创作建议。请问有什么可以帮您的？"
	ResetText     = "对话已清空。请问有什么可以帮您的？"
	FallbackReply = "抱歉，我暂时无法处理您的请求。请稍后再试或检查网络连接。"
)

// ErrBusy is returned by SendMessage while a reply is still streaming.
var ErrBusy = errors.New("a reply is still being generated")

// Transport is the streaming connection a conversation drives for one send.
type Transport interface {
	Connect(ctx context.Context) error
	OnChunk(fn func(prefix string))
	OnComplete(fn func())
	OnError(fn func(error))
	OnCancel(fn func())
	Send(ctx context.Context, history []models.ChatMessage)
	Close()
}

type Dialer interface {
	NewTransport() Transport
}

type DialerFunc func() Transport

func (f DialerFunc) NewTransport() Transport { return f() }

// Observer receives conversation events in order. It is called outside the
// conversation lock, from the goroutine that produced the event or from one
// already delivering earlier events, and never concurrently.
type Observer interface {
	Notify(eventType string, event models.ChatEvent)
}

type ObserverFunc func(eventType string, event models.ChatEvent)

func (f ObserverFunc) Notify(eventType string, event models.ChatEvent) { f(eventType, event) }

// Conversation is the only writer of its message log. Messages live in an
// arena keyed by id; order holds the display order.
type Conversation struct {
	id       uuid.UUID
	owner    uuid.UUID
	dialer   Dialer
	observer Observer
	logger   *slog.Logger

	mu         sync.Mutex
	pending    []pendingEvent
	order      []string
	arena      map[string]*models.ChatMessage
	isOpen     bool
	isLoading  bool
	lastError  *string
	activeID   string
	generation uint64
	cancel     context.CancelFunc
	lastActive time.Time

	dispatchMu sync.Mutex
}

type pendingEvent struct {
	eventType string
	event     models.ChatEvent
}

// Reply is a send that has been accepted by Begin and still has to be
// streamed.
type Reply struct {
	conv    *Conversation
	gen     uint64
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	history []models.ChatMessage
}

func NewConversation(id uuid.UUID, dialer Dialer, observer Observer) *Conversation {
	c := &Conversation{
		id:       id,
		dialer:   dialer,
		observer: observer,
		logger:   slog.Default().With("session_id", id.String()),
	}
	c.resetLocked(models.ChatMessage{
		ID:        WelcomeID,
		Role:      models.RoleAssistant,
		Content:   WelcomeText,
		Timestamp: time.Now(),
	})
	return c
}

func (c *Conversation) ID() uuid.UUID { return c.id }

func (c *Conversation) Owner() uuid.UUID { return c.owner }

func (c *Conversation) OpenChat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isOpen = true
	c.touchLocked()
}

func (c *Conversation) CloseChat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isOpen = false
	c.touchLocked()
}

// SendMessage appends the user's text and an empty assistant placeholder,
// then streams the reply into the placeholder. It blocks until the reply
// completes, fails or is canceled. Blank text is ignored. Failures are
// recorded in the conversation state, not returned.
func (c *Conversation) SendMessage(ctx context.Context, content string) error {
	reply, err := c.Begin(ctx, content)
	if err != nil || reply == nil {
		return err
	}
	reply.Stream()
	return nil
}

// Begin claims the conversation for one send: the user message and the
// placeholder are appended and IsLoading is set before it returns. It
// returns ErrBusy while another reply is in flight and a nil Reply for blank
// text. The caller must call Stream on the returned Reply.
func (c *Conversation) Begin(ctx context.Context, content string) (*Reply, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return nil, nil
	}

	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isLoading {
		return nil, ErrBusy
	}

	user := models.NewChatMessage(models.RoleUser, text)
	c.appendLocked(user)
	history := c.messagesLocked()

	c.isLoading = true
	c.lastError = nil

	placeholder := models.NewChatMessage(models.RoleAssistant, "")
	c.appendLocked(placeholder)

	c.generation++
	c.activeID = placeholder.ID

	sendCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.touchLocked()

	return &Reply{
		conv:    c,
		gen:     c.generation,
		id:      placeholder.ID,
		ctx:     sendCtx,
		cancel:  cancel,
		history: history,
	}, nil
}

// MessageID is the id of the assistant placeholder the reply streams into.
func (r *Reply) MessageID() string { return r.id }

// Stream dials a transport and streams the reply into the placeholder. It
// returns once a terminal event has been applied.
func (r *Reply) Stream() {
	c := r.conv
	defer r.cancel()

	c.logger.Debug("chat send started", "generation", r.gen, "message_id", r.id)

	tr := c.dialer.NewTransport()
	defer tr.Close()

	tr.OnChunk(func(prefix string) { c.applyChunk(r.gen, r.id, prefix) })
	tr.OnComplete(func() { c.finish(r.gen, r.id) })
	tr.OnError(func(err error) { c.fail(r.gen, r.id, err) })
	tr.OnCancel(func() { c.abort(r.gen, r.id) })

	if err := tr.Connect(r.ctx); err != nil {
		if r.ctx.Err() != nil {
			c.abort(r.gen, r.id)
		} else {
			c.fail(r.gen, r.id, err)
		}
		return
	}

	tr.Send(r.ctx, r.history)

	// A transport that returned without a terminal event must not leave
	// the conversation stuck in loading.
	c.abort(r.gen, r.id)
}

// ClearMessages resets the log to a single system message and cancels any
// reply in flight. Late events from that reply are discarded.
func (c *Conversation) ClearMessages() {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	c.activeID = ""
	c.isLoading = false

	reset := models.ChatMessage{
		ID:        ResetID,
		Role:      models.RoleSystem,
		Content:   ResetText,
		Timestamp: time.Now(),
	}
	c.resetLocked(reset)
	c.touchLocked()
	c.notifyLocked(models.WSChatClear, models.ChatEvent{Generation: c.generation, Message: &reset})
}

// Terminate cancels any reply in flight. Used when the session is dropped.
func (c *Conversation) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	c.activeID = ""
	c.isLoading = false
}

// State returns a copy of the observable state.
func (c *Conversation) State() models.ChatState {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := models.ChatState{
		SessionID: c.id,
		Messages:  c.messagesLocked(),
		IsOpen:    c.isOpen,
		IsLoading: c.isLoading,
	}
	if c.lastError != nil {
		msg := *c.lastError
		state.Error = &msg
	}
	return state
}

// IdleSince reports when the conversation was last touched and whether a
// reply is in flight.
func (c *Conversation) IdleSince() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive, c.isLoading
}

func (c *Conversation) applyChunk(gen uint64, id, prefix string) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.currentLocked(gen, id)
	if !ok {
		return
	}
	msg.Content = prefix
	c.notifyLocked(models.WSChatChunk, models.ChatEvent{Generation: gen, MessageID: id, Content: prefix})
}

func (c *Conversation) finish(gen uint64, id string) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.currentLocked(gen, id)
	if !ok {
		return
	}
	c.settleLocked()
	c.notifyLocked(models.WSChatComplete, models.ChatEvent{Generation: gen, MessageID: id, Content: msg.Content})
	c.logger.Debug("chat send completed", "generation", gen)
}

func (c *Conversation) fail(gen uint64, id string, err error) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.currentLocked(gen, id)
	if !ok {
		return
	}
	msg.Content = FallbackReply
	reason := err.Error()
	c.lastError = &reason
	c.settleLocked()
	c.notifyLocked(models.WSChatError, models.ChatEvent{Generation: gen, MessageID: id, Content: FallbackReply, Error: reason})
	c.logger.Warn("chat send failed", "generation", gen, "error", err)
}

// abort settles a canceled reply. The placeholder keeps any prefix it
// received; an empty one is removed from the log.
func (c *Conversation) abort(gen uint64, id string) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.currentLocked(gen, id)
	if !ok {
		return
	}
	dropped := msg.Content == ""
	if dropped {
		c.removeLocked(id)
	}
	c.settleLocked()
	c.notifyLocked(models.WSChatCancel, models.ChatEvent{Generation: gen, MessageID: id, Content: msg.Content, Dropped: dropped})
}

// currentLocked returns the placeholder only if gen and id still identify
// the reply in flight.
func (c *Conversation) currentLocked(gen uint64, id string) (*models.ChatMessage, bool) {
	if gen != c.generation || id != c.activeID || !c.isLoading {
		return nil, false
	}
	msg, ok := c.arena[id]
	return msg, ok
}

func (c *Conversation) settleLocked() {
	c.isLoading = false
	c.activeID = ""
	c.cancel = nil
	c.touchLocked()
}

func (c *Conversation) appendLocked(msg models.ChatMessage) {
	m := msg
	c.arena[m.ID] = &m
	c.order = append(c.order, m.ID)
	c.notifyLocked(models.WSChatMessage, models.ChatEvent{Generation: c.generation, Message: &m})
}

func (c *Conversation) removeLocked(id string) {
	delete(c.arena, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Conversation) resetLocked(seed models.ChatMessage) {
	m := seed
	c.arena = map[string]*models.ChatMessage{m.ID: &m}
	c.order = []string{m.ID}
	c.lastActive = time.Now()
}

func (c *Conversation) messagesLocked() []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.arena[id])
	}
	return out
}

func (c *Conversation) touchLocked() {
	c.lastActive = time.Now()
}

// notifyLocked queues an event; flush delivers it once the lock is released.
func (c *Conversation) notifyLocked(eventType string, event models.ChatEvent) {
	if c.observer == nil {
		return
	}
	event.SessionID = c.id
	c.pending = append(c.pending, pendingEvent{eventType: eventType, event: event})
}

// flush delivers queued events in order. Only one goroutine delivers at a
// time; a caller that finds delivery in progress leaves its events to the
// current deliverer, which checks for more after releasing dispatchMu.
func (c *Conversation) flush() {
	if c.observer == nil {
		return
	}
	for {
		if !c.dispatchMu.TryLock() {
			return
		}
		c.mu.Lock()
		events := c.pending
		c.pending = nil
		c.mu.Unlock()

		for _, e := range events {
			c.observer.Notify(e.eventType, e.event)
		}
		c.dispatchMu.Unlock()

		c.mu.Lock()
		more := len(c.pending) > 0
		c.mu.Unlock()
		if !more {
			return
		}
	}
}
