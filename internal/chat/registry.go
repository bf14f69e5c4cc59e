package chat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"shijian-backend/internal/assistant"
)

// AssistantDialer opens a fresh assistant transport for every send.
func AssistantDialer(svc *assistant.Service) Dialer {
	return DialerFunc(func() Transport { return svc.NewTransport() })
}

// Registry keeps the live conversations of the process and evicts the ones
// that have been idle longer than ttl.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Conversation
	dialer   Dialer
	observer Observer
	ttl      time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

func NewRegistry(dialer Dialer, observer Observer, ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Conversation),
		dialer:   dialer,
		observer: observer,
		ttl:      ttl,
		stopChan: make(chan struct{}),
		logger:   slog.Default().With("component", "chat_registry"),
	}
}

// Start runs the idle janitor until Stop is called. A zero ttl disables it.
func (r *Registry) Start() {
	if r.ttl <= 0 {
		return
	}
	interval := r.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopChan:
				return
			case now := <-ticker.C:
				if n := r.evictIdle(now); n > 0 {
					r.logger.Info("evicted idle chat sessions", "count", n)
				}
			}
		}
	}()
}

// Stop halts the janitor and cancels every reply in flight.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, conv := range r.sessions {
		conv.Terminate()
		delete(r.sessions, id)
	}
}

func (r *Registry) Create(owner uuid.UUID) *Conversation {
	conv := NewConversation(uuid.New(), r.dialer, r.observer)
	conv.owner = owner

	r.mu.Lock()
	r.sessions[conv.id] = conv
	r.mu.Unlock()

	r.logger.Debug("chat session created", "session_id", conv.id, "owner", owner)
	return conv
}

func (r *Registry) Get(id uuid.UUID) (*Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.sessions[id]
	return conv, ok
}

func (r *Registry) Delete(id uuid.UUID) bool {
	r.mu.Lock()
	conv, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		conv.Terminate()
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// evictIdle drops sessions idle for longer than ttl. Sessions with a reply
// in flight are kept. Conversations are inspected without the registry lock
// so a busy conversation cannot stall lookups of other sessions.
func (r *Registry) evictIdle(now time.Time) int {
	r.mu.RLock()
	snapshot := make(map[uuid.UUID]*Conversation, len(r.sessions))
	for id, conv := range r.sessions {
		snapshot[id] = conv
	}
	r.mu.RUnlock()

	var stale []*Conversation
	for id, conv := range snapshot {
		last, loading := conv.IdleSince()
		if loading || now.Sub(last) < r.ttl {
			continue
		}
		r.mu.Lock()
		if r.sessions[id] == conv {
			delete(r.sessions, id)
			stale = append(stale, conv)
		}
		r.mu.Unlock()
	}

	for _, conv := range stale {
		conv.Terminate()
	}
	return len(stale)
}
