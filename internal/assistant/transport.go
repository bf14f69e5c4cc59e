package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shijian-backend/internal/models"
)

// Transport presents the assistant as a connection: connect, register
// handlers, send a history, close. Every Send fires exactly one terminal
// handler (complete, error or cancel) after zero or more chunks.
type Transport struct {
	generator *Generator
	streamer  *Streamer
	handshake time.Duration
	logger    *slog.Logger

	mu         sync.Mutex
	onChunk    func(string)
	onComplete func()
	onError    func(error)
	onCancel   func()
	closed     bool
}

// Connect simulates the handshake with the assistant backend.
func (t *Transport) Connect(ctx context.Context) error {
	if err := sleep(ctx, t.handshake); err != nil {
		return err
	}
	t.logger.Debug("assistant transport connected")
	return nil
}

func (t *Transport) OnChunk(fn func(prefix string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChunk = fn
}

func (t *Transport) OnComplete(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onComplete = fn
}

func (t *Transport) OnError(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onError = fn
}

func (t *Transport) OnCancel(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCancel = fn
}

// Send generates a reply to history and streams it to the registered
// handlers. It returns after the terminal handler has run.
func (t *Transport) Send(ctx context.Context, history []models.ChatMessage) {
	err := t.run(ctx, history)
	switch {
	case err == nil:
		if fn := t.handlers().onComplete; fn != nil {
			fn()
		}
	case errors.Is(err, ErrCanceled):
		t.logger.Debug("assistant stream canceled")
		if fn := t.handlers().onCancel; fn != nil {
			fn()
		}
	default:
		t.logger.Warn("assistant stream failed", "error", err)
		if fn := t.handlers().onError; fn != nil {
			fn(err)
		}
	}
}

// Close drops every handler. Chunks of a stream still in flight are
// discarded afterwards.
func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.onChunk, t.onComplete, t.onError, t.onCancel = nil, nil, nil, nil
	t.logger.Debug("assistant transport closed")
}

func (t *Transport) run(ctx context.Context, history []models.ChatMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("assistant stream panicked: %v", r)
		}
	}()

	reply, err := t.generator.Respond(history)
	if err != nil {
		return err
	}
	return t.streamer.Stream(ctx, reply, func(prefix string) {
		if fn := t.handlers().onChunk; fn != nil {
			fn(prefix)
		}
	})
}

type handlerSet struct {
	onChunk    func(string)
	onComplete func()
	onError    func(error)
	onCancel   func()
}

func (t *Transport) handlers() handlerSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return handlerSet{
		onChunk:    t.onChunk,
		onComplete: t.onComplete,
		onError:    t.onError,
		onCancel:   t.onCancel,
	}
}
