package assistant

import (
	"context"
	"log/slog"
	"time"

	"shijian-backend/internal/models"
)

const personaPrompt = "你是一位专业的诗词鉴赏助手。请用专业但易懂的语言回答用户问题。\n\n用户问题："

type Options struct {
	Catalog *Catalog
	Rand    Rand
	Stream  StreamConfig
	Logger  *slog.Logger
}

// Service is the simulated poetry assistant. Construct one per process and
// pass it to whatever needs it.
type Service struct {
	generator *Generator
	streamer  *Streamer
	handshake time.Duration
	logger    *slog.Logger
}

func NewService(opts Options) *Service {
	rnd := opts.Rand
	if rnd == nil {
		rnd = DefaultRand()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		generator: NewGenerator(opts.Catalog, rnd),
		streamer:  NewStreamer(opts.Stream, rnd),
		handshake: opts.Stream.HandshakeDelay,
		logger:    logger.With("component", "assistant"),
	}
}

// NewTransport opens a fresh streaming connection.
func (s *Service) NewTransport() *Transport {
	return &Transport{
		generator: s.generator,
		streamer:  s.streamer,
		handshake: s.handshake,
		logger:    s.logger,
	}
}

// Chat runs a full stream and returns the final text.
func (s *Service) Chat(ctx context.Context, history []models.ChatMessage) (string, error) {
	tr := s.NewTransport()
	defer tr.Close()

	var reply string
	var failure error
	tr.OnChunk(func(prefix string) { reply = prefix })
	tr.OnError(func(err error) { failure = err })
	tr.OnCancel(func() { failure = ErrCanceled })

	tr.Send(ctx, history)
	if failure != nil {
		return "", failure
	}
	return reply, nil
}

// SimpleChat asks a single question in the assistant persona. Any failure
// is reported as ErrUnavailable.
func (s *Service) SimpleChat(ctx context.Context, message string) (string, error) {
	history := []models.ChatMessage{
		models.NewChatMessage(models.RoleUser, personaPrompt+message),
	}
	reply, err := s.Chat(ctx, history)
	if err != nil {
		s.logger.Warn("assistant unavailable", "error", err)
		return "", ErrUnavailable
	}
	return reply, nil
}
