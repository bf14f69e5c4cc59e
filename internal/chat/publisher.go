package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"shijian-backend/internal/models"
)

const publishTimeout = 2 * time.Second

// Channel returns the pub/sub channel carrying events for one session.
func Channel(sessionID uuid.UUID) string {
	return "chat_updates:" + sessionID.String()
}

// RedisPublisher fans conversation events out over redis pub/sub so every
// server instance holding a websocket for the session can forward them.
type RedisPublisher struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		logger: slog.Default().With("component", "chat_publisher"),
	}
}

func (p *RedisPublisher) Notify(eventType string, event models.ChatEvent) {
	data, err := json.Marshal(models.WSMessage{Type: eventType, Payload: event})
	if err != nil {
		p.logger.Error("marshal chat event", "type", eventType, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.client.Publish(ctx, Channel(event.SessionID), data).Err(); err != nil {
		p.logger.Warn("publish chat event", "type", eventType, "session_id", event.SessionID, "error", err)
	}
}
