package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChatMessage creates a message with a fresh ID and timestamp.
func NewChatMessage(role Role, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// ChatState is the read-only snapshot of a conversation exposed to consumers.
type ChatState struct {
	SessionID uuid.UUID     `json:"session_id"`
	Messages  []ChatMessage `json:"messages"`
	IsOpen    bool          `json:"is_open"`
	IsLoading bool          `json:"is_loading"`
	Error     *string       `json:"error"`
}

// ChatSendRequest is the payload for posting a message to a chat session.
type ChatSendRequest struct {
	Content string `json:"content"`
}

// ChatRequest is the payload sent to the one-shot chat endpoint.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the reply from the AI chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// Chat stream events published to websocket subscribers.
type ChatEvent struct {
	SessionID  uuid.UUID    `json:"session_id"`
	Generation uint64       `json:"generation"`
	MessageID  string       `json:"message_id,omitempty"`
	Content    string       `json:"content,omitempty"`
	Message    *ChatMessage `json:"message,omitempty"`
	Error      string       `json:"error,omitempty"`
	Dropped    bool         `json:"dropped,omitempty"`
}
