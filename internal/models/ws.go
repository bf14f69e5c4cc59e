package models

import "github.com/google/uuid"

// WebSocket message types
const (
	WSChatMessage   = "chat_message"
	WSChatChunk     = "chat_chunk"
	WSChatComplete  = "chat_complete"
	WSChatError     = "chat_error"
	WSChatCancel    = "chat_cancel"
	WSChatClear     = "chat_clear"
	WSChatState     = "chat_state"
	WSAnalysisReady = "analysis_ready"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type AnalysisReadyEvent struct {
	PoemID uuid.UUID `json:"poem_id"`
	Model  string    `json:"model"`
	Cached bool      `json:"cached"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
