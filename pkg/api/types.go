package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/davin/traceo/pkg/loop"
	"github.com/davin/traceo/pkg/session"
)

// ServerOptions holds HTTP server configuration
type ServerOptions struct {
	Host               string
	Port               int
	RateLimitPerMinute int
	ShutdownTimeout    time.Duration
}

// ConversationRequest is the POST /conversation body.
type ConversationRequest struct {
	Messages           []loop.Message `json:"messages"`
	SystemPromptSuffix string         `json:"system_prompt_suffix,omitempty"`
	Provider           string         `json:"provider,omitempty"`
	Model              string         `json:"model,omitempty"`
	APIKey             string         `json:"api_key"`

	OnlyNMostRecentImages int `json:"only_n_most_recent_images,omitempty"`
	MaxTokens             int `json:"max_tokens,omitempty"`
}

// ConversationResponse is returned by POST /conversation.
type ConversationResponse struct {
	SessionID uuid.UUID      `json:"session_id"`
	Status    session.Status `json:"status"`
	Messages  []loop.Message `json:"messages"`
}

// SessionListResponse is returned by GET /conversations.
type SessionListResponse struct {
	Sessions []session.Info `json:"sessions"`
}

// StepEvent is one websocket stream frame.
type StepEvent struct {
	SessionID uuid.UUID    `json:"session_id"`
	Step      session.Step `json:"step"`
	Timestamp int64        `json:"timestamp"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status    string  `json:"status"`
	Uptime    float64 `json:"uptime"`
	Sessions  int     `json:"sessions"`
	Timestamp int64   `json:"timestamp"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
