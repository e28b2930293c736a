package types

import "time"

// AutoBackend is the backend value that asks the engine to pick a backend itself.
const AutoBackend = "auto"

// Default option values applied by adapters when the request leaves them unset.
const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
)

// CompletionRequest is the canonical internal representation of a completion request.
// All backend-specific formats are converted to/from this type.
type CompletionRequest struct {
	// Identity
	ID     string `json:"id"`
	UserID string `json:"user_id" validate:"required"`
	TeamID string `json:"team_id"`

	// Explicit target. Empty or "auto" means auto-route.
	Backend string `json:"backend,omitempty"`
	Model   string `json:"model,omitempty"`

	// Request content
	Prompt      string       `json:"prompt" validate:"required"`
	Context     []Message    `json:"context,omitempty" validate:"dive"`
	Attachments []Attachment `json:"attachments,omitempty" validate:"dive"`
	Options     Options      `json:"options"`
	Priority    Priority     `json:"priority,omitempty" validate:"omitempty,oneof=low normal high"`

	Metadata RequestMetadata `json:"metadata"`
}

// AutoRouted reports whether the request leaves backend selection to the router.
func (r *CompletionRequest) AutoRouted() bool {
	return r.Backend == "" || r.Backend == AutoBackend
}

// Options is the per-request option bag.
type Options struct {
	MaxTokens    int      `json:"max_tokens,omitempty" validate:"gte=0"`
	Temperature  *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	Stream       bool     `json:"stream,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

// MaxTokensOrDefault returns the requested max output tokens or DefaultMaxTokens.
func (o Options) MaxTokensOrDefault() int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return DefaultMaxTokens
}

// TemperatureOrDefault returns the requested temperature or DefaultTemperature.
func (o Options) TemperatureOrDefault() float64 {
	if o.Temperature != nil {
		return *o.Temperature
	}
	return DefaultTemperature
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// RequestMetadata records where a request came from.
type RequestMetadata struct {
	Command   string    `json:"command,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment is a file attached to a request. Only inline text content is forwarded to backends.
type Attachment struct {
	Name     string `json:"name" validate:"required"`
	MimeType string `json:"mime_type,omitempty"`
	URL      string `json:"url,omitempty" validate:"omitempty,url"`
	Content  string `json:"content,omitempty"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	Role    Role   `json:"role" validate:"oneof=user assistant system"`
	Content string `json:"content"`
}
