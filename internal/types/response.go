package types

import "time"

// CompletionResponse is produced once per dispatch.
type CompletionResponse struct {
	ID          string      `json:"id"`
	RequestID   string      `json:"request_id"`
	Backend     string      `json:"backend"`
	Model       string      `json:"model"`
	Text        string      `json:"text"`
	Usage       Usage       `json:"usage"`
	Performance Performance `json:"performance"`
	CompletedAt time.Time   `json:"completed_at"`
	Error       string      `json:"error,omitempty"`

	// Routing is set when the backend was chosen by the router.
	Routing *RoutingDecision `json:"routing,omitempty"`
}

type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

type Performance struct {
	LatencyMs       int64   `json:"latency_ms"`
	TokensPerSecond float64 `json:"tokens_per_second"`
	Reliability     float64 `json:"reliability"`
}

// RawCompletion is what an adapter extracts from a backend response.
// Token counts are zero when the backend does not report them.
type RawCompletion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}
