package types

import "time"

// Weights are the factor weights used by the router. They sum to 1.0.
type Weights struct {
	Cost         float64 `json:"cost"`
	Performance  float64 `json:"performance"`
	Capability   float64 `json:"capability"`
	Availability float64 `json:"availability"`
}

// DefaultWeights are fixed: cost 0.3, performance 0.4, capability 0.2, availability 0.1.
var DefaultWeights = Weights{
	Cost:         0.3,
	Performance:  0.4,
	Capability:   0.2,
	Availability: 0.1,
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Cost + w.Performance + w.Capability + w.Availability
}

// RoutingDecision is produced once per auto-routed request and never persisted.
type RoutingDecision struct {
	Backend      string        `json:"backend"`
	Model        string        `json:"model"`
	Reasoning    string        `json:"reasoning"`
	Confidence   float64       `json:"confidence"`
	Alternatives []Alternative `json:"alternatives"`
	Weights      Weights       `json:"weights"`
}

type Alternative struct {
	Backend   string  `json:"backend"`
	Model     string  `json:"model"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// BackendStats holds rolling counters for one (backend, model) pair.
type BackendStats struct {
	Backend          string    `json:"backend"`
	Model            string    `json:"model"`
	TotalRequests    int64     `json:"total_requests"`
	TotalTokens      int64     `json:"total_tokens"`
	TotalCostUSD     float64   `json:"total_cost_usd"`
	AverageLatencyMs float64   `json:"average_latency_ms"`
	SuccessRate      float64   `json:"success_rate"`
	LastUsed         time.Time `json:"last_used"`
}

// ConversationContext is the retained history for one conversation key.
type ConversationContext struct {
	Messages    []Message `json:"messages"`
	TotalTokens int       `json:"total_tokens"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
