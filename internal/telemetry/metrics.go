package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for relay. A nil *Metrics records nothing.
type Metrics struct {
	DispatchTotal     *prometheus.CounterVec
	DispatchLatencyMs *prometheus.HistogramVec
	TokensTotal       *prometheus.CounterVec
	CostUSDTotal      *prometheus.CounterVec
	RoutingTotal      *prometheus.CounterVec
	CompareTotal      *prometheus.CounterVec
	QuotaDeniedTotal  *prometheus.CounterVec
	CommandTotal      *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DispatchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_dispatch_total",
			Help: "Total number of dispatches by backend, model and outcome.",
		}, []string{"backend", "model", "status"}),

		DispatchLatencyMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_dispatch_latency_ms",
			Help:    "Backend call latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"backend", "model"}),

		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_tokens_total",
			Help: "Total tokens processed.",
		}, []string{"backend", "model", "direction"}),

		CostUSDTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_cost_usd_total",
			Help: "Estimated total cost in USD.",
		}, []string{"backend", "model"}),

		RoutingTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_routing_decisions_total",
			Help: "Auto-routing decisions by chosen backend and model.",
		}, []string{"backend", "model"}),

		CompareTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_compare_total",
			Help: "Comparison batches by outcome.",
		}, []string{"outcome"}),

		QuotaDeniedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_quota_denied_total",
			Help: "Requests rejected by the quota check.",
		}, []string{"reason"}),

		CommandTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_command_total",
			Help: "Slash commands handled.",
		}, []string{"command"}),
	}
}

const (
	StatusSuccess = "success"
	StatusError   = "error"

	CompareComplete = "complete"
	ComparePartial  = "partial"
	CompareFailed   = "failed"
)

// DispatchLabels holds the values recorded for one dispatch.
type DispatchLabels struct {
	Backend          string
	Model            string
	Status           string
	LatencyMs        float64
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// RecordDispatch records metrics for a finished dispatch.
func (m *Metrics) RecordDispatch(labels DispatchLabels) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(labels.Backend, labels.Model, labels.Status).Inc()
	if labels.Status != StatusSuccess {
		return
	}

	m.DispatchLatencyMs.WithLabelValues(labels.Backend, labels.Model).Observe(labels.LatencyMs)

	if labels.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Backend, labels.Model, "prompt").Add(float64(labels.PromptTokens))
	}
	if labels.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Backend, labels.Model, "completion").Add(float64(labels.CompletionTokens))
	}
	if labels.CostUSD > 0 {
		m.CostUSDTotal.WithLabelValues(labels.Backend, labels.Model).Add(labels.CostUSD)
	}
}

func (m *Metrics) RecordRouting(backend, model string) {
	if m == nil {
		return
	}
	m.RoutingTotal.WithLabelValues(backend, model).Inc()
}

func (m *Metrics) RecordCompare(outcome string) {
	if m == nil {
		return
	}
	m.CompareTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordQuotaDenied(reason string) {
	if m == nil {
		return
	}
	m.QuotaDeniedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordCommand(command string) {
	if m == nil {
		return
	}
	m.CommandTotal.WithLabelValues(command).Inc()
}
