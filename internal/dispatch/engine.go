package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/relay/internal/config"
	"github.com/af-corp/relay/internal/router"
	"github.com/af-corp/relay/internal/telemetry"
	"github.com/af-corp/relay/internal/types"
)

// Engine is the single entry point for completions: it routes, calls the
// adapter, prices the result and feeds the statistics tracker.
type Engine struct {
	registry *router.Registry
	router   *router.Router
	stats    *router.StatsTracker
	health   *router.HealthMonitor
	cfg      func() *config.Config
	metrics  *telemetry.Metrics

	now func() time.Time
}

// NewEngine wires the engine. health, cfg and metrics may be nil.
func NewEngine(registry *router.Registry, rt *router.Router, stats *router.StatsTracker, health *router.HealthMonitor, cfg func() *config.Config, metrics *telemetry.Metrics) *Engine {
	return &Engine{
		registry: registry,
		router:   rt,
		stats:    stats,
		health:   health,
		cfg:      cfg,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Dispatch sends one request to one backend. There is no retry and no fallback
// to another backend on failure. req is never modified; a request without an
// ID is dispatched as a copy carrying a generated one.
func (e *Engine) Dispatch(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	if req.ID == "" {
		withID := *req
		withID.ID = uuid.NewString()
		req = &withID
	}

	backend, model := req.Backend, req.Model
	var decision *types.RoutingDecision
	if req.AutoRouted() {
		d, err := e.router.Route(req)
		if err != nil {
			slog.Warn("routing failed", "request_id", req.ID, "error", err)
			return nil, fmt.Errorf("route request: %w", err)
		}
		decision = d
		backend, model = d.Backend, d.Model
		e.metrics.RecordRouting(backend, model)
	}

	adapter, ok := e.registry.Adapter(backend)
	if !ok {
		return nil, &DispatchError{Backend: backend, Model: model, Cause: ErrBackendUnavailable}
	}
	profile, err := e.registry.Profile(backend)
	if err != nil {
		return nil, &DispatchError{Backend: backend, Model: model, Cause: ErrBackendUnavailable}
	}
	if model == "" {
		model = profile.DefaultModel()
	}

	if timeout := e.backendTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := e.now()
	raw, err := adapter.Execute(ctx, req, model)
	latencyMs := e.now().Sub(start).Milliseconds()
	if err != nil {
		e.recordFailure(req, backend, model, latencyMs, err)
		return nil, &DispatchError{Backend: backend, Model: model, Cause: err}
	}

	resp := e.finalize(req, profile, model, raw, latencyMs)
	resp.Routing = decision

	e.stats.Record(backend, model, resp, latencyMs)
	if s, ok := e.stats.Get(backend, model); ok {
		resp.Performance.Reliability = s.SuccessRate
	}
	if e.health != nil {
		e.health.RecordSuccess(backend)
	}

	e.metrics.RecordDispatch(telemetry.DispatchLabels{
		Backend:          backend,
		Model:            model,
		Status:           telemetry.StatusSuccess,
		LatencyMs:        float64(latencyMs),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		CostUSD:          resp.Usage.CostUSD,
	})

	slog.Info("dispatch completed",
		"request_id", req.ID,
		"user_id", req.UserID,
		"backend", backend,
		"model", model,
		"auto_routed", decision != nil,
		"latency_ms", latencyMs,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"cost_usd", resp.Usage.CostUSD,
	)

	return resp, nil
}

func (e *Engine) finalize(req *types.CompletionRequest, profile types.BackendProfile, model string, raw *types.RawCompletion, latencyMs int64) *types.CompletionResponse {
	total := raw.PromptTokens + raw.CompletionTokens

	var tps float64
	if latencyMs > 0 {
		tps = float64(total) / (float64(latencyMs) / 1000)
	}

	return &types.CompletionResponse{
		ID:        uuid.NewString(),
		RequestID: req.ID,
		Backend:   profile.Name,
		Model:     model,
		Text:      raw.Text,
		Usage: types.Usage{
			PromptTokens:     raw.PromptTokens,
			CompletionTokens: raw.CompletionTokens,
			TotalTokens:      total,
			CostUSD:          profile.Pricing.Cost(raw.PromptTokens, raw.CompletionTokens),
		},
		Performance: types.Performance{
			LatencyMs:       latencyMs,
			TokensPerSecond: tps,
		},
		CompletedAt: e.now(),
	}
}

func (e *Engine) recordFailure(req *types.CompletionRequest, backend, model string, latencyMs int64, err error) {
	if e.health != nil {
		e.health.RecordFailure(backend)
	}
	e.metrics.RecordDispatch(telemetry.DispatchLabels{
		Backend: backend,
		Model:   model,
		Status:  telemetry.StatusError,
	})
	slog.Error("dispatch failed",
		"request_id", req.ID,
		"user_id", req.UserID,
		"backend", backend,
		"model", model,
		"latency_ms", latencyMs,
		"error", err,
	)
}

func (e *Engine) backendTimeout() time.Duration {
	if e.cfg == nil {
		return 0
	}
	return e.cfg().Routing.BackendTimeout
}

// Profiles lists every registered backend with its availability.
func (e *Engine) Profiles() []types.ProfileStatus {
	return e.registry.ListProfiles()
}

// Stats returns a snapshot of every (backend, model) pair's counters.
func (e *Engine) Stats() []types.BackendStats {
	return e.stats.Snapshot()
}
