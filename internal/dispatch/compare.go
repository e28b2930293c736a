package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/af-corp/relay/internal/telemetry"
	"github.com/af-corp/relay/internal/types"
)

// Target is one fixed (backend, model) pair in a comparison batch.
// An empty model means the backend's default model.
type Target struct {
	Backend string `json:"backend" validate:"required"`
	Model   string `json:"model,omitempty"`
}

// Comparison holds the outcome of one batch. Results and Failures are in target order.
type Comparison struct {
	Results  []*types.CompletionResponse `json:"results"`
	Failures []*types.CompletionResponse `json:"failures,omitempty"`
}

type compareOutcome struct {
	index int
	resp  *types.CompletionResponse
	err   error
}

// Compare dispatches base to every target concurrently and waits for all of them.
// Individual failures are collected, not returned; the batch fails only when
// no target succeeds.
func (e *Engine) Compare(ctx context.Context, base *types.CompletionRequest, targets []Target) (*Comparison, error) {
	if len(targets) == 0 {
		return nil, errors.Join(ErrComparisonFailed, ErrNoBackendsAvailable)
	}

	timeout := e.compareTimeout()
	p := pool.NewWithResults[compareOutcome]().WithMaxGoroutines(len(targets))
	for i, t := range targets {
		req := *base
		req.ID = uuid.NewString()
		req.Backend = t.Backend
		req.Model = t.Model

		p.Go(func() compareOutcome {
			tctx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				tctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			resp, err := e.Dispatch(tctx, &req)
			if err != nil {
				return compareOutcome{index: i, resp: e.failedResponse(&req, err), err: err}
			}
			return compareOutcome{index: i, resp: resp}
		})
	}

	outcomes := p.Wait()
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })

	cmp := &Comparison{}
	var causes []error
	for _, o := range outcomes {
		if o.err != nil {
			slog.Warn("comparison target failed",
				"backend", o.resp.Backend,
				"model", o.resp.Model,
				"error", o.err,
			)
			cmp.Failures = append(cmp.Failures, o.resp)
			causes = append(causes, o.err)
			continue
		}
		cmp.Results = append(cmp.Results, o.resp)
	}

	switch {
	case len(cmp.Results) == 0:
		e.metrics.RecordCompare(telemetry.CompareFailed)
		return cmp, errors.Join(append([]error{ErrComparisonFailed}, causes...)...)
	case len(cmp.Failures) > 0:
		e.metrics.RecordCompare(telemetry.ComparePartial)
	default:
		e.metrics.RecordCompare(telemetry.CompareComplete)
	}
	return cmp, nil
}

func (e *Engine) failedResponse(req *types.CompletionRequest, err error) *types.CompletionResponse {
	model := req.Model
	if model == "" {
		if p, perr := e.registry.Profile(req.Backend); perr == nil {
			model = p.DefaultModel()
		}
	}
	return &types.CompletionResponse{
		ID:          uuid.NewString(),
		RequestID:   req.ID,
		Backend:     req.Backend,
		Model:       model,
		CompletedAt: e.now(),
		Error:       err.Error(),
	}
}

// CompareTargets returns the configured comparison targets, or the default
// model of every available backend when none are configured.
func (e *Engine) CompareTargets() []Target {
	if e.cfg != nil {
		if configured := e.cfg().Routing.CompareTargets; len(configured) > 0 {
			out := make([]Target, 0, len(configured))
			for _, t := range configured {
				out = append(out, Target{Backend: t.Backend, Model: t.Model})
			}
			return out
		}
	}

	var out []Target
	for _, p := range e.registry.Available() {
		out = append(out, Target{Backend: p.Name, Model: p.DefaultModel()})
	}
	return out
}

func (e *Engine) compareTimeout() time.Duration {
	if e.cfg == nil {
		return 0
	}
	return e.cfg().Routing.CompareTimeout
}
