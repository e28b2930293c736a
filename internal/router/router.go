package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/af-corp/relay/internal/types"
)

var ErrNoBackendsAvailable = errors.New("no backends available")

const (
	// costCeiling is the combined per-1K price at which the cost factor reaches zero.
	costCeiling        = 0.2
	neutralPerformance = 0.5
	maxAlternatives    = 3
)

// Router scores every available (backend, model) pair and picks the best one.
type Router struct {
	registry *Registry
	stats    *StatsTracker
	weights  types.Weights
}

func NewRouter(registry *Registry, stats *StatsTracker) *Router {
	return &Router{
		registry: registry,
		stats:    stats,
		weights:  types.DefaultWeights,
	}
}

// factors holds the four normalized factors for one candidate pair.
type factors struct {
	cost         float64
	performance  float64
	capability   float64
	availability float64
}

type candidate struct {
	backend string
	model   string
	factors factors
	score   float64
}

// Route picks a backend and model for a request that named neither.
func (r *Router) Route(req *types.CompletionRequest) (*types.RoutingDecision, error) {
	var candidates []candidate
	for _, p := range r.registry.Available() {
		for _, model := range p.Models {
			f := r.factorsFor(req, p, model)
			candidates = append(candidates, candidate{
				backend: p.Name,
				model:   model,
				factors: f,
				score:   r.score(f),
			})
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoBackendsAvailable
	}

	// Stable so equal scores keep registry order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	top := candidates[0]
	decision := &types.RoutingDecision{
		Backend:    top.backend,
		Model:      top.model,
		Reasoning:  r.reasoning(top.factors),
		Confidence: clamp01(top.score),
		Weights:    r.weights,
	}
	for _, c := range candidates[1:min(len(candidates), maxAlternatives+1)] {
		decision.Alternatives = append(decision.Alternatives, types.Alternative{
			Backend:   c.backend,
			Model:     c.model,
			Score:     c.score,
			Reasoning: r.reasoning(c.factors),
		})
	}
	return decision, nil
}

func (r *Router) factorsFor(req *types.CompletionRequest, p types.BackendProfile, model string) factors {
	f := factors{
		cost:        1 - p.Pricing.Combined()/costCeiling,
		performance: neutralPerformance,
		capability:  0.5,
	}

	if s, ok := r.stats.Get(p.Name, model); ok {
		// A zero latency estimate divides to +Inf and clamps to 1.
		f.performance = min(1000/s.AverageLatencyMs, 1)
	}

	if len(req.Attachments) > 0 && p.Capabilities.DocumentAnalysis {
		f.capability += 0.3
	}
	if strings.Contains(req.Prompt, "code") && p.Capabilities.Code {
		f.capability += 0.2
	}

	if r.registry.IsAvailable(p.Name) {
		f.availability = 1
	}
	return f
}

func (r *Router) score(f factors) float64 {
	return r.weights.Cost*f.cost +
		r.weights.Performance*f.performance +
		r.weights.Capability*f.capability +
		r.weights.Availability*f.availability
}

func (r *Router) reasoning(f factors) string {
	return fmt.Sprintf("cost %.1f%%, performance %.1f%%, capability %.1f%%, availability %.1f%%",
		r.weights.Cost*f.cost*100,
		r.weights.Performance*f.performance*100,
		r.weights.Capability*f.capability*100,
		r.weights.Availability*f.availability*100,
	)
}

func clamp01(v float64) float64 {
	return max(0, min(v, 1))
}
