package router

import (
	"sort"
	"sync"
	"time"

	"github.com/af-corp/relay/internal/types"
)

type statsKey struct {
	backend string
	model   string
}

// StatsTracker keeps rolling counters per (backend, model) pair for the
// lifetime of the process.
type StatsTracker struct {
	mu    sync.RWMutex
	stats map[statsKey]*types.BackendStats
	now   func() time.Time
}

func NewStatsTracker() *StatsTracker {
	return &StatsTracker{
		stats: make(map[statsKey]*types.BackendStats),
		now:   time.Now,
	}
}

// Record folds one successful observation into the pair's counters.
// The latency estimate is the mean of the previous estimate and the new sample,
// not the mean of all samples.
func (t *StatsTracker) Record(backend, model string, resp *types.CompletionResponse, latencyMs int64) {
	var tokens int64
	var cost float64
	if resp != nil {
		tokens = int64(resp.Usage.TotalTokens)
		cost = resp.Usage.CostUSD
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := statsKey{backend, model}
	s, ok := t.stats[key]
	if !ok {
		t.stats[key] = &types.BackendStats{
			Backend:          backend,
			Model:            model,
			TotalRequests:    1,
			TotalTokens:      tokens,
			TotalCostUSD:     cost,
			AverageLatencyMs: float64(latencyMs),
			SuccessRate:      1.0,
			LastUsed:         t.now(),
		}
		return
	}

	s.TotalRequests++
	s.TotalTokens += tokens
	s.TotalCostUSD += cost
	s.AverageLatencyMs = (s.AverageLatencyMs + float64(latencyMs)) / 2
	s.LastUsed = t.now()
}

func (t *StatsTracker) Get(backend, model string) (types.BackendStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.stats[statsKey{backend, model}]
	if !ok {
		return types.BackendStats{}, false
	}
	return *s, true
}

// Snapshot returns a copy of every pair's stats sorted by backend then model.
func (t *StatsTracker) Snapshot() []types.BackendStats {
	t.mu.RLock()
	out := make([]types.BackendStats, 0, len(t.stats))
	for _, s := range t.stats {
		out = append(out, *s)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Backend != out[j].Backend {
			return out[i].Backend < out[j].Backend
		}
		return out[i].Model < out[j].Model
	})
	return out
}
