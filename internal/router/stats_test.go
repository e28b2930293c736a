package router

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/af-corp/relay/internal/types"
)

func resp(tokens int, cost float64) *types.CompletionResponse {
	return &types.CompletionResponse{Usage: types.Usage{TotalTokens: tokens, CostUSD: cost}}
}

func TestStatsTracker_FirstSampleInitializes(t *testing.T) {
	st := NewStatsTracker()
	st.Record("openai", "gpt-4", resp(30, 0.002), 450)

	s, ok := st.Get("openai", "gpt-4")
	if !ok {
		t.Fatal("expected stats after first record")
	}
	if s.TotalRequests != 1 || s.TotalTokens != 30 || s.AverageLatencyMs != 450 || s.SuccessRate != 1.0 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if s.LastUsed.IsZero() {
		t.Error("expected LastUsed to be set")
	}
}

func TestStatsTracker_TwoPointAverage(t *testing.T) {
	st := NewStatsTracker()
	st.Record("a", "m", resp(10, 0.1), 100)
	st.Record("a", "m", resp(20, 0.2), 300)

	s, _ := st.Get("a", "m")
	if s.AverageLatencyMs != 200 {
		t.Errorf("after two samples avg = %v, want (100+300)/2 = 200", s.AverageLatencyMs)
	}

	st.Record("a", "m", resp(5, 0.05), 600)
	s, _ = st.Get("a", "m")
	// ((100+300)/2 + 600)/2, not the true mean of 333.3
	if s.AverageLatencyMs != 400 {
		t.Errorf("after three samples avg = %v, want 400", s.AverageLatencyMs)
	}
	if s.TotalRequests != 3 || s.TotalTokens != 35 {
		t.Errorf("unexpected totals: %+v", s)
	}
	if math.Abs(s.TotalCostUSD-0.35) > 1e-12 {
		t.Errorf("TotalCostUSD = %v, want 0.35", s.TotalCostUSD)
	}
	if s.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %v, want 1.0", s.SuccessRate)
	}
}

func TestStatsTracker_PairsAreIndependent(t *testing.T) {
	st := NewStatsTracker()
	st.Record("a", "m1", resp(1, 0), 100)

	if _, ok := st.Get("a", "m2"); ok {
		t.Error("expected no stats for a/m2")
	}
	if _, ok := st.Get("b", "m1"); ok {
		t.Error("expected no stats for b/m1")
	}
}

func TestStatsTracker_NilResponse(t *testing.T) {
	st := NewStatsTracker()
	st.Record("a", "m", nil, 50)
	s, ok := st.Get("a", "m")
	if !ok || s.TotalTokens != 0 || s.TotalCostUSD != 0 {
		t.Errorf("unexpected stats for nil response: %+v", s)
	}
}

func TestStatsTracker_SnapshotSorted(t *testing.T) {
	st := NewStatsTracker()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return fixed }

	st.Record("openai", "gpt-4", resp(1, 0), 1)
	st.Record("anthropic", "claude-3-opus", resp(1, 0), 1)
	st.Record("anthropic", "claude-3-haiku", resp(1, 0), 1)

	snap := st.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	want := [][2]string{{"anthropic", "claude-3-haiku"}, {"anthropic", "claude-3-opus"}, {"openai", "gpt-4"}}
	for i, w := range want {
		if snap[i].Backend != w[0] || snap[i].Model != w[1] {
			t.Errorf("snap[%d] = %s/%s, want %s/%s", i, snap[i].Backend, snap[i].Model, w[0], w[1])
		}
		if !snap[i].LastUsed.Equal(fixed) {
			t.Errorf("snap[%d].LastUsed = %v", i, snap[i].LastUsed)
		}
	}

	// Snapshot is a copy.
	snap[0].TotalRequests = 99
	if s, _ := st.Get("anthropic", "claude-3-haiku"); s.TotalRequests != 1 {
		t.Error("mutating the snapshot changed tracker state")
	}
}

func TestStatsTracker_ConcurrentRecord(t *testing.T) {
	st := NewStatsTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Record("a", "m", resp(2, 0.01), 100)
		}()
	}
	wg.Wait()

	s, _ := st.Get("a", "m")
	if s.TotalRequests != 50 || s.TotalTokens != 100 {
		t.Errorf("unexpected totals after concurrent records: %+v", s)
	}
}
