package gateway

import (
	"fmt"
	"strings"

	"github.com/af-corp/relay/internal/dispatch"
	"github.com/af-corp/relay/internal/quota"
	"github.com/af-corp/relay/internal/types"
)

func formatCompletion(resp *types.CompletionResponse) string {
	var b strings.Builder
	b.WriteString(resp.Text)
	fmt.Fprintf(&b, "\n\n_%s/%s · %d tokens · $%.4f · %dms_",
		resp.Backend, resp.Model, resp.Usage.TotalTokens, resp.Usage.CostUSD, resp.Performance.LatencyMs)
	if resp.Routing != nil {
		fmt.Fprintf(&b, "\n_auto-routed (confidence %.2f): %s_", resp.Routing.Confidence, resp.Routing.Reasoning)
	}
	return b.String()
}

func formatComparison(cmp *dispatch.Comparison) string {
	var b strings.Builder
	for _, r := range cmp.Results {
		fmt.Fprintf(&b, "*%s/%s* (%dms, $%.4f)\n%s\n\n",
			r.Backend, r.Model, r.Performance.LatencyMs, r.Usage.CostUSD, r.Text)
	}
	for _, f := range cmp.Failures {
		fmt.Fprintf(&b, "*%s/%s* failed: %s\n", f.Backend, f.Model, f.Error)
	}
	return strings.TrimSpace(b.String())
}

func formatModels(profiles []types.ProfileStatus) string {
	if len(profiles) == 0 {
		return "No backends are configured."
	}
	var b strings.Builder
	b.WriteString("Backends:\n")
	for _, p := range profiles {
		state := "available"
		if !p.Available {
			state = "not configured"
		}
		fmt.Fprintf(&b, "• %s (%s): %s [%s]\n", p.Name, state, strings.Join(p.Models, ", "),
			strings.Join(p.Capabilities.List(), ", "))
	}
	return strings.TrimSpace(b.String())
}

func formatStats(stats []types.BackendStats) string {
	if len(stats) == 0 {
		return "No requests have been served yet."
	}
	var b strings.Builder
	for _, s := range stats {
		fmt.Fprintf(&b, "• %s/%s: %d requests, %d tokens, $%.4f, avg %.0fms\n",
			s.Backend, s.Model, s.TotalRequests, s.TotalTokens, s.TotalCostUSD, s.AverageLatencyMs)
	}
	return strings.TrimSpace(b.String())
}

func formatUsage(plan types.Plan, usage quota.Usage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan: %s\n", plan.Name)
	fmt.Fprintf(&b, "Requests today: %d / %s\n", usage.DailyRequests, limitText(int64(plan.DailyRequests)))
	fmt.Fprintf(&b, "Team tokens this month: %d / %s", usage.MonthlyTokens, limitText(plan.MonthlyTokens))
	if len(plan.AllowedBackends) > 0 {
		fmt.Fprintf(&b, "\nBackends: %s", strings.Join(plan.AllowedBackends, ", "))
	}
	if plan.ExpiresAt != nil {
		fmt.Fprintf(&b, "\nExpires: %s", plan.ExpiresAt.Format("2006-01-02"))
	}
	return b.String()
}

func limitText(n int64) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}
