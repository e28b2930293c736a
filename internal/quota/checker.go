// Package quota decides whether a caller may issue another request and keeps
// the usage counters those decisions are based on.
package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/af-corp/relay/internal/config"
	"github.com/af-corp/relay/internal/telemetry"
	"github.com/af-corp/relay/internal/types"
)

// PlanSource resolves the plan that applies to a caller.
type PlanSource interface {
	Plan(ctx context.Context, userID, teamID string) (types.Plan, error)
}

// DefaultPlan converts the configured fallback plan.
func DefaultPlan(cfg config.PlanConfig) types.Plan {
	return types.Plan{
		Name:            cfg.Name,
		DailyRequests:   cfg.DailyRequests,
		MonthlyTokens:   cfg.MonthlyTokens,
		AllowedBackends: append([]string(nil), cfg.AllowedBackends...),
	}
}

// StaticPlans gives every caller the configured default plan.
type StaticPlans struct {
	cfg func() config.QuotaConfig
}

func NewStaticPlans(cfg func() config.QuotaConfig) *StaticPlans {
	return &StaticPlans{cfg: cfg}
}

func (s *StaticPlans) Plan(context.Context, string, string) (types.Plan, error) {
	return DefaultPlan(s.cfg().DefaultPlan), nil
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Reason    string
	Plan      types.Plan
	Usage     Usage
	RateLimit LimitResult
}

// Checker combines plans, usage counters, the per-minute limiter and the
// admission policy.
type Checker struct {
	plans   PlanSource
	usage   *UsageCounter
	limiter *Limiter
	policy  *Policy
	cfg     func() config.QuotaConfig
	metrics *telemetry.Metrics
	now     func() time.Time
}

func NewChecker(plans PlanSource, usage *UsageCounter, limiter *Limiter, policy *Policy,
	cfg func() config.QuotaConfig, metrics *telemetry.Metrics) *Checker {
	return &Checker{
		plans:   plans,
		usage:   usage,
		limiter: limiter,
		policy:  policy,
		cfg:     cfg,
		metrics: metrics,
		now:     time.Now,
	}
}

// Check decides whether caller may send a request to backend. An empty or
// "auto" backend is never subject to the plan's backend restriction.
func (c *Checker) Check(ctx context.Context, caller types.Caller, backend string) Decision {
	cfg := c.cfg()
	if !cfg.Enabled {
		return Decision{Allowed: true, Plan: DefaultPlan(cfg.DefaultPlan)}
	}

	plan := c.resolvePlan(ctx, caller, cfg)
	rl := c.limiter.Check(ctx, "user:"+caller.UserID, int64(cfg.RequestsPerMinute), time.Minute)
	usage, err := c.usage.Get(ctx, caller)
	if err != nil {
		slog.Warn("usage lookup failed, assuming none", "user_id", caller.UserID, "error", err)
	}

	if backend == "auto" {
		backend = ""
	}
	now := c.now().UTC()
	input := PolicyInput{
		User:    PolicyUser{ID: caller.UserID, Team: caller.TeamID},
		Request: PolicyRequest{Backend: backend},
		Plan: PolicyPlan{
			Name:            plan.Name,
			DailyRequests:   plan.DailyRequests,
			MonthlyTokens:   plan.MonthlyTokens,
			AllowedBackends: append([]string{}, plan.AllowedBackends...),
			Expired:         plan.Expired(now),
		},
		Usage:     usage,
		RateLimit: PolicyRateLimit{Allowed: rl.Allowed, Limit: rl.Limit, Remaining: rl.Remaining},
		Time:      PolicyTime{Hour: now.Hour(), Day: now.Weekday().String()},
	}

	d := Decision{Plan: plan, Usage: usage, RateLimit: rl}
	allowed, reason, err := c.policy.Evaluate(ctx, input)
	if err != nil {
		slog.Error("quota policy evaluation failed", "user_id", caller.UserID, "error", err)
		d.Reason = "quota policy evaluation failed"
		c.metrics.RecordQuotaDenied("policy_error")
		return d
	}

	d.Allowed, d.Reason = allowed, reason
	if !allowed {
		slog.Warn("quota denied",
			"user_id", caller.UserID,
			"team_id", caller.TeamID,
			"backend", backend,
			"plan", plan.Name,
			"reason", reason,
		)
		c.metrics.RecordQuotaDenied(denialLabel(rl, reason))
	}
	return d
}

// Record counts one completed request and its tokens against the caller.
func (c *Checker) Record(ctx context.Context, caller types.Caller, tokens int) {
	if !c.cfg().Enabled {
		return
	}
	if err := c.usage.Record(ctx, caller, int64(tokens)); err != nil {
		slog.Warn("usage record failed", "user_id", caller.UserID, "error", err)
	}
}

// Usage reports the caller's plan and consumption without counting a request.
func (c *Checker) Usage(ctx context.Context, caller types.Caller) (types.Plan, Usage, error) {
	plan := c.resolvePlan(ctx, caller, c.cfg())
	usage, err := c.usage.Get(ctx, caller)
	return plan, usage, err
}

func (c *Checker) resolvePlan(ctx context.Context, caller types.Caller, cfg config.QuotaConfig) types.Plan {
	if c.plans == nil {
		return DefaultPlan(cfg.DefaultPlan)
	}
	plan, err := c.plans.Plan(ctx, caller.UserID, caller.TeamID)
	if err != nil {
		slog.Warn("plan lookup failed, using default plan", "user_id", caller.UserID, "error", err)
		return DefaultPlan(cfg.DefaultPlan)
	}
	return plan
}

func denialLabel(rl LimitResult, reason string) string {
	if !rl.Allowed {
		return "rate_limit"
	}
	if reason == "" {
		return "policy"
	}
	return "plan"
}
