package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/relay/internal/types"
)

// Usage is a caller's consumption in the current periods.
type Usage struct {
	DailyRequests int64 `json:"daily_requests"`
	MonthlyTokens int64 `json:"monthly_tokens"`
}

// UsageCounter tracks daily requests per user and monthly tokens per team,
// or per user for callers without a team.
type UsageCounter struct {
	rdb *redis.Client
	now func() time.Time
}

// NewUsageCounter creates a counter. If rdb is nil, reads return zero usage
// and writes are dropped.
func NewUsageCounter(rdb *redis.Client) *UsageCounter {
	return &UsageCounter{rdb: rdb, now: time.Now}
}

func dailyKey(userID string, now time.Time) string {
	return fmt.Sprintf("relay:usage:user:%s:%s", userID, now.UTC().Format("2006-01-02"))
}

// monthlyKey pools tokens per team. Callers without a team get their own
// monthly counter.
func monthlyKey(caller types.Caller, now time.Time) string {
	month := now.UTC().Format("2006-01")
	if caller.TeamID == "" {
		return fmt.Sprintf("relay:usage:user:%s:%s", caller.UserID, month)
	}
	return fmt.Sprintf("relay:usage:team:%s:%s", caller.TeamID, month)
}

// Get returns the current counters for the caller.
func (u *UsageCounter) Get(ctx context.Context, caller types.Caller) (Usage, error) {
	if u.rdb == nil {
		return Usage{}, nil
	}
	now := u.now()
	var daily, monthly *redis.StringCmd
	_, err := u.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		daily = pipe.Get(ctx, dailyKey(caller.UserID, now))
		monthly = pipe.Get(ctx, monthlyKey(caller, now))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Usage{}, fmt.Errorf("read usage: %w", err)
	}

	var out Usage
	out.DailyRequests, _ = daily.Int64()
	out.MonthlyTokens, _ = monthly.Int64()
	return out, nil
}

// Record adds one request and the given tokens to the caller's counters.
func (u *UsageCounter) Record(ctx context.Context, caller types.Caller, tokens int64) error {
	if u.rdb == nil {
		return nil
	}

	now := u.now().UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	endOfMonth := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	dk, mk := dailyKey(caller.UserID, now), monthlyKey(caller, now)

	// Counters outlive their period by an hour so late reads near the boundary still see them.
	pipe := u.rdb.Pipeline()
	pipe.Incr(ctx, dk)
	pipe.Expire(ctx, dk, endOfDay.Sub(now)+time.Hour)
	if tokens > 0 {
		pipe.IncrBy(ctx, mk, tokens)
		pipe.Expire(ctx, mk, endOfMonth.Sub(now)+time.Hour)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}
