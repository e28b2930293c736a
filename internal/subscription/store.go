// Package subscription persists per-user plans and the usage ledger in
// PostgreSQL, with plan lookups cached in Redis.
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/relay/internal/types"
)

const (
	redisCacheTTL  = 5 * time.Minute
	redisKeyPrefix = "relay:sub:"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Subscription binds a plan to a user within a team.
type Subscription struct {
	UserID string
	TeamID string
	Plan   types.Plan
}

// Store implements quota.PlanSource with PostgreSQL plus a Redis cache.
// Callers without a subscription row get the fallback plan.
type Store struct {
	db       DB
	redis    *redis.Client
	fallback func() types.Plan
}

func NewStore(db DB, rdb *redis.Client, fallback func() types.Plan) *Store {
	return &Store{db: db, redis: rdb, fallback: fallback}
}

func cacheKey(userID, teamID string) string {
	return redisKeyPrefix + teamID + ":" + userID
}

func (s *Store) Plan(ctx context.Context, userID, teamID string) (types.Plan, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, cacheKey(userID, teamID)).Bytes()
		if err == nil {
			var plan types.Plan
			if err := json.Unmarshal(cached, &plan); err == nil {
				return plan, nil
			}
		}
	}

	plan, err := s.lookupDB(ctx, userID, teamID)
	if err != nil {
		return types.Plan{}, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(plan); err == nil {
			s.redis.Set(ctx, cacheKey(userID, teamID), data, redisCacheTTL)
		}
	}
	return plan, nil
}

func (s *Store) lookupDB(ctx context.Context, userID, teamID string) (types.Plan, error) {
	if s.db == nil {
		return s.fallback(), nil
	}

	var (
		plan            types.Plan
		allowedBackends []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT plan, daily_requests, monthly_tokens, allowed_backends, expires_at
		FROM subscriptions
		WHERE user_id = $1 AND team_id = $2
	`, userID, teamID).Scan(
		&plan.Name,
		&plan.DailyRequests,
		&plan.MonthlyTokens,
		&allowedBackends,
		&plan.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.fallback(), nil
	}
	if err != nil {
		return types.Plan{}, fmt.Errorf("query subscriptions: %w", err)
	}

	if len(allowedBackends) > 0 {
		if err := json.Unmarshal(allowedBackends, &plan.AllowedBackends); err != nil {
			return types.Plan{}, fmt.Errorf("decode allowed_backends: %w", err)
		}
	}
	return plan, nil
}

// Upsert creates or replaces a subscription and drops its cached plan.
func (s *Store) Upsert(ctx context.Context, sub Subscription) error {
	if s.db == nil {
		return errors.New("subscription store has no database")
	}
	backends := sub.Plan.AllowedBackends
	if backends == nil {
		backends = []string{}
	}
	allowed, err := json.Marshal(backends)
	if err != nil {
		return fmt.Errorf("encode allowed_backends: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO subscriptions (user_id, team_id, plan, daily_requests, monthly_tokens, allowed_backends, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (team_id, user_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			daily_requests = EXCLUDED.daily_requests,
			monthly_tokens = EXCLUDED.monthly_tokens,
			allowed_backends = EXCLUDED.allowed_backends,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`, sub.UserID, sub.TeamID, sub.Plan.Name, sub.Plan.DailyRequests, sub.Plan.MonthlyTokens, allowed, sub.Plan.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.Del(ctx, cacheKey(sub.UserID, sub.TeamID)).Err(); err != nil {
			slog.Warn("subscription cache invalidation failed", "user_id", sub.UserID, "error", err)
		}
	}
	return nil
}
