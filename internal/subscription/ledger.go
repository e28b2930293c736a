package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/af-corp/relay/internal/types"
)

// UsageRecord is one row of the usage ledger.
type UsageRecord struct {
	RequestID        string
	UserID           string
	TeamID           string
	Channel          string
	Command          string
	Backend          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	LatencyMs        int64
	CreatedAt        time.Time
}

// NewUsageRecord builds a ledger row from a completed dispatch.
func NewUsageRecord(req *types.CompletionRequest, resp *types.CompletionResponse) UsageRecord {
	return UsageRecord{
		RequestID:        resp.RequestID,
		UserID:           req.UserID,
		TeamID:           req.TeamID,
		Channel:          req.Metadata.Channel,
		Command:          req.Metadata.Command,
		Backend:          resp.Backend,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		CostUSD:          resp.Usage.CostUSD,
		LatencyMs:        resp.Performance.LatencyMs,
		CreatedAt:        resp.CompletedAt,
	}
}

// RecordUsage writes the row in the background. Failures are logged and dropped.
func (s *Store) RecordUsage(rec UsageRecord) {
	if s.db == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.insertUsage(ctx, rec); err != nil {
			slog.Warn("usage ledger insert failed", "request_id", rec.RequestID, "error", err)
		}
	}()
}

func (s *Store) insertUsage(ctx context.Context, rec UsageRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO usage_records (request_id, user_id, team_id, channel, command, backend, model,
		                           prompt_tokens, completion_tokens, cost_usd, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rec.RequestID, rec.UserID, rec.TeamID, rec.Channel, rec.Command, rec.Backend, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.CostUSD, rec.LatencyMs, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}
