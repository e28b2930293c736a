package types

import "time"

// Plan is the usage allowance attached to a user's subscription.
// Zero limits mean unlimited; an empty AllowedBackends list allows every backend.
type Plan struct {
	Name            string     `json:"name"`
	DailyRequests   int        `json:"daily_requests"`
	MonthlyTokens   int64      `json:"monthly_tokens"`
	AllowedBackends []string   `json:"allowed_backends"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the plan has an expiry in the past.
func (p Plan) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// Caller identifies who a request is made on behalf of.
type Caller struct {
	UserID  string `json:"user_id"`
	TeamID  string `json:"team_id"`
	Channel string `json:"channel,omitempty"`
}
