package quota

import (
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderLimitRequests     = "X-RateLimit-Limit-Requests"
	HeaderRemainingRequests = "X-RateLimit-Remaining-Requests"
	HeaderResetRequests     = "X-RateLimit-Reset-Requests"
	HeaderRetryAfter        = "Retry-After"
)

// SetHeaders writes the rate-limit headers for a decision. Retry-After is only
// set when the per-minute limit was hit.
func SetHeaders(h http.Header, d Decision) {
	if d.RateLimit.Limit <= 0 {
		return
	}
	h.Set(HeaderLimitRequests, strconv.FormatInt(d.RateLimit.Limit, 10))
	h.Set(HeaderRemainingRequests, strconv.FormatInt(d.RateLimit.Remaining, 10))
	h.Set(HeaderResetRequests, d.RateLimit.ResetAt.UTC().Format(time.RFC3339))
	if !d.RateLimit.Allowed {
		h.Set(HeaderRetryAfter, strconv.Itoa(int(d.RateLimit.RetryAfter.Seconds())))
	}
}
