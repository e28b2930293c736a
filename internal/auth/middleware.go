package auth

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/af-corp/relay/internal/httputil"
)

const maxSignedBody = 1 << 20

// Middleware returns a chi middleware that rejects requests without a valid
// signature. The body is restored for downstream handlers. When no secret is
// configured every request passes.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			reqID := w.Header().Get("X-Request-ID")

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
			if err != nil {
				httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
				return
			}
			if len(body) > maxSignedBody {
				httputil.WriteError(w, reqID, http.StatusRequestEntityTooLarge, "invalid_request_error", "body_too_large", "Request body too large")
				return
			}

			if err := v.Verify(r.Header.Get(HeaderTimestamp), r.Header.Get(HeaderSignature), body); err != nil {
				slog.Warn("signature verification failed", "request_id", reqID, "path", r.URL.Path, "error", err)
				httputil.WriteAuthError(w, reqID, "Invalid request signature")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
