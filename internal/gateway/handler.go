// Package gateway exposes the dispatch engine over HTTP: a JSON API, a
// signed slash-command endpoint and read-only observability routes.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/af-corp/relay/internal/conversation"
	"github.com/af-corp/relay/internal/dispatch"
	"github.com/af-corp/relay/internal/httputil"
	"github.com/af-corp/relay/internal/quota"
	"github.com/af-corp/relay/internal/router"
	"github.com/af-corp/relay/internal/subscription"
	"github.com/af-corp/relay/internal/telemetry"
	"github.com/af-corp/relay/internal/types"
)

const maxRequestBody = 1 << 20

// UsageLedger receives one record per completed dispatch.
type UsageLedger interface {
	RecordUsage(rec subscription.UsageRecord)
}

// Handler holds dependencies for the gateway HTTP handlers.
type Handler struct {
	engine        *dispatch.Engine
	conversations conversation.Store
	quota         *quota.Checker
	ledger        UsageLedger
	health        *router.HealthMonitor
	metrics       *telemetry.Metrics
	validate      *validator.Validate
}

// NewHandler wires the handlers. Every dependency except engine may be nil.
func NewHandler(engine *dispatch.Engine, conversations conversation.Store, checker *quota.Checker, ledger UsageLedger, health *router.HealthMonitor, metrics *telemetry.Metrics) *Handler {
	return &Handler{
		engine:        engine,
		conversations: conversations,
		quota:         checker,
		ledger:        ledger,
		health:        health,
		metrics:       metrics,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

// compareRequest is a completion request plus optional explicit targets.
type compareRequest struct {
	types.CompletionRequest
	Targets []dispatch.Target `json:"targets,omitempty" validate:"dive"`
}

// Completions handles POST /v1/completions
func (h *Handler) Completions(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var req types.CompletionRequest
	if !h.decode(w, r, reqID, &req) {
		return
	}
	h.prepare(&req, reqID)

	caller := callerOf(&req)
	d := h.checkQuota(r.Context(), caller, req.Backend)
	quota.SetHeaders(w.Header(), d)
	if !d.Allowed {
		httputil.WriteQuotaError(w, reqID, "Quota exceeded: "+d.Reason)
		return
	}

	h.withHistory(r.Context(), &req)

	resp, err := h.engine.Dispatch(r.Context(), &req)
	if err != nil {
		httputil.WriteDispatchError(w, reqID, err)
		return
	}
	h.remember(r.Context(), &req, resp)
	h.account(r.Context(), caller, &req, resp)

	if req.Options.Stream {
		streamText(w, reqID, resp)
		return
	}
	writeJSON(w, reqID, http.StatusOK, resp)
}

// Compare handles POST /v1/compare
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var body compareRequest
	if !h.decode(w, r, reqID, &body) {
		return
	}
	req := &body.CompletionRequest
	h.prepare(req, reqID)

	caller := callerOf(req)
	d := h.checkQuota(r.Context(), caller, "")
	quota.SetHeaders(w.Header(), d)
	if !d.Allowed {
		httputil.WriteQuotaError(w, reqID, "Quota exceeded: "+d.Reason)
		return
	}

	targets := body.Targets
	if len(targets) == 0 {
		targets = h.engine.CompareTargets()
	}

	cmp, err := h.engine.Compare(r.Context(), req, targets)
	if err != nil {
		httputil.WriteDispatchError(w, reqID, err)
		return
	}
	h.accountComparison(r.Context(), caller, req, cmp)
	writeJSON(w, reqID, http.StatusOK, cmp)
}

type backendView struct {
	types.ProfileStatus
	Health *router.HealthStatus `json:"health,omitempty"`
}

// Backends handles GET /v1/backends
func (h *Handler) Backends(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	profiles := h.engine.Profiles()
	out := make([]backendView, 0, len(profiles))
	for _, p := range profiles {
		v := backendView{ProfileStatus: p}
		if h.health != nil {
			s := h.health.Status(p.Name)
			v.Health = &s
		}
		out = append(out, v)
	}
	writeJSON(w, reqID, http.StatusOK, map[string]any{"backends": out})
}

// Stats handles GET /v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	writeJSON(w, reqID, http.StatusOK, map[string]any{"stats": h.engine.Stats()})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, reqID string, dst any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, reqID, http.StatusRequestEntityTooLarge, "invalid_request_error", "body_too_large", "Request body too large")
			return false
		}
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			httputil.WriteBadRequestError(w, reqID, "Invalid request: "+verrs[0].Namespace()+" failed "+verrs[0].Tag())
			return false
		}
		httputil.WriteBadRequestError(w, reqID, "Invalid request: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) prepare(req *types.CompletionRequest, reqID string) {
	if req.ID == "" {
		req.ID = reqID
	}
	if req.Metadata.CreatedAt.IsZero() {
		req.Metadata.CreatedAt = time.Now().UTC()
	}
}

func callerOf(req *types.CompletionRequest) types.Caller {
	return types.Caller{UserID: req.UserID, TeamID: req.TeamID, Channel: req.Metadata.Channel}
}

func conversationKey(c types.Caller) conversation.Key {
	return conversation.Key{TeamID: c.TeamID, ChannelID: c.Channel, UserID: c.UserID}
}

func (h *Handler) checkQuota(ctx context.Context, caller types.Caller, backend string) quota.Decision {
	if h.quota == nil {
		return quota.Decision{Allowed: true}
	}
	return h.quota.Check(ctx, caller, backend)
}

// withHistory fills an empty request context from the stored conversation.
func (h *Handler) withHistory(ctx context.Context, req *types.CompletionRequest) {
	if h.conversations == nil || len(req.Context) > 0 {
		return
	}
	conv, err := h.conversations.Load(ctx, conversationKey(callerOf(req)))
	if err != nil {
		slog.Warn("conversation load failed", "request_id", req.ID, "user_id", req.UserID, "error", err)
		return
	}
	req.Context = conv.Messages
}

func (h *Handler) remember(ctx context.Context, req *types.CompletionRequest, resp *types.CompletionResponse) {
	if h.conversations == nil {
		return
	}
	err := h.conversations.Append(ctx, conversationKey(callerOf(req)), resp.Usage.TotalTokens,
		conversation.Turn(req.Prompt, resp.Text)...)
	if err != nil {
		slog.Warn("conversation append failed", "request_id", req.ID, "user_id", req.UserID, "error", err)
	}
}

func (h *Handler) account(ctx context.Context, caller types.Caller, req *types.CompletionRequest, resp *types.CompletionResponse) {
	if h.quota != nil {
		h.quota.Record(ctx, caller, resp.Usage.TotalTokens)
	}
	if h.ledger != nil {
		h.ledger.RecordUsage(subscription.NewUsageRecord(req, resp))
	}
}

// accountComparison counts a batch as one request carrying every result's tokens.
func (h *Handler) accountComparison(ctx context.Context, caller types.Caller, req *types.CompletionRequest, cmp *dispatch.Comparison) {
	var tokens int
	for _, res := range cmp.Results {
		tokens += res.Usage.TotalTokens
		if h.ledger != nil {
			h.ledger.RecordUsage(subscription.NewUsageRecord(req, res))
		}
	}
	if h.quota != nil {
		h.quota.Record(ctx, caller, tokens)
	}
}

func writeJSON(w http.ResponseWriter, reqID string, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "request_id", reqID, "error", err)
	}
}
