package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/af-corp/relay/internal/dispatch"
	"github.com/af-corp/relay/internal/httputil"
	"github.com/af-corp/relay/internal/types"
)

const (
	responseInChannel = "in_channel"
	responseEphemeral = "ephemeral"
)

// CommandResponse is the reply body chat platforms render for a slash command.
type CommandResponse struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
}

type commandFunc func(ctx context.Context, caller types.Caller, text string) CommandResponse

func (h *Handler) commands() map[string]commandFunc {
	return map[string]commandFunc{
		"/ask":     h.cmdAsk,
		"/compare": h.cmdCompare,
		"/models":  h.cmdModels,
		"/stats":   h.cmdStats,
		"/usage":   h.cmdUsage,
		"/forget":  h.cmdForget,
	}
}

// Command handles POST /v1/commands (form encoded: command, text, user_id,
// team_id, channel_id).
func (h *Handler) Command(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := r.ParseForm(); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid form body")
		return
	}

	command := strings.TrimSpace(r.PostForm.Get("command"))
	caller := types.Caller{
		UserID:  r.PostForm.Get("user_id"),
		TeamID:  r.PostForm.Get("team_id"),
		Channel: r.PostForm.Get("channel_id"),
	}
	if command == "" || caller.UserID == "" {
		httputil.WriteBadRequestError(w, reqID, "command and user_id are required")
		return
	}

	fn, ok := h.commands()[command]
	if !ok {
		writeJSON(w, reqID, http.StatusOK, ephemeral(fmt.Sprintf("Unknown command %s. Try /ask, /compare, /models, /stats, /usage or /forget.", command)))
		return
	}

	h.metrics.RecordCommand(command)
	slog.Info("command received",
		"request_id", reqID,
		"command", command,
		"user_id", caller.UserID,
		"team_id", caller.TeamID,
		"channel", caller.Channel,
	)
	ctx := context.WithValue(r.Context(), requestIDKey, reqID)
	writeJSON(w, reqID, http.StatusOK, fn(ctx, caller, strings.TrimSpace(r.PostForm.Get("text"))))
}

func ephemeral(text string) CommandResponse {
	return CommandResponse{ResponseType: responseEphemeral, Text: text}
}

func inChannel(text string) CommandResponse {
	return CommandResponse{ResponseType: responseInChannel, Text: text}
}

func (h *Handler) newCommandRequest(ctx context.Context, caller types.Caller, command, prompt string) *types.CompletionRequest {
	id, _ := ctx.Value(requestIDKey).(string)
	return &types.CompletionRequest{
		ID:     id,
		UserID: caller.UserID,
		TeamID: caller.TeamID,
		Prompt: prompt,
		Metadata: types.RequestMetadata{
			Command:   command,
			Channel:   caller.Channel,
			CreatedAt: time.Now().UTC(),
		},
	}
}

// cmdAsk handles "/ask [backend[:model]] prompt".
func (h *Handler) cmdAsk(ctx context.Context, caller types.Caller, text string) CommandResponse {
	backend, model, prompt := h.parseTarget(text)
	if prompt == "" {
		return ephemeral("Usage: /ask [backend[:model]] your question")
	}

	d := h.checkQuota(ctx, caller, backend)
	if !d.Allowed {
		return ephemeral("Quota exceeded: " + d.Reason)
	}

	req := h.newCommandRequest(ctx, caller, "/ask", prompt)
	req.Backend, req.Model = backend, model
	h.withHistory(ctx, req)

	resp, err := h.engine.Dispatch(ctx, req)
	if err != nil {
		return ephemeral(commandError(err))
	}
	h.remember(ctx, req, resp)
	h.account(ctx, caller, req, resp)
	return inChannel(formatCompletion(resp))
}

// cmdCompare handles "/compare prompt" against the configured targets.
func (h *Handler) cmdCompare(ctx context.Context, caller types.Caller, text string) CommandResponse {
	if text == "" {
		return ephemeral("Usage: /compare your question")
	}

	d := h.checkQuota(ctx, caller, "")
	if !d.Allowed {
		return ephemeral("Quota exceeded: " + d.Reason)
	}

	req := h.newCommandRequest(ctx, caller, "/compare", text)
	cmp, err := h.engine.Compare(ctx, req, h.engine.CompareTargets())
	if err != nil {
		if cmp != nil && len(cmp.Failures) > 0 {
			return ephemeral("Every backend failed.\n" + formatComparison(cmp))
		}
		return ephemeral(commandError(err))
	}
	h.accountComparison(ctx, caller, req, cmp)
	return inChannel(formatComparison(cmp))
}

func (h *Handler) cmdModels(context.Context, types.Caller, string) CommandResponse {
	return ephemeral(formatModels(h.engine.Profiles()))
}

func (h *Handler) cmdStats(context.Context, types.Caller, string) CommandResponse {
	return ephemeral(formatStats(h.engine.Stats()))
}

func (h *Handler) cmdUsage(ctx context.Context, caller types.Caller, _ string) CommandResponse {
	if h.quota == nil {
		return ephemeral("Usage tracking is not enabled.")
	}
	plan, usage, err := h.quota.Usage(ctx, caller)
	if err != nil {
		slog.Warn("usage lookup failed", "user_id", caller.UserID, "error", err)
		return ephemeral("Usage is unavailable right now.")
	}
	return ephemeral(formatUsage(plan, usage))
}

func (h *Handler) cmdForget(ctx context.Context, caller types.Caller, _ string) CommandResponse {
	if h.conversations == nil {
		return ephemeral("Conversation history is not enabled.")
	}
	if err := h.conversations.Clear(ctx, conversationKey(caller)); err != nil {
		slog.Warn("conversation clear failed", "user_id", caller.UserID, "error", err)
		return ephemeral("Could not clear the conversation, try again.")
	}
	return ephemeral("Conversation cleared.")
}

// parseTarget splits an optional leading "backend" or "backend:model" token
// off text. The token only counts when it names a registered backend.
func (h *Handler) parseTarget(text string) (backend, model, prompt string) {
	first, rest, _ := strings.Cut(text, " ")
	name, m, _ := strings.Cut(first, ":")

	known := slices.ContainsFunc(h.engine.Profiles(), func(p types.ProfileStatus) bool { return p.Name == name })
	if !known && name != types.AutoBackend {
		return "", "", text
	}
	return name, m, strings.TrimSpace(rest)
}

func commandError(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrNoBackendsAvailable):
		return "No backends are available right now."
	case errors.Is(err, dispatch.ErrBackendUnavailable):
		var de *dispatch.DispatchError
		if errors.As(err, &de) {
			return fmt.Sprintf("Backend %s is not available.", de.Backend)
		}
		return "That backend is not available."
	default:
		return "Request failed: " + err.Error()
	}
}
