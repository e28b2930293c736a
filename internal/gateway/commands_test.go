package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/af-corp/relay/internal/auth"
	"github.com/af-corp/relay/internal/conversation"
)

func commandForm(command, text string) url.Values {
	return url.Values{
		"command":    {command},
		"text":       {text},
		"user_id":    {"U1"},
		"team_id":    {"T1"},
		"channel_id": {"C1"},
	}
}

func TestCommand_AskAutoRouted(t *testing.T) {
	env := newTestEnv(t, nil)
	out := env.command(commandForm("/ask", "what is a goroutine?"))

	assert.Equal(t, responseInChannel, out.ResponseType)
	assert.Contains(t, out.Text, "local answer")
	assert.Contains(t, out.Text, "auto-routed")
	assert.Equal(t, "what is a goroutine?", env.local.last().Prompt)
	assert.Equal(t, "/ask", env.local.last().Metadata.Command)
}

func TestCommand_AskExplicitTarget(t *testing.T) {
	env := newTestEnv(t, nil)
	out := env.command(commandForm("/ask", "cloud:small-model explain channels"))

	assert.Equal(t, responseInChannel, out.ResponseType)
	assert.Contains(t, out.Text, "cloud/small-model")
	assert.Equal(t, "explain channels", env.cloud.last().Prompt)
	assert.NotContains(t, out.Text, "auto-routed")
}

func TestCommand_AskUnknownTokenIsPrompt(t *testing.T) {
	env := newTestEnv(t, nil)
	env.command(commandForm("/ask", "golang: why?"))
	assert.Equal(t, "golang: why?", env.local.last().Prompt)
}

func TestCommand_AskUnavailableBackend(t *testing.T) {
	env := newTestEnv(t, nil)
	out := env.command(commandForm("/ask", "offline hello"))
	assert.Equal(t, responseEphemeral, out.ResponseType)
	assert.Equal(t, "Backend offline is not available.", out.Text)
}

func TestCommand_AskUsage(t *testing.T) {
	env := newTestEnv(t, nil)
	out := env.command(commandForm("/ask", ""))
	assert.Equal(t, responseEphemeral, out.ResponseType)
	assert.Contains(t, out.Text, "Usage: /ask")
}

func TestCommand_AskQuotaDenied(t *testing.T) {
	env := newTestEnv(t, newQuotaChecker(t, 0))
	out := env.command(commandForm("/ask", "cloud hello"))
	assert.Equal(t, responseEphemeral, out.ResponseType)
	assert.Contains(t, out.Text, "Quota exceeded")
}

func TestCommand_Compare(t *testing.T) {
	env := newTestEnv(t, nil)
	out := env.command(commandForm("/compare", "tabs or spaces?"))

	assert.Equal(t, responseInChannel, out.ResponseType)
	assert.Contains(t, out.Text, "*local/llama2*")
	assert.Contains(t, out.Text, "*cloud/small-model*")
	assert.Contains(t, out.Text, "cloud answer")
}

func TestCommand_ModelsAndStats(t *testing.T) {
	env := newTestEnv(t, nil)

	out := env.command(commandForm("/models", ""))
	assert.Equal(t, responseEphemeral, out.ResponseType)
	assert.Contains(t, out.Text, "local (available): llama2")
	assert.Contains(t, out.Text, "offline (not configured)")

	out = env.command(commandForm("/stats", ""))
	assert.Equal(t, "No requests have been served yet.", out.Text)

	env.command(commandForm("/ask", "hi"))
	out = env.command(commandForm("/stats", ""))
	assert.Contains(t, out.Text, "local/llama2: 1 requests")
}

func TestCommand_Forget(t *testing.T) {
	env := newTestEnv(t, nil)
	env.command(commandForm("/ask", "remember me"))

	key := conversation.Key{TeamID: "T1", ChannelID: "C1", UserID: "U1"}
	conv, _ := env.convs.Load(context.Background(), key)
	require.Len(t, conv.Messages, 2)

	out := env.command(commandForm("/forget", ""))
	assert.Equal(t, "Conversation cleared.", out.Text)
	conv, _ = env.convs.Load(context.Background(), key)
	assert.Empty(t, conv.Messages)
}

func TestCommand_Usage(t *testing.T) {
	env := newTestEnv(t, nil)
	out := env.command(commandForm("/usage", ""))
	assert.Equal(t, "Usage tracking is not enabled.", out.Text)

	env = newTestEnv(t, newQuotaChecker(t, 0))
	env.command(commandForm("/ask", "hi"))
	out = env.command(commandForm("/usage", ""))
	assert.Contains(t, out.Text, "Plan: free")
	assert.Contains(t, out.Text, "Requests today: 1 / 100")
	assert.Contains(t, out.Text, "Team tokens this month: 30 / unlimited")
}

func TestCommand_Unknown(t *testing.T) {
	env := newTestEnv(t, nil)
	out := env.command(commandForm("/dance", ""))
	assert.Equal(t, responseEphemeral, out.ResponseType)
	assert.Contains(t, out.Text, "Unknown command /dance")
}

func TestCommand_MissingUser(t *testing.T) {
	env := newTestEnv(t, nil)
	form := commandForm("/ask", "hi")
	form.Del("user_id")
	rec := env.serve(http.MethodPost, "/v1/commands", []byte(form.Encode()), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_RequiresSignature(t *testing.T) {
	env := newTestEnv(t, nil)
	r := NewRouter(env.handler, auth.NewVerifier("secret", time.Minute), []string{"https://example.com"}, "test")
	body := commandForm("/models", "").Encode()

	req := httptest.NewRequest(http.MethodPost, "/v1/commands", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ts := time.Now().Unix()
	req = httptest.NewRequest(http.MethodPost, "/v1/commands", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(auth.HeaderSignature, auth.Sign("secret", ts, []byte(body)))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "local (available)")

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not signed")
}
