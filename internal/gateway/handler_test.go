package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/af-corp/relay/internal/config"
	"github.com/af-corp/relay/internal/conversation"
	"github.com/af-corp/relay/internal/dispatch"
	"github.com/af-corp/relay/internal/httputil"
	"github.com/af-corp/relay/internal/quota"
	"github.com/af-corp/relay/internal/router"
	"github.com/af-corp/relay/internal/router/adapters"
	"github.com/af-corp/relay/internal/subscription"
	"github.com/af-corp/relay/internal/types"
)

type stubAdapter struct {
	name string
	text string
	err  error

	mu   sync.Mutex
	seen []types.CompletionRequest
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Execute(_ context.Context, req *types.CompletionRequest, _ string) (*types.RawCompletion, error) {
	s.mu.Lock()
	s.seen = append(s.seen, *req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &types.RawCompletion{Text: s.text, PromptTokens: 10, CompletionTokens: 20}, nil
}

func (s *stubAdapter) last() types.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[len(s.seen)-1]
}

type fakeLedger struct {
	mu   sync.Mutex
	recs []subscription.UsageRecord
}

func (f *fakeLedger) RecordUsage(rec subscription.UsageRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
}

type testEnv struct {
	handler *Handler
	local   *stubAdapter
	cloud   *stubAdapter
	convs   *conversation.MemoryStore
	ledger  *fakeLedger
	health  *router.HealthMonitor
}

func backendProfile(name string, in, out float64, models ...string) types.BackendProfile {
	return types.BackendProfile{
		Name:         name,
		Family:       types.FamilyCustom,
		Models:       models,
		Pricing:      types.Pricing{InputPer1K: in, OutputPer1K: out},
		Capabilities: types.Capabilities{Text: true},
	}
}

func newTestEnv(t *testing.T, checker *quota.Checker) *testEnv {
	t.Helper()
	env := &testEnv{
		local:  &stubAdapter{name: "local", text: "local answer"},
		cloud:  &stubAdapter{name: "cloud", text: "cloud answer"},
		convs:  conversation.NewMemoryStore(conversation.Options{}),
		ledger: &fakeLedger{},
		health: router.NewHealthMonitor(3, 0),
	}

	reg := router.NewRegistry()
	require.NoError(t, reg.Register(backendProfile("local", 0, 0, "llama2"), env.local))
	require.NoError(t, reg.Register(backendProfile("cloud", 0.03, 0.06, "big-model", "small-model"), env.cloud))
	require.NoError(t, reg.Register(backendProfile("offline", 0.01, 0.01, "m"), nil))

	stats := router.NewStatsTracker()
	cfg := config.DefaultConfig()
	cfg.Routing.CompareTargets = []config.TargetConfig{{Backend: "local"}, {Backend: "cloud", Model: "small-model"}}
	engine := dispatch.NewEngine(reg, router.NewRouter(reg, stats), stats, env.health,
		func() *config.Config { return cfg }, nil)

	env.handler = NewHandler(engine, env.convs, checker, env.ledger, env.health, nil)
	return env
}

func (e *testEnv) serve(method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	r := NewRouter(e.handler, nil, nil, "test")
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postJSON(path string, v any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(v)
	return e.serve(http.MethodPost, path, body, "application/json")
}

func (e *testEnv) command(form url.Values) CommandResponse {
	rec := e.serve(http.MethodPost, "/v1/commands", []byte(form.Encode()), "application/x-www-form-urlencoded")
	var out CommandResponse
	json.Unmarshal(rec.Body.Bytes(), &out)
	return out
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) httputil.APIError {
	t.Helper()
	var apiErr httputil.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func completionBody(prompt string) map[string]any {
	return map[string]any{
		"user_id":  "U1",
		"team_id":  "T1",
		"prompt":   prompt,
		"metadata": map[string]any{"channel": "C1"},
	}
}

func TestCompletions_AutoRoutesAndRemembers(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.postJSON("/v1/completions", completionBody("hello"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp types.CompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "local", resp.Backend, "the free backend wins auto-routing")
	assert.Equal(t, "local answer", resp.Text)
	require.NotNil(t, resp.Routing)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.RequestID)

	conv, err := env.convs.Load(context.Background(), conversation.Key{TeamID: "T1", ChannelID: "C1", UserID: "U1"})
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, "local answer", conv.Messages[1].Content)
	assert.Equal(t, 30, conv.TotalTokens)

	rec = env.postJSON("/v1/completions", completionBody("and then?"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.local.last().Context, 2, "stored history is sent as context")

	require.Len(t, env.ledger.recs, 2)
	assert.Equal(t, "C1", env.ledger.recs[0].Channel)
}

func TestCompletions_ExplicitContextWins(t *testing.T) {
	env := newTestEnv(t, nil)
	env.postJSON("/v1/completions", completionBody("first"))

	body := completionBody("second")
	body["context"] = []map[string]string{{"role": "user", "content": "given"}}
	rec := env.postJSON("/v1/completions", body)
	require.Equal(t, http.StatusOK, rec.Code)

	seen := env.local.last().Context
	require.Len(t, seen, 1)
	assert.Equal(t, "given", seen[0].Content)
}

func TestCompletions_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"prompt":`},
		{"missing prompt", `{"user_id":"U1"}`},
		{"missing user", `{"prompt":"hi"}`},
		{"bad role", `{"user_id":"U1","prompt":"hi","context":[{"role":"robot","content":"x"}]}`},
		{"bad priority", `{"user_id":"U1","prompt":"hi","priority":"urgent"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.serve(http.MethodPost, "/v1/completions", []byte(tt.body), "application/json")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_request", decodeAPIError(t, rec).Error.Code)
		})
	}
}

func TestCompletions_ExplicitBackend(t *testing.T) {
	env := newTestEnv(t, nil)
	body := completionBody("hi")
	body["backend"] = "cloud"

	rec := env.postJSON("/v1/completions", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.CompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cloud", resp.Backend)
	assert.Equal(t, "big-model", resp.Model, "default model applies")
	assert.Nil(t, resp.Routing)
	assert.InDelta(t, 0.0015, resp.Usage.CostUSD, 1e-9)
}

func TestCompletions_BackendErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	body := completionBody("hi")
	body["backend"] = "offline"
	rec := env.postJSON("/v1/completions", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "backend_unavailable", decodeAPIError(t, rec).Error.Code)

	env.cloud.err = &adapters.BackendError{Backend: "cloud", Kind: adapters.KindTransport, Cause: errors.New("reset")}
	body["backend"] = "cloud"
	rec = env.postJSON("/v1/completions", body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "backend_error", decodeAPIError(t, rec).Error.Code)
	assert.Equal(t, 1, env.health.Status("cloud").ConsecutiveFailures)
}

func TestCompletions_Stream(t *testing.T) {
	env := newTestEnv(t, nil)
	body := completionBody("hi")
	body["options"] = map[string]any{"stream": true}

	rec := env.postJSON("/v1/completions", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"delta":"local answer"`)
	assert.True(t, strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n"))
}

func newQuotaChecker(t *testing.T, rpm int) *quota.Checker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	policy := quota.NewPolicy(nil)
	require.NoError(t, policy.LoadDefault())
	cfg := config.QuotaConfig{
		Enabled:           true,
		RequestsPerMinute: rpm,
		DefaultPlan:       config.PlanConfig{Name: "free", DailyRequests: 100, AllowedBackends: []string{"local"}},
	}
	return quota.NewChecker(nil, quota.NewUsageCounter(rdb), quota.NewLimiter(rdb), policy,
		func() config.QuotaConfig { return cfg }, nil)
}

func TestCompletions_QuotaDenied(t *testing.T) {
	env := newTestEnv(t, newQuotaChecker(t, 1))

	rec := env.postJSON("/v1/completions", completionBody("hi"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(quota.HeaderLimitRequests))

	rec = env.postJSON("/v1/completions", completionBody("again"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	apiErr := decodeAPIError(t, rec)
	assert.Equal(t, "quota_exceeded", apiErr.Error.Code)
	assert.Contains(t, apiErr.Error.Message, "rate limit exceeded")
	assert.Equal(t, "30", rec.Header().Get(quota.HeaderRetryAfter))
}

func TestCompletions_PlanRestrictsExplicitBackend(t *testing.T) {
	env := newTestEnv(t, newQuotaChecker(t, 0))

	body := completionBody("hi")
	body["backend"] = "cloud"
	rec := env.postJSON("/v1/completions", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, decodeAPIError(t, rec).Error.Message, "backend cloud is not included in the free plan")
	assert.Empty(t, env.cloud.seen, "denied requests never reach the backend")
}

func TestCompare(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cloud.err = &adapters.BackendError{Backend: "cloud", Kind: adapters.KindAuth, StatusCode: 401, Cause: errors.New("bad key")}

	rec := env.postJSON("/v1/compare", completionBody("which is better?"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cmp dispatch.Comparison
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmp))
	require.Len(t, cmp.Results, 1)
	assert.Equal(t, "local", cmp.Results[0].Backend)
	require.Len(t, cmp.Failures, 1)
	assert.Equal(t, "cloud", cmp.Failures[0].Backend)
	assert.Equal(t, "small-model", cmp.Failures[0].Model)
	assert.NotEmpty(t, cmp.Failures[0].Error)
}

func TestCompare_ExplicitTargets(t *testing.T) {
	env := newTestEnv(t, nil)
	body := completionBody("hi")
	body["targets"] = []map[string]string{{"backend": "cloud", "model": "big-model"}}

	rec := env.postJSON("/v1/compare", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var cmp dispatch.Comparison
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmp))
	require.Len(t, cmp.Results, 1)
	assert.Equal(t, "big-model", cmp.Results[0].Model)
	assert.Empty(t, env.local.seen)
}

func TestCompare_AllFail(t *testing.T) {
	env := newTestEnv(t, nil)
	env.local.err = &adapters.BackendError{Backend: "local", Kind: adapters.KindTransport, Cause: errors.New("down")}
	env.cloud.err = &adapters.BackendError{Backend: "cloud", Kind: adapters.KindTransport, Cause: errors.New("down")}

	rec := env.postJSON("/v1/compare", completionBody("hi"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "comparison_failed", decodeAPIError(t, rec).Error.Code)
}

func TestCompare_AllFailWithUnavailableTarget(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cloud.err = &adapters.BackendError{Backend: "cloud", Kind: adapters.KindTransport, Cause: errors.New("reset")}
	body := completionBody("hi")
	body["targets"] = []map[string]string{{"backend": "cloud"}, {"backend": "offline"}}

	rec := env.postJSON("/v1/compare", body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "comparison_failed", decodeAPIError(t, rec).Error.Code)
}

func TestCompletions_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, nil)
	prompt := strings.Repeat("a", maxRequestBody)
	body, _ := json.Marshal(completionBody(prompt))

	rec := env.serve(http.MethodPost, "/v1/completions", body, "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "body_too_large", decodeAPIError(t, rec).Error.Code)
	assert.Empty(t, env.local.seen)
}

func TestBackendsAndStats(t *testing.T) {
	env := newTestEnv(t, nil)
	env.postJSON("/v1/completions", completionBody("hi"))

	rec := env.serve(http.MethodGet, "/v1/backends", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var backends struct {
		Backends []struct {
			Name      string `json:"name"`
			Available bool   `json:"available"`
			Health    *struct {
				Status string `json:"status"`
			} `json:"health"`
		} `json:"backends"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &backends))
	require.Len(t, backends.Backends, 3)
	assert.Equal(t, "local", backends.Backends[0].Name)
	assert.True(t, backends.Backends[0].Available)
	assert.False(t, backends.Backends[2].Available)
	require.NotNil(t, backends.Backends[0].Health)
	assert.Equal(t, "ok", backends.Backends[0].Health.Status)

	rec = env.serve(http.MethodGet, "/v1/stats", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Stats []types.BackendStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Len(t, stats.Stats, 1)
	assert.Equal(t, int64(1), stats.Stats[0].TotalRequests)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.serve(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
}
