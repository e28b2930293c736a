package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/af-corp/relay/internal/config"
	"github.com/af-corp/relay/internal/types"
)

func newRequest() *types.CompletionRequest {
	return &types.CompletionRequest{
		UserID: "u1",
		Prompt: "hello",
		Context: []types.Message{
			{Role: types.RoleUser, Content: "earlier question"},
			{Role: types.RoleAssistant, Content: "earlier answer"},
		},
		Options: types.Options{SystemPrompt: "be brief"},
	}
}

func backendConfig(typ, baseURL string) config.BackendConfig {
	return config.BackendConfig{Name: typ, Type: typ, BaseURL: baseURL, APIKey: "test-key", Timeout: 5 * time.Second}
}

func readJSON(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}

func TestBuildMessages(t *testing.T) {
	req := newRequest()
	req.Attachments = []types.Attachment{{Name: "notes.txt", Content: "line one"}}

	msgs := BuildMessages(req)
	require.Len(t, msgs, 4)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Equal(t, "be brief", msgs[0].Content)
	assert.Equal(t, "earlier question", msgs[1].Content)
	assert.Equal(t, types.RoleUser, msgs[3].Role)
	assert.Equal(t, "hello\n\n[Attachment: notes.txt]\nline one", msgs[3].Content)
}

func TestBuildMessages_NoSystemPrompt(t *testing.T) {
	msgs := BuildMessages(&types.CompletionRequest{Prompt: "hi"})
	require.Len(t, msgs, 1)
	assert.Equal(t, types.Message{Role: types.RoleUser, Content: "hi"}, msgs[0])
}

func TestOpenAIAdapter_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body := readJSON(t, r)
		assert.Equal(t, "gpt-4", body["model"])
		assert.Equal(t, false, body["stream"])
		assert.EqualValues(t, types.DefaultMaxTokens, body["max_tokens"])
		assert.EqualValues(t, types.DefaultTemperature, body["temperature"])
		msgs := body["messages"].([]any)
		assert.Len(t, msgs, 4)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(backendConfig("openai", srv.URL), srv.Client())
	raw, err := a.Execute(context.Background(), newRequest(), "gpt-4")
	require.NoError(t, err)
	assert.Equal(t, "hi there", raw.Text)
	assert.Equal(t, 12, raw.PromptTokens)
	assert.Equal(t, 3, raw.CompletionTokens)
}

func TestOpenAIAdapter_NoChoicesIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(backendConfig("openai", srv.URL), srv.Client())
	_, err := a.Execute(context.Background(), newRequest(), "gpt-4")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.NotErrorIs(t, err, ErrBackendTransport)
}

func TestAnthropicAdapter_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, defaultAnthropicVersion, r.Header.Get("anthropic-version"))

		body := readJSON(t, r)
		assert.Equal(t, "be brief", body["system"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 3)
		for _, m := range msgs {
			assert.NotEqual(t, "system", m.(map[string]any)["role"])
		}

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello"},{"type":"text","text":" world"}],"usage":{"input_tokens":20,"output_tokens":5}}`))
	}))
	defer srv.Close()

	a := NewAnthropicAdapter(backendConfig("anthropic", srv.URL), srv.Client())
	raw, err := a.Execute(context.Background(), newRequest(), "claude-3-haiku-20240307")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", raw.Text)
	assert.Equal(t, 20, raw.PromptTokens)
	assert.Equal(t, 5, raw.CompletionTokens)
}

func TestGeminiAdapter_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-pro:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		body := readJSON(t, r)
		sys := body["systemInstruction"].(map[string]any)
		assert.Equal(t, "be brief", sys["parts"].([]any)[0].(map[string]any)["text"])
		contents := body["contents"].([]any)
		require.Len(t, contents, 3)
		assert.Equal(t, "model", contents[1].(map[string]any)["role"])

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]}}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":1}}`))
	}))
	defer srv.Close()

	a := NewGeminiAdapter(backendConfig("gemini", srv.URL), srv.Client())
	raw, err := a.Execute(context.Background(), newRequest(), "gemini-pro")
	require.NoError(t, err)
	assert.Equal(t, "ok", raw.Text)
	assert.Equal(t, 7, raw.PromptTokens)
	assert.Equal(t, 1, raw.CompletionTokens)
}

func TestOllamaAdapter_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		body := readJSON(t, r)
		assert.Equal(t, false, body["stream"])
		opts := body["options"].(map[string]any)
		assert.EqualValues(t, types.DefaultMaxTokens, opts["num_predict"])

		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"local answer"},"done":true}`))
	}))
	defer srv.Close()

	req := newRequest()
	req.Options.Stream = true
	a := NewOllamaAdapter(backendConfig("ollama", srv.URL), srv.Client())
	raw, err := a.Execute(context.Background(), req, "llama2")
	require.NoError(t, err)
	assert.Equal(t, "local answer", raw.Text)
	assert.Zero(t, raw.PromptTokens)
	assert.Zero(t, raw.CompletionTokens)
}

func TestAdapters_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusInternalServerError, KindTransport},
		{http.StatusBadRequest, KindTransport},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"nope"}`, tt.status)
			}))
			defer srv.Close()

			a := NewOpenAIAdapter(backendConfig("openai", srv.URL), srv.Client())
			_, err := a.Execute(context.Background(), newRequest(), "gpt-4")
			require.Error(t, err)

			var be *BackendError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tt.kind, be.Kind)
			assert.Equal(t, tt.status, be.StatusCode)
			assert.ErrorIs(t, err, ErrBackendTransport)
		})
	}
}

func TestAdapters_ContextCanceledIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	a := NewAnthropicAdapter(backendConfig("anthropic", srv.URL), srv.Client())
	_, err := a.Execute(ctx, newRequest(), "claude-3-haiku-20240307")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_ByFamily(t *testing.T) {
	tests := []struct {
		typ  string
		want any
	}{
		{"openai", &OpenAIAdapter{}},
		{"custom", &OpenAIAdapter{}},
		{"anthropic", &AnthropicAdapter{}},
		{"gemini", &GeminiAdapter{}},
		{"ollama", &OllamaAdapter{}},
	}
	for _, tt := range tests {
		a, err := New(backendConfig(tt.typ, "http://localhost"), nil)
		require.NoError(t, err)
		assert.IsType(t, tt.want, a)
		assert.Equal(t, tt.typ, a.Name())
	}
}
