package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/af-corp/relay/internal/config"
	"github.com/af-corp/relay/internal/types"
)

// Adapter translates a normalized request into one backend's wire format,
// performs the call and extracts text and token counts.
type Adapter interface {
	Name() string
	Execute(ctx context.Context, req *types.CompletionRequest, model string) (*types.RawCompletion, error)
}

// New returns the adapter for the backend's family. Custom backends speak the OpenAI protocol.
func New(cfg config.BackendConfig, client *http.Client) (Adapter, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	switch cfg.Family() {
	case types.FamilyOpenAI, types.FamilyCustom:
		return NewOpenAIAdapter(cfg, client), nil
	case types.FamilyAnthropic:
		return NewAnthropicAdapter(cfg, client), nil
	case types.FamilyGemini:
		return NewGeminiAdapter(cfg, client), nil
	case types.FamilyOllama:
		return NewOllamaAdapter(cfg, client), nil
	default:
		return nil, fmt.Errorf("unsupported backend type %q", cfg.Type)
	}
}

// BuildMessages assembles the conversation sent to every backend: the optional
// system instruction, prior context, then the prompt as the final user turn.
// Attachments are folded into the final user turn as text.
func BuildMessages(req *types.CompletionRequest) []types.Message {
	msgs := make([]types.Message, 0, len(req.Context)+2)
	if req.Options.SystemPrompt != "" {
		msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: req.Options.SystemPrompt})
	}
	msgs = append(msgs, req.Context...)
	msgs = append(msgs, types.Message{Role: types.RoleUser, Content: promptWithAttachments(req)})
	return msgs
}

func promptWithAttachments(req *types.CompletionRequest) string {
	if len(req.Attachments) == 0 {
		return req.Prompt
	}
	var b strings.Builder
	b.WriteString(req.Prompt)
	for _, a := range req.Attachments {
		b.WriteString("\n\n[Attachment: ")
		b.WriteString(a.Name)
		b.WriteString("]")
		switch {
		case a.Content != "":
			b.WriteString("\n")
			b.WriteString(a.Content)
		case a.URL != "":
			b.WriteString(" ")
			b.WriteString(a.URL)
		}
	}
	return b.String()
}

// splitSystem separates system turns from the conversation for backends that
// take the system instruction out-of-band.
func splitSystem(msgs []types.Message) (string, []types.Message) {
	var system []string
	rest := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// postJSON marshals body, sends it and returns the raw response body for 2xx statuses.
func postJSON(ctx context.Context, client *http.Client, backend, url string, headers map[string]string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", backend, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, transportError(backend, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(backend, fmt.Errorf("read %s response: %w", backend, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(backend, resp.StatusCode, respBody)
	}
	return respBody, nil
}

func decode(backend string, body []byte, dest any) error {
	if err := json.Unmarshal(body, dest); err != nil {
		return malformedError(backend, fmt.Errorf("unmarshal %s response: %w", backend, err))
	}
	return nil
}

func mergeHeaders(base map[string]string, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range base {
		out[k] = v
	}
	return out
}
