package adapters

import (
	"context"
	"net/http"
	"strings"

	"github.com/af-corp/relay/internal/config"
	"github.com/af-corp/relay/internal/types"
)

const defaultAnthropicVersion = "2023-06-01"

// AnthropicAdapter handles communication with the Anthropic Messages API.
type AnthropicAdapter struct {
	cfg    config.BackendConfig
	client *http.Client
}

func NewAnthropicAdapter(cfg config.BackendConfig, client *http.Client) *AnthropicAdapter {
	return &AnthropicAdapter{cfg: cfg, client: client}
}

func (a *AnthropicAdapter) Name() string { return a.cfg.Name }

func (a *AnthropicAdapter) Execute(ctx context.Context, req *types.CompletionRequest, model string) (*types.RawCompletion, error) {
	// The system instruction travels out-of-band.
	system, msgs := splitSystem(BuildMessages(req))
	messages := make([]anthropicMessage, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	temperature := req.Options.TemperatureOrDefault()
	body := anthropicRequestBody{
		Model:       model,
		Messages:    messages,
		System:      system,
		MaxTokens:   req.Options.MaxTokensOrDefault(),
		Temperature: &temperature,
	}

	version := a.cfg.APIVersion
	if version == "" {
		version = defaultAnthropicVersion
	}
	headers := map[string]string{
		"x-api-key":         a.cfg.APIKey,
		"anthropic-version": version,
	}

	data, err := postJSON(ctx, a.client, a.cfg.Name, a.cfg.BaseURL+"/messages", mergeHeaders(headers, a.cfg.Headers), body)
	if err != nil {
		return nil, err
	}

	var resp anthropicResponseBody
	if err := decode(a.cfg.Name, data, &resp); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &types.RawCompletion{
		Text:             text.String(),
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequestBody struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicResponseBody struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
