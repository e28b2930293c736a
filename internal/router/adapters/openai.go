package adapters

import (
	"context"
	"errors"
	"net/http"

	"github.com/af-corp/relay/internal/config"
	"github.com/af-corp/relay/internal/types"
)

// OpenAIAdapter handles OpenAI and OpenAI-compatible chat completion APIs.
// Custom backends registered by URL use this adapter as well.
type OpenAIAdapter struct {
	cfg    config.BackendConfig
	client *http.Client
}

func NewOpenAIAdapter(cfg config.BackendConfig, client *http.Client) *OpenAIAdapter {
	return &OpenAIAdapter{cfg: cfg, client: client}
}

func (a *OpenAIAdapter) Name() string { return a.cfg.Name }

func (a *OpenAIAdapter) Execute(ctx context.Context, req *types.CompletionRequest, model string) (*types.RawCompletion, error) {
	temperature := req.Options.TemperatureOrDefault()
	body := openAIRequestBody{
		Model:       model,
		Messages:    BuildMessages(req),
		Temperature: &temperature,
		MaxTokens:   req.Options.MaxTokensOrDefault(),
	}

	headers := map[string]string{}
	if a.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + a.cfg.APIKey
	}

	data, err := postJSON(ctx, a.client, a.cfg.Name, a.cfg.BaseURL+"/chat/completions", mergeHeaders(headers, a.cfg.Headers), body)
	if err != nil {
		return nil, err
	}

	var resp openAIResponseBody
	if err := decode(a.cfg.Name, data, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, malformedError(a.cfg.Name, errors.New("response has no choices"))
	}

	return &types.RawCompletion{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

type openAIRequestBody struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      types.Message `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
