package adapters

import (
	"context"
	"net/http"

	"github.com/af-corp/relay/internal/config"
	"github.com/af-corp/relay/internal/types"
)

// OllamaAdapter talks to a local Ollama server. It always asks for a single
// non-streamed response.
type OllamaAdapter struct {
	cfg    config.BackendConfig
	client *http.Client
}

func NewOllamaAdapter(cfg config.BackendConfig, client *http.Client) *OllamaAdapter {
	return &OllamaAdapter{cfg: cfg, client: client}
}

func (a *OllamaAdapter) Name() string { return a.cfg.Name }

func (a *OllamaAdapter) Execute(ctx context.Context, req *types.CompletionRequest, model string) (*types.RawCompletion, error) {
	body := ollamaRequestBody{
		Model:    model,
		Messages: BuildMessages(req),
		Stream:   false,
		Options: ollamaOptions{
			NumPredict:  req.Options.MaxTokensOrDefault(),
			Temperature: req.Options.TemperatureOrDefault(),
		},
	}

	data, err := postJSON(ctx, a.client, a.cfg.Name, a.cfg.BaseURL+"/api/chat", a.cfg.Headers, body)
	if err != nil {
		return nil, err
	}

	var resp ollamaResponseBody
	if err := decode(a.cfg.Name, data, &resp); err != nil {
		return nil, err
	}

	return &types.RawCompletion{
		Text:             resp.Message.Content,
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
	}, nil
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

type ollamaRequestBody struct {
	Model    string          `json:"model"`
	Messages []types.Message `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaResponseBody struct {
	Model           string        `json:"model"`
	Message         types.Message `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}
