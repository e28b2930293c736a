package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/af-corp/relay/internal/config"
	"github.com/af-corp/relay/internal/types"
)

// GeminiAdapter handles the Gemini generateContent API.
type GeminiAdapter struct {
	cfg    config.BackendConfig
	client *http.Client
}

func NewGeminiAdapter(cfg config.BackendConfig, client *http.Client) *GeminiAdapter {
	return &GeminiAdapter{cfg: cfg, client: client}
}

func (a *GeminiAdapter) Name() string { return a.cfg.Name }

func (a *GeminiAdapter) Execute(ctx context.Context, req *types.CompletionRequest, model string) (*types.RawCompletion, error) {
	system, msgs := splitSystem(BuildMessages(req))

	body := geminiRequestBody{
		Contents: make([]geminiContent, 0, len(msgs)),
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.Options.MaxTokensOrDefault(),
			Temperature:     req.Options.TemperatureOrDefault(),
		},
	}
	if system != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	for _, m := range msgs {
		role := "user"
		if m.Role == types.RoleAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}

	endpoint := a.cfg.BaseURL + "/models/" + url.PathEscape(model) + ":generateContent?key=" + url.QueryEscape(a.cfg.APIKey)
	data, err := postJSON(ctx, a.client, a.cfg.Name, endpoint, a.cfg.Headers, body)
	if err != nil {
		return nil, err
	}

	var resp geminiResponseBody
	if err := decode(a.cfg.Name, data, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, malformedError(a.cfg.Name, errors.New("response has no candidates"))
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	return &types.RawCompletion{
		Text:             text.String(),
		PromptTokens:     resp.UsageMetadata.PromptTokenCount,
		CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type geminiRequestBody struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponseBody struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}
