package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/af-corp/relay/internal/types"
)

type BackendsConfig struct {
	Backends []BackendConfig `yaml:"backends"`
}

// BackendConfig describes one backend: connection settings plus its static profile.
type BackendConfig struct {
	Name       string            `yaml:"name"`
	Type       string            `yaml:"type"`
	BaseURL    string            `yaml:"base_url"`
	APIKey     string            `yaml:"api_key"`
	APIVersion string            `yaml:"api_version,omitempty"`
	Timeout    time.Duration     `yaml:"timeout"`
	Headers    map[string]string `yaml:"headers,omitempty"`

	Models       []string           `yaml:"models"`
	Pricing      types.Pricing      `yaml:"pricing"`
	Capabilities types.Capabilities `yaml:"capabilities"`
	Limits       types.Limits       `yaml:"limits"`
}

// Family resolves the backend type, treating unknown types as OpenAI-compatible custom backends.
func (b BackendConfig) Family() types.Family {
	if f, ok := types.ParseFamily(b.Type); ok {
		return f
	}
	return types.FamilyCustom
}

// Configured reports whether the connection credentials needed to reach the backend are present.
// Hosted families need an API key; local and custom backends only need a base URL.
func (b BackendConfig) Configured() bool {
	switch b.Family() {
	case types.FamilyOllama, types.FamilyCustom:
		return b.BaseURL != ""
	default:
		return b.APIKey != "" && b.BaseURL != ""
	}
}

// Profile returns the static profile for this backend.
func (b BackendConfig) Profile() types.BackendProfile {
	models := make([]string, len(b.Models))
	copy(models, b.Models)
	return types.BackendProfile{
		Name:         b.Name,
		Family:       b.Family(),
		Models:       models,
		Pricing:      b.Pricing,
		Capabilities: b.Capabilities,
		Limits:       b.Limits,
	}
}

// DefaultBackends returns the built-in catalog with credentials taken from the environment.
// Order here is the registry order and therefore the router's tie-break order.
func DefaultBackends() *BackendsConfig {
	return &BackendsConfig{Backends: []BackendConfig{
		{
			Name:    "openai",
			Type:    "openai",
			BaseURL: envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Timeout: 60 * time.Second,
			Models:  []string{"gpt-4", "gpt-4-turbo", "gpt-3.5-turbo"},
			Pricing: types.Pricing{InputPer1K: 0.03, OutputPer1K: 0.06},
			Capabilities: types.Capabilities{
				Text: true, Code: true, ImageAnalysis: true, DocumentAnalysis: true,
				FunctionCalling: true, Streaming: true,
			},
			Limits: types.Limits{MaxTokens: 4096, RequestsPerMinute: 3500, RequestsPerDay: 10000},
		},
		{
			Name:       "anthropic",
			Type:       "anthropic",
			BaseURL:    envOrDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
			APIKey:     os.Getenv("ANTHROPIC_API_KEY"),
			APIVersion: "2023-06-01",
			Timeout:    60 * time.Second,
			Models:     []string{"claude-3-opus-20240229", "claude-3-sonnet-20240229", "claude-3-haiku-20240307"},
			Pricing:    types.Pricing{InputPer1K: 0.015, OutputPer1K: 0.075},
			Capabilities: types.Capabilities{
				Text: true, Code: true, ImageAnalysis: true, DocumentAnalysis: true,
				FunctionCalling: true, Streaming: true,
			},
			Limits: types.Limits{MaxTokens: 4096, RequestsPerMinute: 1000, RequestsPerDay: 10000},
		},
		{
			Name:    "gemini",
			Type:    "gemini",
			BaseURL: envOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			Timeout: 60 * time.Second,
			Models:  []string{"gemini-pro", "gemini-pro-vision"},
			Pricing: types.Pricing{InputPer1K: 0.00025, OutputPer1K: 0.0005},
			Capabilities: types.Capabilities{
				Text: true, Code: true, ImageAnalysis: true, DocumentAnalysis: false,
				FunctionCalling: true, Streaming: true,
			},
			Limits: types.Limits{MaxTokens: 2048, RequestsPerMinute: 60, RequestsPerDay: 1500},
		},
		{
			Name:    "ollama",
			Type:    "ollama",
			BaseURL: os.Getenv("OLLAMA_BASE_URL"),
			Timeout: 120 * time.Second,
			Models:  []string{"llama2", "codellama", "mistral"},
			Pricing: types.Pricing{},
			Capabilities: types.Capabilities{
				Text: true, Code: true, Streaming: true,
			},
			Limits: types.Limits{MaxTokens: 2048},
		},
	}}
}

// CustomBackend returns the profile used for an OpenAI-compatible backend registered by name:url.
func CustomBackend(name, baseURL string) BackendConfig {
	return BackendConfig{
		Name:    name,
		Type:    string(types.FamilyCustom),
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  os.Getenv(strings.ToUpper(name) + "_API_KEY"),
		Timeout: 60 * time.Second,
		Models:  []string{"default"},
		Capabilities: types.Capabilities{
			Text: true, Code: true,
		},
		Limits: types.Limits{MaxTokens: 2048},
	}
}

// ParseCustomBackends parses a comma-separated list of name:url pairs.
// The pair is split on the first colon so URLs keep their scheme.
func ParseCustomBackends(s string) ([]BackendConfig, error) {
	var out []BackendConfig
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, url, ok := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		url = strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid custom backend %q: want name:url", entry)
		}
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return nil, fmt.Errorf("invalid custom backend %q: url must be http(s)", entry)
		}
		out = append(out, CustomBackend(name, url))
	}
	return out, nil
}

// WithCustom appends custom backends whose names are not already present.
func (c *BackendsConfig) WithCustom(custom []BackendConfig) *BackendsConfig {
	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		seen[b.Name] = true
	}
	for _, b := range custom {
		if seen[b.Name] {
			continue
		}
		seen[b.Name] = true
		c.Backends = append(c.Backends, b)
	}
	return c
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
