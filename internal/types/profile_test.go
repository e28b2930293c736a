package types

import (
	"math"
	"testing"
)

func TestParseFamily(t *testing.T) {
	tests := []struct {
		input string
		want  Family
		valid bool
	}{
		{"openai", FamilyOpenAI, true},
		{"Anthropic", FamilyAnthropic, true},
		{"gemini", FamilyGemini, true},
		{"ollama", FamilyOllama, true},
		{"custom", FamilyCustom, true},
		{"bedrock", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseFamily(tt.input)
		if ok != tt.valid || got != tt.want {
			t.Errorf("ParseFamily(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.valid)
		}
	}
}

func TestPricingCost(t *testing.T) {
	p := Pricing{InputPer1K: 0.03, OutputPer1K: 0.06}

	tests := []struct {
		prompt, completion int
		want               float64
	}{
		{0, 0, 0},
		{1000, 0, 0.03},
		{0, 1000, 0.06},
		{500, 250, 0.015 + 0.015},
	}

	for _, tt := range tests {
		got := p.Cost(tt.prompt, tt.completion)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Cost(%d, %d) = %v, want %v", tt.prompt, tt.completion, got, tt.want)
		}
	}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	if math.Abs(DefaultWeights.Sum()-1.0) > 1e-9 {
		t.Errorf("weights sum = %v, want 1.0", DefaultWeights.Sum())
	}
}

func TestProfileDefaultModel(t *testing.T) {
	p := BackendProfile{Models: []string{"gpt-4", "gpt-3.5-turbo"}}
	if p.DefaultModel() != "gpt-4" {
		t.Errorf("DefaultModel() = %q, want gpt-4", p.DefaultModel())
	}
	if !p.SupportsModel("gpt-3.5-turbo") {
		t.Error("expected gpt-3.5-turbo to be supported")
	}
	if p.SupportsModel("claude-3-opus") {
		t.Error("expected claude-3-opus to be unsupported")
	}
	if (BackendProfile{}).DefaultModel() != "" {
		t.Error("expected empty default model for empty profile")
	}
}

func TestCapabilitiesList(t *testing.T) {
	c := Capabilities{Text: true, Code: true, Streaming: true}
	got := c.List()
	want := []string{"text", "code", "streaming"}
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	var o Options
	if o.MaxTokensOrDefault() != DefaultMaxTokens {
		t.Errorf("MaxTokensOrDefault() = %d, want %d", o.MaxTokensOrDefault(), DefaultMaxTokens)
	}
	if o.TemperatureOrDefault() != DefaultTemperature {
		t.Errorf("TemperatureOrDefault() = %v, want %v", o.TemperatureOrDefault(), DefaultTemperature)
	}

	temp := 0.0
	o = Options{MaxTokens: 50, Temperature: &temp}
	if o.MaxTokensOrDefault() != 50 {
		t.Errorf("MaxTokensOrDefault() = %d, want 50", o.MaxTokensOrDefault())
	}
	if o.TemperatureOrDefault() != 0 {
		t.Errorf("TemperatureOrDefault() = %v, want 0", o.TemperatureOrDefault())
	}
}

func TestAutoRouted(t *testing.T) {
	tests := []struct {
		backend string
		auto    bool
	}{
		{"", true},
		{"auto", true},
		{"openai", false},
	}
	for _, tt := range tests {
		r := CompletionRequest{Backend: tt.backend}
		if r.AutoRouted() != tt.auto {
			t.Errorf("AutoRouted() with backend %q = %v, want %v", tt.backend, r.AutoRouted(), tt.auto)
		}
	}
}
