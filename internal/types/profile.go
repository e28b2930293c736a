package types

import "strings"

type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
	FamilyGemini    Family = "gemini"
	FamilyOllama    Family = "ollama"
	FamilyCustom    Family = "custom"
)

// ParseFamily returns the family for a backend type string.
func ParseFamily(s string) (Family, bool) {
	switch Family(strings.ToLower(s)) {
	case FamilyOpenAI, FamilyAnthropic, FamilyGemini, FamilyOllama, FamilyCustom:
		return Family(strings.ToLower(s)), true
	default:
		return "", false
	}
}

// BackendProfile is the static description of one configured backend.
// It is never modified after registration.
type BackendProfile struct {
	Name         string       `json:"name" yaml:"name"`
	Family       Family       `json:"family" yaml:"family"`
	Models       []string     `json:"models" yaml:"models"`
	Pricing      Pricing      `json:"pricing" yaml:"pricing"`
	Capabilities Capabilities `json:"capabilities" yaml:"capabilities"`
	Limits       Limits       `json:"limits" yaml:"limits"`
}

// DefaultModel is the first supported model, used when a request names a backend but no model.
func (p BackendProfile) DefaultModel() string {
	if len(p.Models) == 0 {
		return ""
	}
	return p.Models[0]
}

// SupportsModel reports whether model is in the profile's model list.
func (p BackendProfile) SupportsModel(model string) bool {
	for _, m := range p.Models {
		if m == model {
			return true
		}
	}
	return false
}

// Pricing is in USD per 1000 tokens.
type Pricing struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// Combined is the summed input and output price per 1000 tokens.
func (p Pricing) Combined() float64 {
	return p.InputPer1K + p.OutputPer1K
}

// Cost computes the monetary cost of a call with the given token counts.
func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*p.InputPer1K + float64(completionTokens)/1000*p.OutputPer1K
}

type Capabilities struct {
	Text             bool `json:"text" yaml:"text"`
	Code             bool `json:"code" yaml:"code"`
	ImageAnalysis    bool `json:"image_analysis" yaml:"image_analysis"`
	DocumentAnalysis bool `json:"document_analysis" yaml:"document_analysis"`
	FunctionCalling  bool `json:"function_calling" yaml:"function_calling"`
	Streaming        bool `json:"streaming" yaml:"streaming"`
}

// List returns the names of the enabled capabilities in a fixed order.
func (c Capabilities) List() []string {
	var out []string
	if c.Text {
		out = append(out, "text")
	}
	if c.Code {
		out = append(out, "code")
	}
	if c.ImageAnalysis {
		out = append(out, "image_analysis")
	}
	if c.DocumentAnalysis {
		out = append(out, "document_analysis")
	}
	if c.FunctionCalling {
		out = append(out, "function_calling")
	}
	if c.Streaming {
		out = append(out, "streaming")
	}
	return out
}

type Limits struct {
	MaxTokens         int `json:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	RequestsPerDay    int `json:"requests_per_day" yaml:"requests_per_day"`
}

// ProfileStatus pairs a profile with its current availability for listings.
type ProfileStatus struct {
	BackendProfile
	Available bool `json:"available"`
}
