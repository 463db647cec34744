// Package catalog provides the in-memory registry of model descriptors and
// the capability/speed/cost queries the router runs against it.
package catalog

import (
	"fmt"
	"net/url"
	"strings"
)

// BackendKind identifies the transport a model is reached through. The set
// is closed: adapters are constructed by switching on kind, not by
// registering arbitrary implementations.
type BackendKind string

const (
	BackendHTTPChat       BackendKind = "http_chat"       // Ollama-style /api/chat
	BackendHTTPCompletion BackendKind = "http_completion" // OpenAI-compatible /chat/completions
	BackendInProcess      BackendKind = "in_process"      // local runtime worker
)

// Capability identifies a class of work a model is fit for.
type Capability string

const (
	CapGeneral         Capability = "general"
	CapCode            Capability = "code"
	CapMath            Capability = "math"
	CapReasoning       Capability = "reasoning"
	CapSpeed           Capability = "speed"
	CapVision          Capability = "vision"
	CapFunctionCalling Capability = "function_calling"
)

// SpeedClass buckets models by seconds per short response.
type SpeedClass string

const (
	SpeedUltraFast SpeedClass = "ultra_fast" // <0.5s
	SpeedFast      SpeedClass = "fast"       // 0.5-1.5s
	SpeedMedium    SpeedClass = "medium"     // 1.5-3s
	SpeedSlow      SpeedClass = "slow"       // 3-5s
	SpeedVerySlow  SpeedClass = "very_slow"  // >5s
)

// Rank orders speed classes fastest first.
func (s SpeedClass) Rank() int {
	switch s {
	case SpeedUltraFast:
		return 0
	case SpeedFast:
		return 1
	case SpeedMedium:
		return 2
	case SpeedSlow:
		return 3
	case SpeedVerySlow:
		return 4
	default:
		return 5
	}
}

// PromptFormat selects the token delimiters the in-process runtime renders
// prompts with.
type PromptFormat string

const (
	FormatChatMLv1    PromptFormat = "chatml_v1"
	FormatLlama3v1    PromptFormat = "llama3_v1"
	FormatMistralInst PromptFormat = "mistral_inst"
	FormatGenericTurn PromptFormat = "generic_turn"
)

// Model describes one registered model. Descriptors are immutable after
// registration except for Available, which only the catalog mutates under
// its write lock. Callers always receive copies.
type Model struct {
	ID             string       `json:"id" yaml:"id"`
	Backend        BackendKind  `json:"backend" yaml:"backend"`
	DisplayName    string       `json:"display_name" yaml:"display_name"`
	ParamSizeLabel string       `json:"param_size_label,omitempty" yaml:"param_size_label"`
	QuantLabel     string       `json:"quant_label,omitempty" yaml:"quant_label"`
	Capabilities   []Capability `json:"capabilities" yaml:"capabilities"`
	Speed          SpeedClass   `json:"speed_class" yaml:"speed_class"`
	ContextWindow  int          `json:"context_window" yaml:"context_window"`

	// TokensPerSecond is optional; zero means unknown and sorts last
	// among models of the same speed class.
	TokensPerSecond int `json:"tokens_per_second,omitempty" yaml:"tokens_per_second"`

	ResourceFloorGB  int     `json:"resource_floor_gb" yaml:"resource_floor_gb"`
	QualityGeneral   float64 `json:"quality_general" yaml:"quality_general"`
	QualityCode      float64 `json:"quality_code" yaml:"quality_code"`
	QualityReasoning float64 `json:"quality_reasoning" yaml:"quality_reasoning"`
	Cost             float64 `json:"cost" yaml:"cost"`

	// BackendAddress is the base URL for network backends.
	BackendAddress string `json:"backend_address,omitempty" yaml:"backend_address"`

	// ModelPath and Format apply to in-process models only.
	ModelPath string       `json:"model_path,omitempty" yaml:"model_path"`
	Format    PromptFormat `json:"prompt_format,omitempty" yaml:"prompt_format"`

	Available bool `json:"available" yaml:"available"`
}

// HasCapability checks whether the model declares cap.
func (m *Model) HasCapability(cap Capability) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// QualityFor returns the quality score the router compares models by for
// the given capability. Capabilities without a dedicated score fall back
// to the general score.
func (m *Model) QualityFor(cap Capability) float64 {
	switch cap {
	case CapCode:
		return m.QualityCode
	case CapReasoning:
		return m.QualityReasoning
	default:
		return m.QualityGeneral
	}
}

// Validate checks the registration invariants for the descriptor.
func (m *Model) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("model id is required")
	}
	switch m.Backend {
	case BackendHTTPChat, BackendHTTPCompletion:
		// Empty is allowed: the pool falls back to the configured
		// per-kind base URL.
		if m.BackendAddress != "" {
			u, err := url.Parse(m.BackendAddress)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("model %s: backend_address %q is not a valid URL", m.ID, m.BackendAddress)
			}
		}
	case BackendInProcess:
		if strings.TrimSpace(m.ModelPath) == "" {
			return fmt.Errorf("model %s: model_path is required for in-process backends", m.ID)
		}
		if m.Format == "" {
			return fmt.Errorf("model %s: prompt_format is required for in-process backends", m.ID)
		}
	default:
		return fmt.Errorf("model %s: unknown backend kind %q", m.ID, m.Backend)
	}
	for name, score := range map[string]float64{
		"quality_general":   m.QualityGeneral,
		"quality_code":      m.QualityCode,
		"quality_reasoning": m.QualityReasoning,
		"cost":              m.Cost,
	} {
		if score < 0 || score > 1 {
			return fmt.Errorf("model %s: %s %v outside [0,1]", m.ID, name, score)
		}
	}
	if m.TokensPerSecond < 0 {
		return fmt.Errorf("model %s: tokens_per_second must not be negative", m.ID)
	}
	return nil
}
