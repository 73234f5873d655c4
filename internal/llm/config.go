// Package llm provides centralized LLM configuration and client abstractions.
// A single Client interface covers Gemini and the OpenAI-compatible providers.
package llm

import (
	"fmt"
	"os"
	"strings"
)

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for simple tasks: answer validation, scenario generation
	TierLite ModelTier = "lite"
	// TierStandard is for moderate reasoning: diagnosis, critique, presentation
	TierStandard ModelTier = "standard"
	// TierAdvanced is for complex reasoning: evidence-backed risk scoring
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is the OpenAI provider
	ProviderOpenAI Provider = "openai"
	// ProviderGroq is Groq's OpenAI-compatible endpoint
	ProviderGroq Provider = "groq"
)

// GroqBaseURL is the OpenAI-compatible API root for Groq.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// DefaultTemperature keeps assessments consistent between runs.
const DefaultTemperature = 0.2

// Tuning holds per-tier generation settings.
type Tuning struct {
	Temperature     float32
	MaxOutputTokens int32
}

// DefaultTuning keeps answer validation near-deterministic and gives the
// evidence-backed scoring stage room for its findings table and JSON block.
func DefaultTuning() map[ModelTier]Tuning {
	return map[ModelTier]Tuning{
		TierLite:     {Temperature: 0.1, MaxOutputTokens: 2048},
		TierStandard: {Temperature: DefaultTemperature, MaxOutputTokens: 4096},
		TierAdvanced: {Temperature: DefaultTemperature, MaxOutputTokens: 8192},
	}
}

// Config holds the model configuration for the application
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
	Tuning   map[ModelTier]Tuning
	// Temperature, when positive, overrides every tier's temperature.
	Temperature float32
	BaseURL     string // optional override for OpenAI-compatible providers
}

// TuningFor returns the generation settings for a tier.
func (c *Config) TuningFor(tier ModelTier) Tuning {
	t, ok := c.Tuning[tier]
	if !ok {
		t = DefaultTuning()[tier]
	}
	if c.Temperature > 0 {
		t.Temperature = c.Temperature
	}
	if t.Temperature <= 0 {
		t.Temperature = DefaultTemperature
	}
	return t
}

// DefaultConfig returns the default configuration (currently Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Tuning:      DefaultTuning(),
	}
}

// DefaultOpenAIConfig returns the default OpenAI configuration
func DefaultOpenAIConfig() *Config {
	return &Config{
		Provider: ProviderOpenAI,
		Models: map[ModelTier]string{
			TierLite:     "gpt-4o-mini",
			TierStandard: "gpt-4o",
			TierAdvanced: "gpt-4o",
		},
		Tuning:      DefaultTuning(),
	}
}

// DefaultGroqConfig returns the default Groq configuration
func DefaultGroqConfig() *Config {
	return &Config{
		Provider: ProviderGroq,
		Models: map[ModelTier]string{
			TierLite:     "mixtral-8x7b-32768",
			TierStandard: "llama-3.3-70b-versatile",
			TierAdvanced: "deepseek-r1-distill-llama-70b",
		},
		Tuning:      DefaultTuning(),
		BaseURL:     GroqBaseURL,
	}
}

// ConfigFor returns the default configuration for a provider name.
func ConfigFor(provider string) (*Config, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(provider))) {
	case "", ProviderGemini:
		return DefaultGeminiConfig(), nil
	case ProviderOpenAI:
		return DefaultOpenAIConfig(), nil
	case ProviderGroq:
		return DefaultGroqConfig(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// APIKeyEnv returns the environment variable holding the provider's API key.
func APIKeyEnv(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGroq:
		return "GROQ_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

// APIKey reads the provider's API key from the environment.
func APIKey(p Provider) string {
	return os.Getenv(APIKeyEnv(p))
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return "" // No model configured
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider:    c.Provider,
		Models:      make(map[ModelTier]string),
		Tuning:      make(map[ModelTier]Tuning, len(c.Tuning)),
		Temperature: c.Temperature,
		BaseURL:     c.BaseURL,
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	for k, v := range c.Tuning {
		newConfig.Tuning[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}

// WithAllModels returns a new Config that uses model for every tier.
func (c *Config) WithAllModels(model string) *Config {
	out := c.WithModel(TierLite, model)
	out.Models[TierStandard] = model
	out.Models[TierAdvanced] = model
	return out
}
