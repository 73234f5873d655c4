package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, ProviderGemini, config.Provider)
	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", config.GetModel(TierStandard))
	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierAdvanced))
	assert.InDelta(t, 0.1, config.TuningFor(TierLite).Temperature, 0.0001)
	assert.InDelta(t, 0.2, config.TuningFor(TierAdvanced).Temperature, 0.0001)
	assert.Equal(t, int32(8192), config.TuningFor(TierAdvanced).MaxOutputTokens)
}

func TestTuningFor_TemperatureOverride(t *testing.T) {
	config := DefaultOpenAIConfig()
	config.Temperature = 0.7
	assert.InDelta(t, 0.7, config.TuningFor(TierLite).Temperature, 0.0001)
	assert.Equal(t, int32(2048), config.TuningFor(TierLite).MaxOutputTokens)

	empty := &Config{}
	assert.InDelta(t, DefaultTemperature, empty.TuningFor(TierStandard).Temperature, 0.0001)
	assert.Equal(t, int32(4096), empty.TuningFor(TierStandard).MaxOutputTokens)
}

func TestConfigFor(t *testing.T) {
	tests := []struct {
		provider string
		want     Provider
		standard string
	}{
		{"", ProviderGemini, "gemini-2.5-flash"},
		{"openai", ProviderOpenAI, "gpt-4o"},
		{"GROQ", ProviderGroq, "llama-3.3-70b-versatile"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg, err := ConfigFor(tt.provider)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Provider)
			assert.Equal(t, tt.standard, cfg.GetModel(TierStandard))
		})
	}

	_, err := ConfigFor("anthropic")
	assert.Error(t, err)
}

func TestDefaultGroqConfig_BaseURL(t *testing.T) {
	assert.Equal(t, GroqBaseURL, DefaultGroqConfig().BaseURL)
	assert.Empty(t, DefaultOpenAIConfig().BaseURL)
}

func TestAPIKeyEnv(t *testing.T) {
	assert.Equal(t, "GEMINI_API_KEY", APIKeyEnv(ProviderGemini))
	assert.Equal(t, "OPENAI_API_KEY", APIKeyEnv(ProviderOpenAI))
	assert.Equal(t, "GROQ_API_KEY", APIKeyEnv(ProviderGroq))

	t.Setenv("GROQ_API_KEY", "gsk-test")
	assert.Equal(t, "gsk-test", APIKey(ProviderGroq))
}

func TestGetModel_Fallback(t *testing.T) {
	config := &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite: "fallback-model",
		},
	}

	// Unknown tier should fallback to TierStandard, then TierLite
	assert.Equal(t, "fallback-model", config.GetModel("unknown"))
}

func TestGetModel_EmptyConfig(t *testing.T) {
	config := &Config{
		Provider: ProviderGemini,
		Models:   map[ModelTier]string{},
	}

	assert.Equal(t, "", config.GetModel(TierAdvanced))
}

func TestWithModel(t *testing.T) {
	config := DefaultGroqConfig()
	newConfig := config.WithModel(TierAdvanced, "custom-model")

	// Original should be unchanged
	assert.Equal(t, "deepseek-r1-distill-llama-70b", config.GetModel(TierAdvanced))
	assert.Equal(t, "custom-model", newConfig.GetModel(TierAdvanced))
	assert.Equal(t, "mixtral-8x7b-32768", newConfig.GetModel(TierLite))
	assert.Equal(t, GroqBaseURL, newConfig.BaseURL)
}

func TestWithModel_CopiesTuning(t *testing.T) {
	base := DefaultGeminiConfig()
	derived := base.WithModel(TierLite, "custom")
	derived.Tuning[TierLite] = Tuning{Temperature: 0.9}
	assert.InDelta(t, 0.1, base.TuningFor(TierLite).Temperature, 0.0001)
}

func TestWithAllModels(t *testing.T) {
	cfg := DefaultOpenAIConfig().WithAllModels("gpt-4o")
	for _, tier := range []ModelTier{TierLite, TierStandard, TierAdvanced} {
		assert.Equal(t, "gpt-4o", cfg.GetModel(tier))
	}
}
