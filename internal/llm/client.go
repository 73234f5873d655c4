package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client is an abstraction over LLM providers
type Client interface {
	// GenerateContent generates text content using the specified model tier
	GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error)
	// GenerateJSON generates JSON content using the specified model tier
	GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error)
	// GetModel returns the underlying provider model for a tier (for direct access if needed)
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// SystemInstruction frames every assessment call. Stage prompts carry the
// task; this only fixes the role and the no-diagnosis boundary.
const SystemInstruction = "You support a chronic kidney disease risk screening tool. " +
	"You estimate risk from a patient's questionnaire answers and cited guideline evidence. " +
	"You never give a diagnosis or treatment plan and you never invent answers the patient did not give."

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey)
	case ProviderOpenAI, ProviderGroq:
		return NewOpenAIClient(config, apiKey)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}

// BlockedError reports a response withheld by the provider's safety filter.
// Symptom questions (blood in urine, confusion) occasionally trip it.
type BlockedError struct {
	Model  string
	Tier   ModelTier
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s (%s tier) withheld its response: %s", e.Model, e.Tier, e.Reason)
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client, config: config}, nil
}

// GenerateContent generates text content using the specified model tier
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	return c.generate(ctx, prompt, tier, false)
}

// GenerateJSON generates JSON content using the specified model tier
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	text, err := c.generate(ctx, prompt, tier, true)
	if err != nil {
		return "", err
	}
	return CleanJSONBlock(text), nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string, tier ModelTier, asJSON bool) (string, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for tier %s", tier)
	}

	model := c.client.GenerativeModel(modelName)
	configureModel(model, c.config.TuningFor(tier), asJSON)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", &BlockedError{Model: modelName, Tier: tier, Reason: blockReason(blocked)}
		}
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", fmt.Errorf("%s (%s tier): %w", modelName, tier, err)
	}
	return text, nil
}

// configureModel applies the tier's tuning, the assessment system instruction
// and safety thresholds that let symptom descriptions through.
func configureModel(model *genai.GenerativeModel, tuning Tuning, asJSON bool) {
	model.SetTemperature(tuning.Temperature)
	if tuning.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(tuning.MaxOutputTokens)
	}
	model.SystemInstruction = genai.NewUserContent(genai.Text(SystemInstruction))
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockOnlyHigh},
	}
	if asJSON {
		model.ResponseMIMEType = "application/json"
	}
}

func blockReason(err *genai.BlockedError) string {
	switch {
	case err.PromptFeedback != nil:
		return "prompt " + err.PromptFeedback.BlockReason.String()
	case err.Candidate != nil:
		return "response " + err.Candidate.FinishReason.String()
	default:
		return "unknown"
	}
}

// GetModel returns the model name for a tier
func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse joins the text parts of the first candidate. A
// response cut off at the token limit is an error so a truncated findings
// block never reaches the parser.
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonMaxTokens {
		return "", fmt.Errorf("response truncated at the output token limit")
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	text := strings.Join(parts, "")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text parts in response")
	}
	return text, nil
}
