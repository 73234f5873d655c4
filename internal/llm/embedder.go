package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

// Embedder turns text into vectors. Provider and Model identify the representation so
// that an index is never queried with a different one.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Provider() string
	Model() string
}

// Default embedding models per provider.
const (
	GeminiEmbeddingModel = "text-embedding-004"
	OpenAIEmbeddingModel = string(openai.SmallEmbedding3)
)

// NewEmbedder creates the embedder for a provider. Groq has no embedding endpoint,
// so callers index with Gemini or OpenAI.
func NewEmbedder(ctx context.Context, provider Provider, apiKey string) (Embedder, error) {
	switch provider {
	case ProviderGemini, "":
		return NewGeminiEmbedder(ctx, apiKey, GeminiEmbeddingModel)
	case ProviderOpenAI:
		return NewOpenAIEmbedder(apiKey, OpenAIEmbeddingModel)
	default:
		return nil, fmt.Errorf("provider %s does not support embeddings", provider)
	}
}

// GeminiEmbedder embeds text with a Gemini embedding model.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedder creates a Gemini embedder.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

// Embed returns one vector per input text.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(res.Embeddings))
	}

	out := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// Provider returns "gemini".
func (e *GeminiEmbedder) Provider() string { return string(ProviderGemini) }

// Model returns the embedding model name.
func (e *GeminiEmbedder) Model() string { return e.model }

// Close releases the underlying client.
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}

// OpenAIEmbedder embeds text with an OpenAI embedding model.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(apiKey, model string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	return &OpenAIEmbedder{client: openai.NewClient(apiKey), model: model}, nil
}

// Embed returns one vector per input text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Provider returns "openai".
func (e *OpenAIEmbedder) Provider() string { return string(ProviderOpenAI) }

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }
