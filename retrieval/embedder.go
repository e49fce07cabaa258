package retrieval

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Embedder converts query text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// GenAIEmbedder generates embeddings using Google's Gemini embedding API.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
	dims   int
}

// NewGenAIEmbedder creates an embedder for the given model. An empty model
// falls back to gemini-embedding-001.
func NewGenAIEmbedder(ctx context.Context, apiKey, model string) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIEmbedder{
		client: client,
		model:  model,
		dims:   768,
	}, nil
}

// Embed generates a retrieval-query embedding for a single text.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		genai.Text(text),
		&genai.EmbedContentConfig{TaskType: "RETRIEVAL_QUERY"},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// Dimensions returns the dimensionality of produced embeddings.
func (e *GenAIEmbedder) Dimensions() int {
	return e.dims
}
