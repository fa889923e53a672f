package embedding

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-embedding-001"

type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dim int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required for the gemini embedding provider")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiEmbedder{client: client, model: model, dim: dim}, nil
}

func (p *GeminiEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var cfg *genai.EmbedContentConfig
	if p.dim > 0 {
		dim := int32(p.dim)
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	resp, err := p.client.Models.EmbedContent(ctx, p.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("gemini returned no embeddings")
	}

	vec := resp.Embeddings[0].Values
	if err := checkDim(vec, p.dim); err != nil {
		return nil, err
	}
	return vec, nil
}

func (p *GeminiEmbedder) ModelName() string {
	return p.model
}
