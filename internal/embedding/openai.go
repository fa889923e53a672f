package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = openai.EmbeddingModelTextEmbedding3Small

// OpenAIEmbedder embeds text with the OpenAI embeddings API. The requested
// dimensionality must match the stored asset vectors.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

func NewOpenAIEmbedder(apiKey, model string, dim int, opts ...option.RequestOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_TOKEN is required for the openai embedding provider")
	}
	if model == "" {
		model = string(defaultOpenAIModel)
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIEmbedder{client: &client, model: model, dim: dim}, nil
}

func (p *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(p.model),
	}
	if p.dim > 0 {
		params.Dimensions = openai.Int(int64(p.dim))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai returned no embeddings")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	if err := checkDim(vec, p.dim); err != nil {
		return nil, err
	}
	return vec, nil
}

func (p *OpenAIEmbedder) ModelName() string {
	return p.model
}
