package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultEmbeddingURL   = "http://localhost:8000"
	defaultEmbeddingModel = "clip" // model name for reference only
)

// HTTPEmbedder computes CLIP text embeddings using the embedding server
type HTTPEmbedder struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

// NewHTTPEmbedder creates a new embedding server client
func NewHTTPEmbedder(baseURL, model string, dim int) *HTTPEmbedder {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &HTTPEmbedder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		dim:     dim,
		client:  &http.Client{},
	}
}

// embeddingResponse represents the response from the embedding server
type embeddingResponse struct {
	Dim        int       `json:"dim"`
	Embedding  []float32 `json:"embedding"`
	Model      string    `json:"model"`
	Pretrained string    `json:"pretrained"`
}

// textEmbeddingRequest represents the request body for text embedding
type textEmbeddingRequest struct {
	Text string `json:"text"`
}

// EmbedText computes the CLIP embedding for a text query
func (c *HTTPEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(textEmbeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed/text", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if err := checkDim(embResp.Embedding, c.dim); err != nil {
		return nil, err
	}
	return embResp.Embedding, nil
}

// ModelName returns the model name being used
func (c *HTTPEmbedder) ModelName() string {
	return c.model
}
