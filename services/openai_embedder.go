package services

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder generates embeddings through the OpenAI API or any
// OpenAI-compatible endpoint (LM Studio, vLLM) when a base URL is given.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	maxBatch  int
}

func NewOpenAIEmbedder(apiKey, baseURL, model string, dimension, maxBatch int) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		dimension: dimension,
		maxBatch:  maxBatch,
	}
}

func (e *OpenAIEmbedder) Model() string  { return e.model }
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range batchTexts(texts, e.maxBatch) {
		batch := batch
		vectors, err := retryEmbed(ctx, func() ([][]float32, error) {
			return e.embedBatch(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		if err := validateVectors(vectors, len(batch), e.dimension); err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: batch,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && isRetryableStatus(apiErr.HTTPStatusCode) {
			return nil, &transientError{err}
		}
		return nil, fmt.Errorf("openai embeddings call failed: %w", err)
	}

	// Each response item carries the index of the input it belongs to; the
	// output must stay parallel to the input.
	vectors := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("openai returned out-of-range embedding index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("openai returned no embedding for input %d", i)
		}
	}
	return vectors, nil
}
