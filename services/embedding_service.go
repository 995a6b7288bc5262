package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/docqa/rag/models"
)

// Embedder converts texts into fixed-dimension vectors. The returned slice
// is parallel to the input. Implementations batch large inputs transparently
// and retry transient failures with bounded exponential backoff.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

const (
	// embedMaxAttempts bounds the retry loop for transient failures.
	embedMaxAttempts = 3
	// embedBaseBackoff is doubled after each failed attempt.
	embedBaseBackoff = 500 * time.Millisecond
)

// transientError marks a failure as eligible for retry (timeouts, rate
// limits, 5xx responses). Auth and malformed-input failures are never
// wrapped, so they surface immediately.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// retryEmbed runs fn up to embedMaxAttempts times, backing off between
// attempts. Non-transient failures surface on the first occurrence.
func retryEmbed(ctx context.Context, fn func() ([][]float32, error)) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= embedMaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(math.Pow(2, float64(attempt-2))) * embedBaseBackoff
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, ctx.Err())
			case <-time.After(backoff):
			}
		}

		vectors, err := fn()
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, err)
		}
		log.Printf("EMBEDDER: transient failure (attempt %d/%d): %v", attempt, embedMaxAttempts, err)
	}
	return nil, fmt.Errorf("%w: giving up after %d attempts: %v", ErrEmbeddingService, embedMaxAttempts, lastErr)
}

// validateVectors checks the count and dimensionality of a provider response.
func validateVectors(vectors [][]float32, want, dimension int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingService, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return fmt.Errorf("%w: vector %d has length %d, model dimension is %d", ErrEmbeddingDimension, i, len(v), dimension)
		}
	}
	return nil
}

// batchTexts splits texts into batches of at most n, preserving order.
func batchTexts(texts []string, n int) [][]string {
	if n <= 0 {
		n = 1
	}
	var batches [][]string
	for start := 0; start < len(texts); start += n {
		end := start + n
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[start:end])
	}
	return batches
}

// OllamaEmbedder generates embeddings with a local Ollama instance via its
// batch endpoint. The injected http.Client's timeout bounds each attempt.
type OllamaEmbedder struct {
	httpClient *http.Client
	baseURL    string
	model      string
	dimension  int
	maxBatch   int
}

func NewOllamaEmbedder(httpClient *http.Client, baseURL, model string, dimension, maxBatch int) *OllamaEmbedder {
	return &OllamaEmbedder{
		httpClient: httpClient,
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
		maxBatch:   maxBatch,
	}
}

func (e *OllamaEmbedder) Model() string  { return e.model }
func (e *OllamaEmbedder) Dimension() int { return e.dimension }

// Embed batches the texts, retries transient failures per batch, and
// validates every returned vector against the configured dimensionality.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
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

func (e *OllamaEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	reqBody, err := json.Marshal(models.OllamaEmbedRequest{
		Model: e.model,
		Input: batch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		// Client timeouts come back as url.Error with Timeout() set and are
		// picked up by isTransient.
		return nil, fmt.Errorf("failed to call ollama embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		statusErr := fmt.Errorf("ollama api returned status %d: %s", resp.StatusCode, string(bodyBytes))
		if isRetryableStatus(resp.StatusCode) {
			return nil, &transientError{statusErr}
		}
		return nil, statusErr
	}

	var ollamaResp models.OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	return ollamaResp.Embeddings, nil
}
