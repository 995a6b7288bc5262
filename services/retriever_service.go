package services

import (
	"context"
	"fmt"
	"log"

	"github.com/docqa/rag/models"
)

// Retriever embeds a question and ranks the most similar indexed chunks.
type Retriever struct {
	embedder Embedder
	index    VectorIndex
}

func NewRetriever(embedder Embedder, index VectorIndex) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Retrieve embeds the query as a single-item batch and asks the index for
// the top k entries. An empty index yields an empty result, a valid
// terminal state, not an error. Underlying failures are wrapped in
// ErrRetrieval, never masked.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (models.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidQuery, k)
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", ErrRetrieval, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 query vector, got %d", ErrRetrieval, len(vectors))
	}

	result, err := r.index.Query(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("%w: querying index: %w", ErrRetrieval, err)
	}

	log.Printf("RETRIEVER: Retrieved %d chunks for query (k=%d)", len(result), k)
	return result, nil
}
