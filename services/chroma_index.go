package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"github.com/docqa/rag/models"
)

// ChromaIndex adapts a ChromaDB collection to the VectorIndex contract.
// Chroma reports distances; they are converted to descending-better
// similarity scores according to the configured metric.
type ChromaIndex struct {
	collection chromago.Collection
	meta       models.IndexMetadata
}

// NewChromaIndex gets or creates the named collection using the v2 API and
// records the index metadata (granularity, strategy, embedding model,
// dimension, metric) on it, so an index built under a different policy is
// inspectable and detectable.
func NewChromaIndex(ctx context.Context, client chromago.Client, name string, meta models.IndexMetadata) (*ChromaIndex, error) {
	log.Printf("INDEX: Getting or creating collection '%s' using v2 API...", name)

	collection, err := client.GetOrCreateCollection(
		ctx,
		name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("hnsw:space", chromaSpace(meta.Metric)),
				chromago.NewStringAttribute("chunk_granularity", meta.Granularity),
				chromago.NewStringAttribute("chunk_strategy", meta.Strategy),
				chromago.NewStringAttribute("embedding_model", meta.EmbeddingModel),
				chromago.NewIntAttribute("embedding_dimension", int64(meta.Dimension)),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection %q: %w", name, err)
	}

	log.Printf("INDEX: Successfully got/created collection '%s'", name)
	return &ChromaIndex{collection: collection, meta: meta}, nil
}

func (c *ChromaIndex) Metadata() models.IndexMetadata { return c.meta }

// Upsert writes all entries in one call. Existing chunk ids are replaced,
// which is what makes re-ingestion idempotent.
func (c *ChromaIndex) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ids := make([]chromago.DocumentID, 0, len(entries))
	texts := make([]string, 0, len(entries))
	vectors := make([]embeddings.Embedding, 0, len(entries))
	metadatas := make([]chromago.DocumentMetadata, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, chromago.DocumentID(e.Chunk.ID))
		texts = append(texts, e.Chunk.Text)
		vectors = append(vectors, embeddings.NewEmbeddingFromFloat32(e.Vector))
		metadatas = append(metadatas, chromago.NewDocumentMetadata(
			chromago.NewStringAttribute("doc_id", e.Chunk.DocumentID),
			chromago.NewIntAttribute("offset", int64(e.Chunk.Offset)),
			chromago.NewIntAttribute("length", int64(e.Chunk.Length)),
			chromago.NewStringAttribute("embedding_model", e.Model),
		))
	}

	err := c.collection.Upsert(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(vectors...),
		chromago.WithMetadatas(metadatas...),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %d entries into chromadb: %w", len(entries), err)
	}
	return nil
}

// Query embeds nothing itself: it takes a ready vector, asks Chroma for the
// k nearest entries, and rebuilds chunks from documents plus metadata.
func (c *ChromaIndex) Query(ctx context.Context, vector []float32, k int) (models.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidQuery, k)
	}

	count, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return models.RetrievalResult{}, nil
	}
	if k > count {
		k = count
	}

	results, err := c.collection.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(k),
		chromago.WithIncludeQuery(chromago.IncludeDocuments, chromago.IncludeMetadatas, chromago.Include("distances")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromadb: %w", err)
	}

	idGroups := results.GetIDGroups()
	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()
	distanceGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 {
		return models.RetrievalResult{}, nil
	}

	out := make(models.RetrievalResult, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		chunk := models.Chunk{ID: string(id)}
		if len(documentGroups) > 0 && i < len(documentGroups[0]) {
			chunk.Text = documentGroups[0][i].ContentString()
		}
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) && metadataGroups[0][i] != nil {
			chunk.DocumentID, chunk.Offset, chunk.Length = chunkLocation(metadataGroups[0][i])
		}
		score := 0.0
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			score = distanceToScore(c.meta.Metric, float64(distanceGroups[0][i]))
		}
		out = append(out, models.ScoredChunk{Chunk: chunk, Score: score})
	}
	return out, nil
}

func (c *ChromaIndex) Count(ctx context.Context) (int, error) {
	count, err := c.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count items in collection: %w", err)
	}
	return int(count), nil
}

// DeleteByDocument removes every chunk recorded under the document id.
func (c *ChromaIndex) DeleteByDocument(ctx context.Context, docID string) error {
	where := chromago.EqString("doc_id", docID)
	if err := c.collection.Delete(ctx, chromago.WithWhereDelete(where)); err != nil {
		return fmt.Errorf("failed to delete document %s from chromadb: %w", docID, err)
	}
	return nil
}

// Reset drops every entry from the collection.
func (c *ChromaIndex) Reset(ctx context.Context) error {
	results, err := c.collection.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collection entries: %w", err)
	}
	ids := results.GetIDs()
	if len(ids) == 0 {
		return nil
	}
	if err := c.collection.Delete(ctx, chromago.WithIDsDelete(ids...)); err != nil {
		return fmt.Errorf("failed to reset collection: %w", err)
	}
	return nil
}

// chunkLocation recovers the chunk provenance from document metadata. The
// DocumentMetadata type exposes no map accessor, so it is round-tripped
// through JSON.
func chunkLocation(metadata chromago.DocumentMetadata) (docID string, offset, length int) {
	jsonBytes, err := json.Marshal(metadata)
	if err != nil {
		log.Printf("WARN: could not marshal chunk metadata: %v", err)
		return "", 0, 0
	}
	var m map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &m); err != nil {
		log.Printf("WARN: could not unmarshal chunk metadata: %v", err)
		return "", 0, 0
	}
	if v, ok := m["doc_id"].(string); ok {
		docID = v
	}
	if v, ok := m["offset"].(float64); ok {
		offset = int(v)
	}
	if v, ok := m["length"].(float64); ok {
		length = int(v)
	}
	return docID, offset, length
}

// distanceToScore converts a Chroma distance into a descending-better
// similarity. Cosine distance is 1 - similarity; l2 and inner-product
// distances already grow with dissimilarity and are negated.
func distanceToScore(metric string, distance float64) float64 {
	switch metric {
	case models.MetricDot, models.MetricL2:
		return -distance
	default:
		return 1 - distance
	}
}

// chromaSpace maps the configured metric to Chroma's hnsw:space values.
func chromaSpace(metric string) string {
	switch metric {
	case models.MetricDot:
		return "ip"
	case models.MetricL2:
		return "l2"
	default:
		return "cosine"
	}
}
