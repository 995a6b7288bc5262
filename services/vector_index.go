package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/docqa/rag/models"
)

// VectorIndex stores chunk embeddings and answers nearest-neighbor queries.
// Upserts are keyed by chunk id and atomic per entry; an entry inserted by a
// caller is visible to that caller's next query, and a concurrent query
// observes either the pre-insert or post-insert state of any entry, never a
// partially written vector.
type VectorIndex interface {
	Upsert(ctx context.Context, entries []models.IndexEntry) error
	Query(ctx context.Context, vector []float32, k int) (models.RetrievalResult, error)
	Count(ctx context.Context) (int, error)
	DeleteByDocument(ctx context.Context, docID string) error
	Reset(ctx context.Context) error
	Metadata() models.IndexMetadata
}

// MemoryIndex is a brute-force in-memory index guarded by a RWMutex. It
// holds thousands of entries comfortably and backs tests and single-process
// deployments; the Chroma adapter covers everything larger.
type MemoryIndex struct {
	mu      sync.RWMutex
	meta    models.IndexMetadata
	order   []string // chunk ids in first-insertion order, for tie-breaking
	entries map[string]models.IndexEntry
}

func NewMemoryIndex(meta models.IndexMetadata) *MemoryIndex {
	return &MemoryIndex{
		meta:    meta,
		entries: make(map[string]models.IndexEntry),
	}
}

func (m *MemoryIndex) Metadata() models.IndexMetadata { return m.meta }

// Upsert validates every entry before touching the store, so a bad batch
// never leaves the index partially updated.
func (m *MemoryIndex) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	for _, e := range entries {
		if m.meta.Dimension > 0 && len(e.Vector) != m.meta.Dimension {
			return fmt.Errorf("%w: entry %s has dimension %d, index dimension is %d",
				ErrIndexConsistency, e.Chunk.ID, len(e.Vector), m.meta.Dimension)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if _, exists := m.entries[e.Chunk.ID]; !exists {
			m.order = append(m.order, e.Chunk.ID)
		}
		m.entries[e.Chunk.ID] = e
	}
	return nil
}

// Query scores every stored vector against the query and returns the top k
// by descending similarity. Ties keep insertion order (earlier wins).
// Querying an empty index returns an empty result, not an error.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, k int) (models.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidQuery, k)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.order) == 0 {
		return models.RetrievalResult{}, nil
	}

	scored := make(models.RetrievalResult, 0, len(m.order))
	for _, id := range m.order {
		entry := m.entries[id]
		scored = append(scored, models.ScoredChunk{
			Chunk: entry.Chunk,
			Score: similarity(m.meta.Metric, vector, entry.Vector),
		})
	}

	// Stable sort preserves insertion order on equal scores.
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *MemoryIndex) DeleteByDocument(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.order[:0]
	for _, id := range m.order {
		if m.entries[id].Chunk.DocumentID == docID {
			delete(m.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return nil
}

func (m *MemoryIndex) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	m.entries = make(map[string]models.IndexEntry)
	return nil
}

// similarity maps the configured metric to a descending-better score.
// Euclidean distance is negated so larger always means more similar.
func similarity(metric string, a, b []float32) float64 {
	switch metric {
	case models.MetricDot:
		return dot(a, b)
	case models.MetricL2:
		return -math.Sqrt(squaredDistance(a, b))
	default: // cosine
		na, nb := norm(a), norm(b)
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (na * nb)
	}
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(a []float32) float64 {
	return math.Sqrt(dot(a, a))
}

func squaredDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
