package models

// Document is the unit of ingestion: an uploaded file whose raw bytes have
// been extracted to text. Documents are not persisted; only their chunks and
// embeddings are persisted.
type Document struct {
	ID       string
	Filename string
	Filetype string // "pdf" or "text"
	Text     string
}

// Chunk is a contiguous slice of a document's extracted text, sized for
// embedding. Chunks are immutable once created. The ID is derived from the
// document id plus the chunk's offset, so re-ingesting identical input
// yields identical ids and upserts replace instead of duplicating.
type Chunk struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	DocumentID string `json:"document_id"`
	Offset     int    `json:"offset"`
	Length     int    `json:"length"`
}

// IndexEntry is the persisted union of a chunk and its embedding, keyed by
// the chunk id inside the vector index.
type IndexEntry struct {
	Chunk  Chunk
	Vector []float32
	Model  string
}

// ScoredChunk pairs a retrieved chunk with its similarity score.
// Higher scores mean more similar, regardless of the configured metric.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult is an ordered sequence of scored chunks, descending by
// similarity. Its length is at most the requested k.
type RetrievalResult []ScoredChunk

// Answer is the outcome of a single generation call. Text stays nil until
// generation succeeds. ContextUsed always holds the exact assembled context
// so the caller can inspect what was (or would have been) sent to the model.
type Answer struct {
	Text        *string
	Evidence    []Chunk
	ContextUsed string
}
