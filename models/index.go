package models

// Chunk window granularities. The granularity is recorded in the index
// metadata so a pipeline configured with a different policy is rejected
// instead of silently mixing boundaries.
const (
	GranularityRunes  = "runes"
	GranularityTokens = "tokens"
)

// Similarity metrics supported by the vector index. The metric must match
// whatever geometry the embedding model was trained for, so it is a
// configuration decision rather than a hardcoded default.
const (
	MetricCosine = "cosine"
	MetricDot    = "dot"
	MetricL2     = "l2"
)

// Chunking strategies.
const (
	StrategyWindow    = "window"
	StrategyRecursive = "recursive"
)

// IndexMetadata describes how an index was built. It is persisted alongside
// the collection; on open it is compared against the running pipeline's
// configuration and any disagreement is an index consistency error.
type IndexMetadata struct {
	Granularity    string
	Strategy       string
	EmbeddingModel string
	Dimension      int
	Metric         string
}

// IngestStatus tracks the per-document ingestion state machine:
// received → chunked → embedded → indexed, or failed at any stage.
type IngestStatus string

const (
	StatusReceived IngestStatus = "received"
	StatusChunked  IngestStatus = "chunked"
	StatusEmbedded IngestStatus = "embedded"
	StatusIndexed  IngestStatus = "indexed"
	StatusFailed   IngestStatus = "failed"
)

// Ingestion stage names reported on failure.
const (
	StageExtraction = "extraction"
	StageChunking   = "chunking"
	StageEmbedding  = "embedding"
	StageIndexing   = "indexing"
)
