package services

import "errors"

// Error taxonomy for the pipeline. Every failure path wraps one of these
// sentinels, so callers can match with errors.Is and still see the failing
// stage and underlying cause. Provider internals such as API keys must
// never appear in error text.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrExtraction          = errors.New("text extraction failed")
	ErrChunking            = errors.New("invalid chunking parameters")
	ErrEmbeddingService    = errors.New("embedding service failure")
	ErrEmbeddingDimension  = errors.New("embedding dimension mismatch")
	ErrInvalidQuery        = errors.New("invalid query")
	ErrRetrieval           = errors.New("retrieval failed")
	ErrGenerationService   = errors.New("generation service failure")
	ErrIndexConsistency    = errors.New("index consistency violation")
)
