package services

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/docqa/rag/models"
)

// RAGService is the core pipeline exposed to the HTTP layer: document
// ingestion on one side, retrieval-augmented answering on the other.
type RAGService interface {
	Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResponse, error)
	Ask(ctx context.Context, req models.AskRequest) (*models.AskResponse, error)
	Stats(ctx context.Context) (*models.StatsResponse, error)
}

const (
	// DefaultTopK is the retrieval depth when the caller does not set one.
	DefaultTopK = 5
	// chunkPreviewLimit bounds how many chunks the ingest response echoes
	// back for display.
	chunkPreviewLimit = 3
)

// ragServiceImpl holds the pipeline components it composes.
type ragServiceImpl struct {
	chunker   Chunker
	embedder  Embedder
	index     VectorIndex
	retriever *Retriever
	generator *AnswerGenerator
}

// NewRAGService wires the pipeline and verifies that the index was built
// under the same chunking and embedding policy this pipeline runs with. A
// mismatch would silently degrade retrieval, so it refuses to start instead.
func NewRAGService(chunker Chunker, embedder Embedder, index VectorIndex, generator *AnswerGenerator) (RAGService, error) {
	meta := index.Metadata()
	if meta.Strategy != chunker.Strategy() || meta.Granularity != chunker.Granularity() {
		return nil, fmt.Errorf("%w: index built with strategy=%s granularity=%s, pipeline configured with strategy=%s granularity=%s",
			ErrIndexConsistency, meta.Strategy, meta.Granularity, chunker.Strategy(), chunker.Granularity())
	}
	if meta.EmbeddingModel != embedder.Model() || meta.Dimension != embedder.Dimension() {
		return nil, fmt.Errorf("%w: index built with model=%s dimension=%d, pipeline configured with model=%s dimension=%d",
			ErrIndexConsistency, meta.EmbeddingModel, meta.Dimension, embedder.Model(), embedder.Dimension())
	}

	return &ragServiceImpl{
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		retriever: NewRetriever(embedder, index),
		generator: generator,
	}, nil
}

// DocumentID derives a stable id from the raw content, so re-uploading the
// same bytes produces the same chunk ids and the upsert replaces them.
func DocumentID(raw []byte) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, raw).String()
}

// Ingest runs a document through extraction, chunking, embedding and a
// single all-or-nothing index upsert. A failure at any stage reports that
// stage and never leaves the document partially indexed.
func (s *ragServiceImpl) Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResponse, error) {
	docID := DocumentID(req.Raw)
	resp := &models.IngestResponse{
		DocumentID: docID,
		Filename:   req.Filename,
		Filetype:   req.Filetype,
		Status:     models.StatusReceived,
	}
	log.Printf("SERVICE: Ingesting document %s (%s, %d bytes)", docID, req.Filename, len(req.Raw))

	text, err := ExtractText(req.Raw, req.Filetype)
	if err != nil {
		return failIngest(resp, models.StageExtraction, err), err
	}
	doc := models.Document{ID: docID, Filename: req.Filename, Filetype: req.Filetype, Text: text}

	chunks, err := s.chunker.Split(doc.ID, doc.Text)
	if err != nil {
		return failIngest(resp, models.StageChunking, err), err
	}
	resp.Status = models.StatusChunked
	resp.ChunkCount = len(chunks)
	resp.ChunkPreview = previewChunks(chunks)
	if len(chunks) == 0 {
		// An empty document is not an error; there is just nothing to index.
		resp.Status = models.StatusIndexed
		return resp, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return failIngest(resp, models.StageEmbedding, err), err
	}
	resp.Status = models.StatusEmbedded

	entries := make([]models.IndexEntry, len(chunks))
	for i := range chunks {
		entries[i] = models.IndexEntry{Chunk: chunks[i], Vector: vectors[i], Model: s.embedder.Model()}
	}
	if err := s.index.Upsert(ctx, entries); err != nil {
		// The upsert may have landed part of the batch before failing; the
		// compensating delete restores the no-document state so retrieval
		// never sees a partially indexed document.
		if delErr := s.index.DeleteByDocument(ctx, docID); delErr != nil {
			log.Printf("SERVICE ERROR: compensating delete for %s failed: %v", docID, delErr)
			err = fmt.Errorf("%w: %w", ErrIndexConsistency, err)
		}
		return failIngest(resp, models.StageIndexing, err), err
	}

	resp.Status = models.StatusIndexed
	log.Printf("SERVICE: Indexed document %s: %d chunks", docID, len(chunks))
	return resp, nil
}

// Ask retrieves the top-k chunks for the question and generates an answer
// grounded in them. Retrieval failures prevent generation; generation
// failures still surface the retrieved evidence instead of discarding it.
func (s *ragServiceImpl) Ask(ctx context.Context, req models.AskRequest) (*models.AskResponse, error) {
	k := req.TopK
	if k <= 0 {
		k = DefaultTopK
	}
	log.Printf("SERVICE: Question received (k=%d): %q", k, req.Question)

	result, err := s.retriever.Retrieve(ctx, req.Question, k)
	if err != nil {
		return &models.AskResponse{Evidence: []models.AskEvidence{}, Error: err.Error()}, err
	}
	if len(result) == 0 {
		log.Println("SERVICE: No chunks retrieved; answering in degraded query-only mode.")
	}

	answer, genErr := s.generator.Generate(ctx, req.Question, result)
	resp := &models.AskResponse{
		Answer:   answer.Text,
		Evidence: evidenceFrom(result),
	}
	if req.Educational {
		resp.ContextUsed = answer.ContextUsed
	}
	if genErr != nil {
		resp.Error = genErr.Error()
		return resp, genErr
	}
	return resp, nil
}

// Stats reports how many chunks the index currently holds.
func (s *ragServiceImpl) Stats(ctx context.Context) (*models.StatsResponse, error) {
	count, err := s.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count indexed chunks: %w", err)
	}
	return &models.StatsResponse{ChunkCount: count}, nil
}

func failIngest(resp *models.IngestResponse, stage string, err error) *models.IngestResponse {
	resp.Status = models.StatusFailed
	resp.FailedStage = stage
	resp.Error = err.Error()
	log.Printf("SERVICE ERROR: ingestion of %s failed at %s stage: %v", resp.DocumentID, stage, err)
	return resp
}

func previewChunks(chunks []models.Chunk) []models.Chunk {
	if len(chunks) > chunkPreviewLimit {
		return chunks[:chunkPreviewLimit]
	}
	return chunks
}

func evidenceFrom(result models.RetrievalResult) []models.AskEvidence {
	evidence := make([]models.AskEvidence, 0, len(result))
	for _, sc := range result {
		evidence = append(evidence, models.AskEvidence{Text: sc.Chunk.Text, Score: sc.Score})
	}
	return evidence
}
