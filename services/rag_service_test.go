package services

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/rag/models"
)

// pseudoVector derives a deterministic vector from the text, so identical
// texts always embed identically and a query matches its own chunk exactly.
func pseudoVector(text string, dim int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, dim)
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(seed%1000) / 1000
	}
	return v
}

type stubEmbedder struct {
	model string
	dim   int
	err   error
}

func (s *stubEmbedder) Model() string  { return s.model }
func (s *stubEmbedder) Dimension() int { return s.dim }

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = pseudoVector(text, s.dim)
	}
	return out, nil
}

type stubGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

// flakyIndex lands part of a multi-entry batch before failing, to exercise
// the compensating delete.
type flakyIndex struct {
	*MemoryIndex
}

func (f *flakyIndex) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) > 1 {
		_ = f.MemoryIndex.Upsert(ctx, entries[:1])
		return errors.New("backend write interrupted")
	}
	return f.MemoryIndex.Upsert(ctx, entries)
}

type pipeline struct {
	service   RAGService
	index     VectorIndex
	embedder  *stubEmbedder
	generator *stubGenerator
}

func newTestPipeline(t *testing.T, index VectorIndex) *pipeline {
	t.Helper()

	chunker, err := NewWindowChunker(20, 5, models.GranularityRunes)
	require.NoError(t, err)

	embedder := &stubEmbedder{model: "stub-model", dim: 8}
	if index == nil {
		index = NewMemoryIndex(testIndexMeta(8))
	}
	generator := &stubGenerator{reply: "  The sky is blue.\n"}

	service, err := NewRAGService(chunker, embedder, index, NewAnswerGenerator(generator))
	require.NoError(t, err)
	return &pipeline{service: service, index: index, embedder: embedder, generator: generator}
}

func textIngestRequest(name, content string) models.IngestRequest {
	return models.IngestRequest{Filename: name, Filetype: "text", Raw: []byte(content)}
}

func TestIngestDeterministic(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, nil)

	first, err := p.service.Ingest(ctx, textIngestRequest("sky.txt", sampleText))
	require.NoError(t, err)
	assert.Equal(t, models.StatusIndexed, first.Status)
	assert.Equal(t, 2, first.ChunkCount)
	require.Len(t, first.ChunkPreview, 2)
	assert.Equal(t, first.DocumentID+"_chunk_0", first.ChunkPreview[0].ID)
	assert.Equal(t, first.DocumentID+"_chunk_15", first.ChunkPreview[1].ID)

	// Re-ingesting identical bytes replaces the same entries, never duplicates.
	second, err := p.service.Ingest(ctx, textIngestRequest("sky-copy.txt", sampleText))
	require.NoError(t, err)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, first.ChunkPreview, second.ChunkPreview)

	stats, err := p.service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChunkCount)
}

func TestIngestEmptyDocument(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, nil)

	resp, err := p.service.Ingest(ctx, textIngestRequest("empty.txt", ""))
	require.NoError(t, err)
	assert.Equal(t, models.StatusIndexed, resp.Status)
	assert.Equal(t, 0, resp.ChunkCount)

	stats, err := p.service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ChunkCount)
}

func TestIngestUnsupportedFiletype(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, nil)

	resp, err := p.service.Ingest(ctx, models.IngestRequest{
		Filename: "img.png", Filetype: "png", Raw: []byte{0x89, 0x50},
	})
	assert.True(t, errors.Is(err, ErrUnsupportedFileType))
	assert.Equal(t, models.StatusFailed, resp.Status)
	assert.Equal(t, models.StageExtraction, resp.FailedStage)
	assert.NotEmpty(t, resp.Error)
}

func TestIngestEmbeddingFailureReportsStage(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, nil)
	p.embedder.err = errors.New("connection refused")

	resp, err := p.service.Ingest(ctx, textIngestRequest("sky.txt", sampleText))
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, resp.Status)
	assert.Equal(t, models.StageEmbedding, resp.FailedStage)

	stats, statsErr := p.service.Stats(ctx)
	require.NoError(t, statsErr)
	assert.Equal(t, 0, stats.ChunkCount)
}

func TestIngestIndexFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	index := &flakyIndex{MemoryIndex: NewMemoryIndex(testIndexMeta(8))}
	p := newTestPipeline(t, index)

	resp, err := p.service.Ingest(ctx, textIngestRequest("sky.txt", sampleText))
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, resp.Status)
	assert.Equal(t, models.StageIndexing, resp.FailedStage)

	// The partially landed entry must be rolled back.
	count, countErr := index.Count(ctx)
	require.NoError(t, countErr)
	assert.Equal(t, 0, count)
}

func TestAskReturnsGroundedAnswer(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, nil)

	_, err := p.service.Ingest(ctx, textIngestRequest("sky.txt", sampleText))
	require.NoError(t, err)

	resp, err := p.service.Ask(ctx, models.AskRequest{Question: "What color is the sky?"})
	require.NoError(t, err)
	require.NotNil(t, resp.Answer)
	assert.Equal(t, "The sky is blue.", *resp.Answer)
	assert.Len(t, resp.Evidence, 2)
	assert.Empty(t, resp.ContextUsed)
	assert.Empty(t, resp.Error)

	require.Len(t, p.generator.prompts, 1)
	assert.Contains(t, p.generator.prompts[0], "Context Chunks:")
	assert.Contains(t, p.generator.prompts[0], "What color is the sky?")
}

func TestAskEmptyIndexDegradedMode(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, nil)

	resp, err := p.service.Ask(ctx, models.AskRequest{Question: "Anything indexed?"})
	require.NoError(t, err)
	require.NotNil(t, resp.Answer)
	assert.Empty(t, resp.Evidence)

	require.Len(t, p.generator.prompts, 1)
	assert.Contains(t, p.generator.prompts[0], "No supporting documents were retrieved")
	assert.NotContains(t, p.generator.prompts[0], "Context Chunks:")
}

func TestAskEducationalModeExposesContext(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, nil)

	_, err := p.service.Ingest(ctx, textIngestRequest("sky.txt", sampleText))
	require.NoError(t, err)

	question := models.AskRequest{Question: "What color is grass?", Educational: true}
	resp, err := p.service.Ask(ctx, question)
	require.NoError(t, err)
	require.Len(t, p.generator.prompts, 1)
	assert.Equal(t, p.generator.prompts[0], resp.ContextUsed)
	assert.Contains(t, resp.ContextUsed, contextSeparator)

	// The flag only gates the echoed context, never the answer itself.
	question.Educational = false
	plain, err := p.service.Ask(ctx, question)
	require.NoError(t, err)
	assert.Empty(t, plain.ContextUsed)
	assert.Equal(t, *resp.Answer, *plain.Answer)
}

func TestAskGenerationFailureKeepsEvidence(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, nil)
	p.generator.err = errors.New("model overloaded")

	_, err := p.service.Ingest(ctx, textIngestRequest("sky.txt", sampleText))
	require.NoError(t, err)

	resp, err := p.service.Ask(ctx, models.AskRequest{Question: "What color is the sky?", Educational: true})
	assert.True(t, errors.Is(err, ErrGenerationService))
	assert.Nil(t, resp.Answer)
	assert.Len(t, resp.Evidence, 2)
	assert.NotEmpty(t, resp.ContextUsed)
	assert.NotEmpty(t, resp.Error)
}

func TestAskRetrievalFailure(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, nil)
	p.embedder.err = errors.New("connection refused")

	resp, err := p.service.Ask(ctx, models.AskRequest{Question: "What color is the sky?"})
	assert.True(t, errors.Is(err, ErrRetrieval))
	assert.Nil(t, resp.Answer)
	assert.Empty(t, resp.Evidence)
	assert.NotEmpty(t, resp.Error)
	// Generation never runs when retrieval fails.
	assert.Empty(t, p.generator.prompts)
}

func TestAskDefaultsTopK(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, nil)

	long := strings.Repeat("Ten different sentences about various topics go here. ", 10)
	resp, err := p.service.Ingest(ctx, textIngestRequest("long.txt", long))
	require.NoError(t, err)
	require.Greater(t, resp.ChunkCount, DefaultTopK)

	answer, err := p.service.Ask(ctx, models.AskRequest{Question: "topics?"})
	require.NoError(t, err)
	assert.Len(t, answer.Evidence, DefaultTopK)

	answer, err = p.service.Ask(ctx, models.AskRequest{Question: "topics?", TopK: 2})
	require.NoError(t, err)
	assert.Len(t, answer.Evidence, 2)
}

func TestNewRAGServiceRejectsMismatchedIndex(t *testing.T) {
	chunker, err := NewWindowChunker(20, 5, models.GranularityRunes)
	require.NoError(t, err)
	embedder := &stubEmbedder{model: "stub-model", dim: 8}
	generator := NewAnswerGenerator(&stubGenerator{reply: "ok"})

	cases := []struct {
		name   string
		mutate func(*models.IndexMetadata)
	}{
		{"model", func(m *models.IndexMetadata) { m.EmbeddingModel = "other-model" }},
		{"dimension", func(m *models.IndexMetadata) { m.Dimension = 16 }},
		{"strategy", func(m *models.IndexMetadata) { m.Strategy = models.StrategyRecursive }},
		{"granularity", func(m *models.IndexMetadata) { m.Granularity = models.GranularityTokens }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta := testIndexMeta(8)
			tc.mutate(&meta)
			_, err := NewRAGService(chunker, embedder, NewMemoryIndex(meta), generator)
			assert.True(t, errors.Is(err, ErrIndexConsistency))
		})
	}
}

func TestDocumentIDStable(t *testing.T) {
	assert.Equal(t, DocumentID([]byte("same bytes")), DocumentID([]byte("same bytes")))
	assert.NotEqual(t, DocumentID([]byte("one")), DocumentID([]byte("two")))
}
