package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/docqa/rag/models"
)

// TextGenerator is the contract of the external generative service: one
// prompt in, one completion out. It makes a single attempt; retrying a billed,
// non-idempotent call is the caller's decision, not the client's.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// contextSeparator joins chunk texts inside the prompt. Changing it changes
// every persisted transcript of educational mode, so keep it stable.
const contextSeparator = "\n---\n"

const groundedPromptFormat = "You are an expert assistant. Given the following context chunks (from user files) and a question, " +
	"give a concise answer based strictly on the context. Cite text by quoting or listing sources if helpful.\n\n" +
	"Context Chunks:\n%s\n\nQuestion:\n%s\n\nAnswer:"

const ungroundedPromptFormat = "You are an expert assistant. No supporting documents were retrieved for the following question. " +
	"Answer concisely from general knowledge, and say so plainly if you cannot.\n\n" +
	"Question:\n%s\n\nAnswer:"

// BuildContext concatenates chunk texts in rank order with the stable
// separator.
func BuildContext(result models.RetrievalResult) string {
	parts := make([]string, 0, len(result))
	for _, sc := range result {
		parts = append(parts, sc.Chunk.Text)
	}
	return strings.Join(parts, contextSeparator)
}

// BuildPrompt renders the full prompt sent to the generative service. With
// no retrieved context it degrades to a query-only form instead of failing.
func BuildPrompt(query, context string) string {
	if context == "" {
		return fmt.Sprintf(ungroundedPromptFormat, query)
	}
	return fmt.Sprintf(groundedPromptFormat, context, query)
}

// AnswerGenerator assembles prompts from a question plus retrieved chunks
// and calls the generative service.
type AnswerGenerator struct {
	llm TextGenerator
}

func NewAnswerGenerator(llm TextGenerator) *AnswerGenerator {
	return &AnswerGenerator{llm: llm}
}

// Generate calls the generative service once. Whatever the outcome, the
// returned Answer carries the evidence and the exact assembled prompt, so
// the caller can always inspect what was (or would have been) sent. On
// failure Text stays nil and the error wraps ErrGenerationService.
func (g *AnswerGenerator) Generate(ctx context.Context, query string, result models.RetrievalResult) (models.Answer, error) {
	evidence := make([]models.Chunk, 0, len(result))
	for _, sc := range result {
		evidence = append(evidence, sc.Chunk)
	}
	prompt := BuildPrompt(query, BuildContext(result))
	answer := models.Answer{Evidence: evidence, ContextUsed: prompt}

	text, err := g.llm.GenerateText(ctx, prompt)
	if err != nil {
		return answer, fmt.Errorf("%w: %w", ErrGenerationService, err)
	}

	trimmed := strings.TrimSpace(text)
	answer.Text = &trimmed
	return answer, nil
}
