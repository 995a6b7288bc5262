package services

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const (
	// generationTimeout bounds every call to the generative service.
	generationTimeout = 60 * time.Second

	// generationTemperature keeps answers close to the provided context.
	generationTemperature = float32(0.2)
)

// GeminiGenerator produces answers with Google Gemini.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(client *genai.Client, model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model}
}

func (g *GeminiGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	temperature := generationTemperature
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}

var _ TextGenerator = (*GeminiGenerator)(nil)
