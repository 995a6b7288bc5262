package models

// OllamaEmbedRequest is the payload for Ollama's batch embedding endpoint
// (POST /api/embed).
type OllamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// OllamaEmbedResponse carries one vector per input, in input order.
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}
