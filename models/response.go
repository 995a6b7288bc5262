package models

// IngestResponse reports the result of one document ingestion. ChunkPreview
// carries the first few chunks for display and debugging.
type IngestResponse struct {
	DocumentID   string       `json:"document_id"`
	Filename     string       `json:"filename"`
	Filetype     string       `json:"filetype"`
	ChunkCount   int          `json:"chunk_count"`
	ChunkPreview []Chunk      `json:"chunk_preview,omitempty"`
	Status       IngestStatus `json:"status"`
	FailedStage  string       `json:"failed_stage,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// AskEvidence is one retrieved chunk surfaced to the caller.
type AskEvidence struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// AskResponse reports the answer to a question. Answer is null when
// generation failed; Evidence is still populated so the caller can see what
// was retrieved. ContextUsed appears only when educational mode was asked
// for.
type AskResponse struct {
	Answer      *string       `json:"answer"`
	Evidence    []AskEvidence `json:"evidence"`
	ContextUsed string        `json:"context_used,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// StatsResponse is the body of the GET /stats endpoint.
type StatsResponse struct {
	ChunkCount int `json:"chunk_count"`
}
