package models

// IngestRequest carries one uploaded document into the pipeline. Raw holds
// the undecoded file bytes; Filetype is the declared type ("pdf" or "text").
type IngestRequest struct {
	Filename string
	Filetype string
	Raw      []byte
}

// AskRequest is the body of the POST /ask endpoint.
type AskRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"k,omitempty"`
	// Educational toggles whether the response includes the exact context
	// sent to the generative model. It never changes the computation.
	Educational bool `json:"educational,omitempty"`
}
