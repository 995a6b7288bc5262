package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docqa/rag/models"
	"github.com/docqa/rag/services"
)

// RAGController handles the HTTP requests for our RAG API. It depends on the
// RAGService to perform the actual business logic.
type RAGController struct {
	ragService services.RAGService
}

// NewRAGController is a constructor function that creates a new
// RAGController. This is called from main.go to inject the service
// dependency.
func NewRAGController(service services.RAGService) *RAGController {
	return &RAGController{
		ragService: service,
	}
}

// UploadDocument is the Gin handler for the POST /api/v1/documents endpoint.
// It reads the multipart upload, determines the filetype from the extension,
// and hands the raw bytes to the ingestion pipeline.
func (c *RAGController) UploadDocument(ctx *gin.Context) {
	file, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "file is required (form field: file)"})
		return
	}

	filetype, err := services.FiletypeForFilename(file.Filename)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := file.Open()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open uploaded file"})
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read uploaded file"})
		return
	}

	resp, err := c.ragService.Ingest(ctx.Request.Context(), models.IngestRequest{
		Filename: file.Filename,
		Filetype: filetype,
		Raw:      raw,
	})
	if err != nil {
		// The response still reports which stage failed; bad input stays a
		// client error.
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrExtraction) || errors.Is(err, services.ErrUnsupportedFileType) {
			status = http.StatusBadRequest
		}
		ctx.JSON(status, resp)
		return
	}
	ctx.JSON(http.StatusCreated, resp)
}

// AskQuestion is the Gin handler for the POST /api/v1/ask endpoint. It
// orchestrates the RAG query pipeline by calling the service layer.
func (c *RAGController) AskQuestion(ctx *gin.Context) {
	var req models.AskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	resp, err := c.ragService.Ask(ctx.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidQuery) {
			ctx.JSON(http.StatusBadRequest, resp)
			return
		}
		// Generation failures still carry the retrieved evidence.
		ctx.JSON(http.StatusInternalServerError, resp)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// GetStats is the Gin handler for the GET /api/v1/stats endpoint.
func (c *RAGController) GetStats(ctx *gin.Context) {
	resp, err := c.ragService.Stats(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read index stats"})
		return
	}
	ctx.JSON(http.StatusOK, resp)
}
