// -----------------------------------------------------------------------
// Batch Handler - HTTP surface for grouped submissions
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/batch"
	"github.com/ternarybob/scriba/internal/services/jobs"
)

// BatchHandler serves the batch submission and status endpoints.
type BatchHandler struct {
	coordinator *batch.Coordinator
	logger      arbor.ILogger
}

// NewBatchHandler creates a batch handler.
func NewBatchHandler(coordinator *batch.Coordinator, logger arbor.ILogger) *BatchHandler {
	return &BatchHandler{coordinator: coordinator, logger: logger}
}

// batchRequest is the JSON body for POST /api/batches.
type batchRequest struct {
	FilePaths         []string `json:"file_paths"`
	ModelSize         string   `json:"model_size,omitempty"`
	Language          string   `json:"language,omitempty"`
	EnableDiarization bool     `json:"enable_diarization,omitempty"`
	MaxConcurrent     int      `json:"max_concurrent,omitempty"`
	OutputFormat      string   `json:"output_format,omitempty"`
}

// SubmitHandler handles POST /api/batches.
func (h *BatchHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteSurfaceError(w, models.NewSurfaceError(models.CodeInvalidParameters, "malformed JSON body"))
		return
	}

	base := jobs.SubmitRequest{
		ModelSize:         req.ModelSize,
		Language:          req.Language,
		EnableDiarization: req.EnableDiarization,
		OutputFormat:      req.OutputFormat,
	}
	result, err := h.coordinator.Submit(r.Context(), req.FilePaths, base, req.MaxConcurrent)
	if err != nil {
		WriteSurfaceError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, result)
}

// StatusHandler handles GET /api/batches/{id}.
func (h *BatchHandler) StatusHandler(w http.ResponseWriter, r *http.Request, batchID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	status, members, err := h.coordinator.Status(r.Context(), batchID)
	if err != nil {
		WriteSurfaceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"jobs":   members,
	})
}
