// -----------------------------------------------------------------------
// Transcription Handler - HTTP surface for job submission and queries
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/jobs"
)

// TranscriptionHandler serves the job submission and query endpoints.
type TranscriptionHandler struct {
	config  *common.Config
	service *jobs.Service
	logger  arbor.ILogger
}

// NewTranscriptionHandler creates a transcription handler.
func NewTranscriptionHandler(config *common.Config, service *jobs.Service, logger arbor.ILogger) *TranscriptionHandler {
	return &TranscriptionHandler{config: config, service: service, logger: logger}
}

// submitRequest is the JSON body for POST /api/transcriptions.
type submitRequest struct {
	FilePath          string `json:"file_path"`
	ModelSize         string `json:"model_size,omitempty"`
	Language          string `json:"language,omitempty"`
	EnableDiarization bool   `json:"enable_diarization,omitempty"`
	Device            string `json:"device,omitempty"`
	ComputeType       string `json:"compute_type,omitempty"`
	OutputFormat      string `json:"output_format,omitempty"`
}

func (r submitRequest) toService() jobs.SubmitRequest {
	return jobs.SubmitRequest{
		FilePath:          r.FilePath,
		ModelSize:         r.ModelSize,
		Language:          r.Language,
		EnableDiarization: r.EnableDiarization,
		Device:            r.Device,
		ComputeType:       r.ComputeType,
		OutputFormat:      r.OutputFormat,
	}
}

// SubmitHandler handles POST /api/transcriptions.
func (h *TranscriptionHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteSurfaceError(w, models.NewSurfaceError(models.CodeInvalidParameters, "malformed JSON body"))
		return
	}

	job, err := h.service.Submit(r.Context(), req.toService())
	if err != nil {
		WriteSurfaceError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, job)
}

// UploadHandler handles POST /api/transcriptions/upload: multipart audio
// upload saved into the managed uploads directory, then submitted.
func (h *TranscriptionHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32 MiB in memory, rest spills to disk
		WriteSurfaceError(w, models.NewSurfaceError(models.CodeInvalidParameters, "malformed multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteSurfaceError(w, models.NewSurfaceError(models.CodeInvalidParameters, "missing file field"))
		return
	}
	defer file.Close()

	if !common.IsSupportedAudioFormat(header.Filename) {
		WriteSurfaceError(w, models.NewSurfaceError(models.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported audio format %s", filepath.Ext(header.Filename))))
		return
	}

	dest := filepath.Join(h.config.UploadsDir(),
		fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(header.Filename)))
	out, err := os.Create(dest)
	if err != nil {
		WriteSurfaceError(w, models.NewSurfaceError(models.CodeInternalError, "could not store upload"))
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(dest)
		WriteSurfaceError(w, models.NewSurfaceError(models.CodeInternalError, "could not store upload"))
		return
	}
	out.Close()

	req := jobs.SubmitRequest{
		FilePath:          dest,
		ModelSize:         r.FormValue("model_size"),
		Language:          r.FormValue("language"),
		EnableDiarization: r.FormValue("enable_diarization") == "true",
		Device:            r.FormValue("device"),
		ComputeType:       r.FormValue("compute_type"),
		OutputFormat:      r.FormValue("output_format"),
	}
	job, serr := h.service.Submit(r.Context(), req)
	if serr != nil {
		os.Remove(dest)
		WriteSurfaceError(w, serr)
		return
	}
	WriteJSON(w, http.StatusAccepted, job)
}

// ListHandler handles GET /api/transcriptions.
func (h *TranscriptionHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	opts := &interfaces.JobListOptions{
		Status:     models.JobStatus(r.URL.Query().Get("status")),
		BatchID:    r.URL.Query().Get("batch_id"),
		Search:     r.URL.Query().Get("search"),
		Limit:      QueryInt(r, "limit", 50),
		Offset:     QueryInt(r, "offset", 0),
		ActiveOnly: QueryBool(r, "active"),
	}
	if from := r.URL.Query().Get("date_from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			opts.DateFrom = t
		}
	}
	if to := r.URL.Query().Get("date_to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			opts.DateTo = t
		}
	}

	records, err := h.service.List(r.Context(), opts)
	if err != nil {
		WriteSurfaceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  records,
		"count": len(records),
	})
}

// GetHandler handles GET /api/transcriptions/{id}.
func (h *TranscriptionHandler) GetHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	job, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		WriteSurfaceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// ResultHandler handles GET /api/transcriptions/{id}/result.
func (h *TranscriptionHandler) ResultHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	job, transcript, err := h.service.Result(r.Context(), jobID)
	if err != nil {
		WriteSurfaceError(w, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = job.Parameters.OutputFormat
	}
	switch format {
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(transcript.Text))
	case "srt":
		w.Header().Set("Content-Type", "application/x-subrip")
		w.Write([]byte(models.RenderSRT(transcript.Segments)))
	default:
		WriteJSON(w, http.StatusOK, transcript)
	}
}

// CancelHandler handles POST /api/transcriptions/{id}/cancel and
// DELETE /api/transcriptions/{id}.
func (h *TranscriptionHandler) CancelHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost, http.MethodDelete) {
		return
	}
	job, err := h.service.Cancel(r.Context(), jobID)
	if err != nil {
		WriteSurfaceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// StatsHandler handles GET /api/status.
func (h *TranscriptionHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		WriteSurfaceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service":    "scriba",
		"version":    common.GetVersion(),
		"goroutines": common.GetGoroutineCount(),
		"jobs":       stats,
	})
}
