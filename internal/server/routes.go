package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Transcriptions
	mux.HandleFunc("/api/transcriptions", s.handleTranscriptionsRoute) // GET (list), POST (submit)
	mux.HandleFunc("/api/transcriptions/upload", s.app.TranscriptionHandler.UploadHandler)
	mux.HandleFunc("/api/transcriptions/", s.handleTranscriptionRoutes) // /{id}, /{id}/result, /{id}/cancel, /{id}/events

	// API routes - Batches
	mux.HandleFunc("/api/batches", s.app.BatchHandler.SubmitHandler)
	mux.HandleFunc("/api/batches/", s.handleBatchRoutes) // GET /{id}

	// WebSocket progress stream
	mux.HandleFunc("/ws/jobs/", s.handleWebSocketRoutes) // /{id}

	// API routes - System
	mux.HandleFunc("/api/status", s.app.TranscriptionHandler.StatsHandler)
	mux.HandleFunc("/api/health", s.healthHandler)
	mux.HandleFunc("/api/version", s.versionHandler)

	return mux
}

func (s *Server) handleTranscriptionsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.TranscriptionHandler.ListHandler(w, r)
	case http.MethodPost:
		s.app.TranscriptionHandler.SubmitHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTranscriptionRoutes dispatches /api/transcriptions/{id}[/...].
func (s *Server) handleTranscriptionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/transcriptions/")
	parts := strings.SplitN(rest, "/", 2)
	jobID := parts[0]
	if jobID == "" {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 1 {
		// DELETE on the resource cancels it; GET returns the record.
		if r.Method == http.MethodDelete {
			s.app.TranscriptionHandler.CancelHandler(w, r, jobID)
			return
		}
		s.app.TranscriptionHandler.GetHandler(w, r, jobID)
		return
	}
	switch parts[1] {
	case "result":
		s.app.TranscriptionHandler.ResultHandler(w, r, jobID)
	case "cancel":
		s.app.TranscriptionHandler.CancelHandler(w, r, jobID)
	case "events":
		s.app.StreamHandler.EventsHandler(w, r, jobID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleBatchRoutes(w http.ResponseWriter, r *http.Request) {
	batchID := strings.TrimPrefix(r.URL.Path, "/api/batches/")
	if batchID == "" || strings.Contains(batchID, "/") {
		http.NotFound(w, r)
		return
	}
	s.app.BatchHandler.StatusHandler(w, r, batchID)
}

func (s *Server) handleWebSocketRoutes(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/ws/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		http.NotFound(w, r)
		return
	}
	s.app.WSHandler.ProgressHandler(w, r, jobID)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
