// -----------------------------------------------------------------------
// Stream Handler - Server-Sent Events progress streaming
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/jobs"
	"golang.org/x/time/rate"
)

const (
	sseHeartbeatInterval = 15 * time.Second
	sseMinEventInterval  = 100 * time.Millisecond
)

// StreamHandler serves live progress over Server-Sent Events. The first
// event is always the current state; the stream ends after the terminal
// event. Intermediate events are rate-limited, relying on the broker's
// coalescing so the client still sees the latest state.
type StreamHandler struct {
	service *jobs.Service
	broker  interfaces.ProgressBroker
	logger  arbor.ILogger
}

// NewStreamHandler creates an SSE progress handler.
func NewStreamHandler(service *jobs.Service, broker interfaces.ProgressBroker, logger arbor.ILogger) *StreamHandler {
	return &StreamHandler{service: service, broker: broker, logger: logger}
}

// EventsHandler handles GET /api/transcriptions/{id}/events.
func (h *StreamHandler) EventsHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	job, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		WriteSurfaceError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteSurfaceError(w, models.NewSurfaceError(models.CodeInternalError, "streaming unsupported"))
		return
	}

	sub := h.broker.Subscribe(jobID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// The subscription's snapshot-first guarantee covers jobs the broker
	// has seen; for a job untouched since restart, synthesize the first
	// event from the record.
	if _, seen := h.broker.Snapshot(jobID); !seen {
		h.writeEvent(w, models.EventForJob(job))
	}
	flusher.Flush()

	limiter := rate.NewLimiter(rate.Every(sseMinEventInterval), 1)
	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case event, open := <-sub.Events():
			if !open {
				return
			}
			if !event.Terminal() {
				if err := limiter.Wait(r.Context()); err != nil {
					return
				}
			}
			h.writeEvent(w, event)
			flusher.Flush()
			if event.Terminal() {
				return
			}
		}
	}
}

// writeEvent emits one named SSE event. Non-terminal events are named
// "progress"; terminal events carry their status as the event name.
func (h *StreamHandler) writeEvent(w http.ResponseWriter, event models.ProgressEvent) {
	name := "progress"
	if event.Terminal() {
		name = string(event.Status)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", event.JobID).Msg("Could not encode SSE event")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
}
