// -----------------------------------------------------------------------
// WebSocket Handler - Progress streaming over WebSocket
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/jobs"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// WebSocketHandler streams job progress over a WebSocket connection.
// It delivers the same event sequence as the SSE surface and closes the
// socket after the terminal event.
type WebSocketHandler struct {
	service  *jobs.Service
	broker   interfaces.ProgressBroker
	upgrader websocket.Upgrader
	logger   arbor.ILogger
}

// NewWebSocketHandler creates a WebSocket progress handler.
func NewWebSocketHandler(service *jobs.Service, broker interfaces.ProgressBroker, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		broker:  broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ProgressHandler handles GET /ws/jobs/{id}.
func (h *WebSocketHandler) ProgressHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		WriteSurfaceError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := h.broker.Subscribe(jobID)
	defer sub.Close()

	// Drain client frames so close/ping handling keeps working.
	clientGone := make(chan struct{})
	common.SafeGoWithContext(r.Context(), h.logger, "ws-read-drain", func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	if _, seen := h.broker.Snapshot(jobID); !seen {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(models.EventForJob(job)); err != nil {
			return
		}
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-clientGone:
			return

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case event, open := <-sub.Events():
			if !open {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug().Err(err).Str("job_id", jobID).Msg("WebSocket write failed")
				return
			}
			if event.Terminal() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(event.Status)))
				return
			}
		}
	}
}
