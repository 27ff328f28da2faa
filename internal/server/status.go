package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaoke/internal/shared"
	"github.com/desertthunder/karaoke/internal/tasks"
)

// StatusHandler serves the persistent Server-Sent-Events stream of pipeline
// status updates. Implements [Handler].
//
// Each connection registers a subscriber on the broadcaster; disconnection
// tears the subscription down so listeners never accumulate across
// short-lived conversions.
type StatusHandler struct {
	broadcaster *tasks.Broadcaster
	logger      *log.Logger
}

// NewStatusHandler creates a StatusHandler over the process-wide broadcaster.
func NewStatusHandler(broadcaster *tasks.Broadcaster, logger *log.Logger) *StatusHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &StatusHandler{broadcaster: broadcaster, logger: logger}
}

// Routes returns the patterns this handler serves.
func (h *StatusHandler) Routes() []string {
	return []string{"GET /status"}
}

// ServeHTTP streams status events until the client disconnects.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case update, ok := <-sub.Events():
			if !ok {
				return
			}

			payload, err := json.Marshal(update)
			if err != nil {
				h.logger.Warn("failed to marshal status update", "error", err)
				continue
			}

			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
