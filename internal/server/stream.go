package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ksred/claude-session-manager/internal/config"
	"github.com/ksred/claude-session-manager/internal/domain"
)

// heartbeatInterval paces SSE comment lines that keep intermediaries
// from reaping an otherwise quiet connection.
const heartbeatInterval = 30 * time.Second

// handleStream serves the SSE live channel. Each connection holds one
// hub subscription, optionally scoped to a single session via
// ?session_id=. The subscription is torn down when the viewer
// disconnects, when the hub drops it for slow consumption, or when a
// write misses the delivery deadline.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "live channel not enabled"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	scope := r.URL.Query().Get("session_id")
	sub := s.hub.Subscribe(scope)
	defer s.hub.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.log.Info("stream_open", map[string]interface{}{"subscriber": sub.ID, "scope": scope})

	ctx := r.Context()
	deadline := config.Global().DeliveryTimeout()
	rc := http.NewResponseController(w)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("stream_closed", map[string]interface{}{"subscriber": sub.ID})
			return

		case <-heartbeat.C:
			if deadline > 0 {
				rc.SetWriteDeadline(time.Now().Add(deadline))
			}
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case ev, open := <-sub.Events():
			if !open {
				// Hub dropped this viewer or shut down.
				return
			}
			if deadline > 0 {
				rc.SetWriteDeadline(time.Now().Add(deadline))
			}
			if err := writeEvent(w, flusher, ev); err != nil {
				s.log.Warn("stream_write_failed", map[string]interface{}{"subscriber": sub.ID}, err)
				return
			}
		}
	}
}

// writeEvent frames one envelope as an SSE message.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
