package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

// sseKeepaliveInterval spaces out comment frames so idle proxies keep the
// connection open.
const sseKeepaliveInterval = 25 * time.Second

// streamEvents handles GET /v1/events, a server-sent-events stream of change
// notifications the dashboards use to refresh their lists.
func (rt *Router) streamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	events := make(chan domain.ChangeEvent, 16)
	unsubscribe, err := rt.queue.SubscribeChanges(r.Context(), func(_ context.Context, change domain.ChangeEvent) {
		select {
		case events <- change:
		default:
			// A slow consumer drops events rather than blocking the bus;
			// dashboards refetch on reconnect anyway.
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case change := <-events:
			payload, err := json.Marshal(change)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", change.Kind, payload)
			flusher.Flush()
		}
	}
}
