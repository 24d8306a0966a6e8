package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexusd/nexuscore/internal/logger"
)

// handleEvents serves a Server-Sent-Events stream of notify.Bus events
// scoped to one Nexus (ChildFaulted, RebuildProgress, PublicationChanged,
// ...), matching §4.7's SSE notification surface.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := s.registry.Get(name); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "streaming unsupported")
		return
	}

	ch, unsubscribe := s.bus.Subscribe(32)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if ev.Nexus != name {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				logger.Error("failed to marshal SSE event", logger.Nexus(name), logger.Err(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
			flusher.Flush()
		}
	}
}
