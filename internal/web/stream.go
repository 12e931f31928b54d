package web

import (
	"fmt"
	"net/http"
	"time"
)

// handleRunStream serves a Server-Sent Events stream of a run's event log.
// It polls the event table every 2 seconds and sends each new event as one
// SSE message. When the run reaches a terminal status it sends a "done"
// event and closes.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request, id string) {
	if s.db == nil {
		http.Error(w, "event log not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if present

	sendDone := func(reason string) {
		fmt.Fprintf(w, "event: done\ndata: %s\n\n", reason)
		flusher.Flush()
	}

	tick := time.NewTicker(2 * time.Second)
	defer tick.Stop()

	lastID := 0
	for {
		events, err := s.db.GetRunEvents(id, lastID)
		if err != nil {
			sendDone("event log unavailable")
			return
		}
		for _, e := range events {
			lastID = e.ID
			fmt.Fprintf(w, "id: %d\ndata: %s", e.ID, e.Event)
			if e.Attempt > 0 {
				fmt.Fprintf(w, " (attempt %d)", e.Attempt)
			}
			if e.Detail != "" {
				fmt.Fprintf(w, ": %s", e.Detail)
			}
			fmt.Fprint(w, "\n\n")
		}
		flusher.Flush()

		if rs, err := s.store.Get(id); err != nil {
			sendDone("run not found")
			return
		} else if !activeStatus(rs.Status) && rs.Status != "pending" {
			sendDone(rs.Status)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
		}
	}
}
