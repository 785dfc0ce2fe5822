package httptransport

import (
	"net/http"
	"time"

	"dealwatch/internal/observer"
)

var pingInterval = 15 * time.Second

// EventsHandler re-publishes applied events as a local SSE stream with
// Last-Event-ID replay, so a log viewer can follow the reconstruction
// without touching the upstream feed.
func EventsHandler(obs *observer.Observer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		metricEventsConnectionsTotal.Add(1)
		metricEventsConnectionsActive.Add(1)
		defer metricEventsConnectionsActive.Add(-1)

		SetSSEHeaders(w)

		buf := obs.Events()
		for _, e := range buf.ReplayAfter(r.Header.Get("Last-Event-ID")) {
			if err := WriteSSE(w, e); err != nil {
				return
			}
		}
		flusher.Flush()

		ch := buf.Subscribe()
		defer buf.Unsubscribe(ch)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				if err := WriteSSE(w, e); err != nil {
					return
				}
				flusher.Flush()
			case <-ticker.C:
				ping := observer.Entry{Event: "ping", ServerTS: time.Now().UnixMilli()}
				if err := WriteSSE(w, ping); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
