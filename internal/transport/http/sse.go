package httptransport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"dealwatch/internal/observer"
)

// SetSSEHeaders applies headers that keep event streams stable across
// proxies.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Content-Type-Options", "nosniff")
}

func WriteSSE(w http.ResponseWriter, e observer.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if e.EventID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", e.EventID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", e.Event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
