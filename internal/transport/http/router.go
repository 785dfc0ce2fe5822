// Package httptransport exposes the reconstructed hand over a local
// debug surface: current state, an applied-event stream, health and
// metrics. Presentation proper (rendering, animation) lives elsewhere.
package httptransport

import (
	"expvar"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"dealwatch/internal/observer"
)

func NewRouter(obs *observer.Observer) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Get("/state", StateHandler(obs))
		r.Get("/events", EventsHandler(obs))
	})

	r.Method(http.MethodGet, "/debug/vars", expvar.Handler())
	return r
}
