package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"meeting-capture-service/internal/relay"
)

// NewRouter constructs the HTTP router for the relay service. The websocket
// bridge lives at a session-scoped path; the session id is opaque here and
// validated only for presence.
func NewRouter(svc *relay.Service) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Session-scoped websocket bridge
	r.Get("/ws-proxy/{sessionID}", func(w http.ResponseWriter, req *http.Request) {
		svc.HandleSession(w, req, chi.URLParam(req, "sessionID"))
	})

	// A bare /ws-proxy carries no session id; the relay rejects it with an
	// explicit error frame rather than a silent drop.
	r.Get("/ws-proxy", func(w http.ResponseWriter, req *http.Request) {
		svc.HandleSession(w, req, "")
	})
	r.Get("/ws-proxy/", func(w http.ResponseWriter, req *http.Request) {
		svc.HandleSession(w, req, "")
	})

	return r
}
