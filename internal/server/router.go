// Package server assembles the gateway's HTTP surface and the helpers that
// keep its background loops alive.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nopenet/nopenet/internal/handlers"
	"github.com/nopenet/nopenet/internal/ws"
)

// Routes bundles the handlers mounted by NewRouter.
type Routes struct {
	Chat      *handlers.ChatHandler
	Detection *handlers.DetectionHandler
	Health    *handlers.HealthHandler
	Socket    *ws.ChatSocket

	// AllowedOrigin is sent as Access-Control-Allow-Origin; empty means "*".
	AllowedOrigin string
}

// NewRouter builds the gateway router.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware(rt.AllowedOrigin))

	r.Get("/ping", rt.Health.Ping)
	r.Get("/healthz", rt.Health.Healthz)

	r.Route("/api", func(api chi.Router) {
		api.Post("/chat", rt.Chat.Chat)
		api.Post("/validate", rt.Detection.Validate)
		api.Post("/predict", rt.Detection.Predict)
		api.Get("/sample", rt.Detection.Sample)
	})

	if rt.Socket != nil {
		r.Get("/ws/chat", rt.Socket.HandleWS)
	}
	return r
}

func corsMiddleware(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if origin != "*" {
				w.Header().Set("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
