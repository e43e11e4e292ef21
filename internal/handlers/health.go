package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nopenet/nopenet/internal/backend"
)

// HealthHandler reports gateway liveness and detection backend reachability.
type HealthHandler struct {
	backend *backend.Client
}

func NewHealthHandler(client *backend.Client) *HealthHandler {
	return &HealthHandler{backend: client}
}

// Ping handles GET /ping.
func (hh *HealthHandler) Ping(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("pong"))
}

// Healthz handles GET /healthz. The gateway itself is healthy whenever it
// answers; backend state is informational.
func (hh *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "up"
	if err := hh.backend.Ping(ctx); err != nil {
		status = "down"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": status})
}
