package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nopenet/nopenet/internal/audit"
)

// maxBodyBytes bounds inbound JSON bodies; scans of a few thousand KDD
// records fit comfortably.
const maxBodyBytes = 16 << 20

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// record writes e on a context detached from the request, which is usually
// cancelled by the time a streamed reply finishes.
func record(r *http.Request, rec audit.Recorder, logger *slog.Logger, e *audit.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
	defer cancel()
	if err := rec.Record(ctx, e); err != nil {
		logger.Warn("audit record failed", "endpoint", e.Endpoint, "err", err)
	}
}
