package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/nopenet/nopenet/internal/audit"
	"github.com/nopenet/nopenet/internal/backend"
	"github.com/nopenet/nopenet/internal/ratelimit"
)

// DetectionHandler exposes the detection backend to the browser under the
// gateway's own origin.
type DetectionHandler struct {
	backend *backend.Client
	limiter *ratelimit.Limiter
	audit   audit.Recorder
	logger  *slog.Logger
}

// NewDetectionHandler creates a new DetectionHandler.
func NewDetectionHandler(client *backend.Client, limiter *ratelimit.Limiter, rec audit.Recorder, logger *slog.Logger) *DetectionHandler {
	return &DetectionHandler{backend: client, limiter: limiter, audit: rec, logger: logger}
}

type inputBody struct {
	InputData string `json:"input_data"`
}

// predictErrorBody is what the browser's error dialog renders.
type predictErrorBody struct {
	Error         string   `json:"error"`
	FormatExample string   `json:"formatExample,omitempty"`
	Columns       []string `json:"columns,omitempty"`
	StatusCode    int      `json:"statusCode,omitempty"`
}

// Validate handles POST /api/validate. The backend's verdict is returned
// with 200 even when the input is invalid.
func (dh *DetectionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if dh.limiter.Check(w, r, "validate") {
		return
	}
	text, ok := readInput(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dh.backend.Validate(r.Context(), text))
}

// Predict handles POST /api/predict.
func (dh *DetectionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	entry := &audit.Entry{Endpoint: "predict", RequestID: middleware.GetReqID(r.Context())}
	defer func() {
		entry.Duration = time.Since(start)
		record(r, dh.audit, dh.logger, entry)
	}()

	if dh.limiter.Check(w, r, "predict") {
		entry.Status, entry.Outcome = http.StatusTooManyRequests, audit.OutcomeRejected
		return
	}
	text, ok := readInput(w, r)
	if !ok {
		entry.Status, entry.Outcome = http.StatusBadRequest, audit.OutcomeRejected
		return
	}
	entry.Bytes = int64(len(text))

	data, err := dh.backend.Predict(r.Context(), text)
	if err != nil {
		entry.Outcome = audit.OutcomeFailed
		var pe *backend.PredictError
		switch {
		case errors.As(err, &pe):
			code := pe.StatusCode
			if code < 400 {
				code = http.StatusBadGateway
			}
			entry.Status = code
			writeJSON(w, code, predictErrorBody{
				Error:         pe.Message,
				FormatExample: pe.FormatExample,
				Columns:       pe.Columns,
				StatusCode:    pe.StatusCode,
			})
		default:
			entry.Status = http.StatusBadGateway
			jsonError(w, backend.UserMessage(err), http.StatusBadGateway)
		}
		return
	}

	entry.Status, entry.Outcome, entry.Detection = http.StatusOK, audit.OutcomeOK, true
	writeJSON(w, http.StatusOK, data)
}

// Sample handles GET /api/sample. It always succeeds; the backend client
// falls back to a built-in record.
func (dh *DetectionHandler) Sample(w http.ResponseWriter, r *http.Request) {
	if dh.limiter.Check(w, r, "sample") {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sample_data": dh.backend.Sample(r.Context())})
}

func readInput(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body inputBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return "", false
	}
	if strings.TrimSpace(body.InputData) == "" {
		jsonError(w, "input_data is required", http.StatusBadRequest)
		return "", false
	}
	return body.InputData, true
}
