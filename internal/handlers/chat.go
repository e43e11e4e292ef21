package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/nopenet/nopenet/internal/audit"
	"github.com/nopenet/nopenet/internal/chat"
	"github.com/nopenet/nopenet/internal/llm"
	"github.com/nopenet/nopenet/internal/ratelimit"
)

// MsgChatFailed is the only failure detail a chat caller ever sees.
const MsgChatFailed = "Failed to process chat request"

// ChatRequest is the inbound chat body. DetectionData stays raw so that a
// malformed shape degrades the prompt instead of failing the request.
type ChatRequest struct {
	Messages      []llm.Message   `json:"messages"`
	DetectionData json.RawMessage `json:"detectionData,omitempty"`
}

// ChatHandler relays assistant replies from the LLM provider to the browser.
type ChatHandler struct {
	proxy   *chat.Proxy
	limiter *ratelimit.Limiter
	audit   audit.Recorder
	logger  *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(proxy *chat.Proxy, limiter *ratelimit.Limiter, rec audit.Recorder, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{proxy: proxy, limiter: limiter, audit: rec, logger: logger}
}

// Chat handles POST /api/chat.
// Every failure up to the first relayed byte is answered with a single
// 500 JSON error. Once streaming has started, a failure ends the stream.
func (ch *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	entry := &audit.Entry{
		Endpoint:  "chat",
		RequestID: middleware.GetReqID(r.Context()),
		Provider:  ch.proxy.Provider(),
	}
	defer func() {
		entry.Duration = time.Since(start)
		record(r, ch.audit, ch.logger, entry)
	}()

	if ch.limiter.Check(w, r, "chat") {
		entry.Status, entry.Outcome = http.StatusTooManyRequests, audit.OutcomeRejected
		return
	}

	logger := ch.logger.With("request_id", entry.RequestID)

	var req ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		logger.Error("chat: decode request", "err", err)
		ch.fail(w, entry)
		return
	}
	entry.Messages = len(req.Messages)

	data, err := chat.ParseDetectionData(req.DetectionData)
	if err != nil {
		logger.Warn("chat: ignoring malformed detection data", "err", err)
		entry.Outcome = audit.OutcomeDegraded
	}
	if data != nil {
		entry.Detection = true
		if t := data.Tally(); t.Other > 0 {
			logger.Debug("chat: results with unrecognized attack type left out of tally", "count", t.Other)
		}
	}

	reply, err := ch.proxy.Open(r.Context(), req.Messages, data)
	if err != nil {
		logger.Error("chat: open reply", "err", err)
		ch.fail(w, entry)
		return
	}
	defer reply.Close()

	entry.Status = http.StatusOK
	n, err := relay(r.Context(), w, reply)
	entry.Bytes = n
	switch {
	case r.Context().Err() != nil:
		logger.Info("chat: client disconnected", "bytes", n)
		entry.Outcome = audit.OutcomeAborted
	case err != nil:
		logger.Error("chat: stream interrupted", "err", err, "bytes", n)
		entry.Outcome = audit.OutcomeFailed
	case entry.Outcome == "":
		entry.Outcome = audit.OutcomeOK
	}
}

func (ch *ChatHandler) fail(w http.ResponseWriter, entry *audit.Entry) {
	entry.Status, entry.Outcome = http.StatusInternalServerError, audit.OutcomeFailed
	jsonError(w, MsgChatFailed, http.StatusInternalServerError)
}

// relay commits the response headers and copies reply chunks to w as they
// arrive, flushing after each one. It stops when the reply ends, the client
// goes away or a write fails.
func relay(ctx context.Context, w http.ResponseWriter, reply *chat.Reply) (int64, error) {
	h := w.Header()
	h.Set("Content-Type", reply.ContentType())
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Del("Content-Length")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		chunk, err := reply.Next()
		if len(chunk) > 0 {
			n, werr := w.Write(chunk)
			written += int64(n)
			if werr != nil {
				return written, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return written, nil
			}
			return written, err
		}
	}
}
