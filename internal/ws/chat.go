// Package ws serves the chat proxy over a WebSocket so a browser can hold
// one connection open for a whole conversation.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/nopenet/nopenet/internal/audit"
	"github.com/nopenet/nopenet/internal/chat"
	"github.com/nopenet/nopenet/internal/handlers"
	"github.com/nopenet/nopenet/internal/ratelimit"
)

const (
	writeWait     = 5 * time.Second
	maxFrameBytes = 16 << 20
	// pendingTurns is how many requests may queue behind the one streaming.
	pendingTurns = 4
)

// Frame types sent to the client.
const (
	FrameChunk = "chunk"
	FrameDone  = "done"
	FrameError = "error"
)

// MsgBusy answers a request that arrives while too many are already queued.
const MsgBusy = "Too many pending chat requests"

// Frame is one server-to-client message.
type Frame struct {
	Type  string `json:"type"`
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// ChatSocket runs chat turns over a WebSocket, one at a time per
// connection. Closing the socket cancels the turn in flight.
type ChatSocket struct {
	proxy    *chat.Proxy
	limiter  *ratelimit.Limiter
	audit    audit.Recorder
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewChatSocket creates a ChatSocket. allowedOrigin of "" or "*" accepts
// any Origin header.
func NewChatSocket(proxy *chat.Proxy, limiter *ratelimit.Limiter, rec audit.Recorder, allowedOrigin string, logger *slog.Logger) *ChatSocket {
	return &ChatSocket{
		proxy:   proxy,
		limiter: limiter,
		audit:   rec,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// HandleWS handles GET /ws/chat.
func (cs *ChatSocket) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := cs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cs.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)
	sock := &socket{conn: conn}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frames := make(chan []byte, pendingTurns)
	go cs.readLoop(sock, frames, cancel)

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-frames:
			if !ok {
				return
			}
			if err := cs.turn(ctx, sock, r, raw); err != nil {
				cs.logger.Debug("ws: connection ended", "err", err)
				return
			}
		}
	}
}

// readLoop keeps reading while a turn streams, so that a close frame or a
// dropped connection cancels the upstream call promptly. Requests beyond
// the queue are answered with an error frame right away.
func (cs *ChatSocket) readLoop(sock *socket, frames chan<- []byte, cancel context.CancelFunc) {
	defer close(frames)
	defer cancel()
	for {
		_, msg, err := sock.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cs.logger.Warn("ws: read failed", "err", err)
			}
			return
		}
		select {
		case frames <- msg:
		default:
			cs.logger.Warn("ws: rejecting chat request, too many queued")
			if err := sock.send(Frame{Type: FrameError, Error: MsgBusy}); err != nil {
				return
			}
		}
	}
}

// turn answers one chat request. It returns an error only when the
// connection is no longer usable.
func (cs *ChatSocket) turn(ctx context.Context, sock *socket, r *http.Request, raw []byte) error {
	start := time.Now()
	entry := &audit.Entry{
		Endpoint:  "ws_chat",
		RequestID: middleware.GetReqID(r.Context()),
		Provider:  cs.proxy.Provider(),
	}
	defer func() {
		entry.Duration = time.Since(start)
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := cs.audit.Record(rctx, entry); err != nil {
			cs.logger.Warn("audit record failed", "endpoint", entry.Endpoint, "err", err)
		}
	}()

	if !cs.limiter.AllowRequest(r, "chat") {
		entry.Status, entry.Outcome = http.StatusTooManyRequests, audit.OutcomeRejected
		return sock.send(Frame{Type: FrameError, Error: "Rate limited"})
	}

	var req handlers.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		cs.logger.Error("ws: decode request", "err", err)
		entry.Status, entry.Outcome = http.StatusInternalServerError, audit.OutcomeFailed
		return sock.send(Frame{Type: FrameError, Error: handlers.MsgChatFailed})
	}
	entry.Messages = len(req.Messages)

	data, err := chat.ParseDetectionData(req.DetectionData)
	if err != nil {
		cs.logger.Warn("ws: ignoring malformed detection data", "err", err)
		entry.Outcome = audit.OutcomeDegraded
	}
	entry.Detection = data != nil

	reply, err := cs.proxy.Open(ctx, req.Messages, data)
	if err != nil {
		cs.logger.Error("ws: open reply", "err", err)
		entry.Status, entry.Outcome = http.StatusInternalServerError, audit.OutcomeFailed
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return sock.send(Frame{Type: FrameError, Error: handlers.MsgChatFailed})
	}
	defer reply.Close()

	entry.Status = http.StatusOK
	var pending []byte
	for {
		chunk, err := reply.Next()
		if len(chunk) > 0 {
			var text string
			text, pending = completeRunes(append(pending, chunk...))
			if text != "" {
				if werr := sock.send(Frame{Type: FrameChunk, Data: text}); werr != nil {
					entry.Outcome = audit.OutcomeAborted
					return werr
				}
				entry.Bytes += int64(len(text))
			}
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			if len(pending) > 0 {
				if werr := sock.send(Frame{Type: FrameChunk, Data: string(pending)}); werr != nil {
					entry.Outcome = audit.OutcomeAborted
					return werr
				}
				entry.Bytes += int64(len(pending))
			}
			if entry.Outcome == "" {
				entry.Outcome = audit.OutcomeOK
			}
			return sock.send(Frame{Type: FrameDone})
		case ctx.Err() != nil:
			entry.Outcome = audit.OutcomeAborted
			return ctx.Err()
		default:
			cs.logger.Error("ws: stream interrupted", "err", err, "bytes", entry.Bytes)
			entry.Outcome = audit.OutcomeFailed
			return sock.send(Frame{Type: FrameError, Error: handlers.MsgChatFailed})
		}
	}
}

// completeRunes splits b after its last complete UTF-8 sequence. The
// incomplete tail, at most utf8.UTFMax-1 bytes, is carried into the next
// chunk so that no character is split across frames.
func completeRunes(b []byte) (string, []byte) {
	cut := len(b)
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax+1; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				cut = i
			}
			break
		}
	}
	rest := append([]byte(nil), b[cut:]...)
	return string(b[:cut]), rest
}

// socket serializes writes to a connection; the turn loop and the read
// loop both send frames.
type socket struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *socket) send(f Frame) error {
	msg, err := json.Marshal(f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}
