package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nopenet/nopenet/internal/audit"
	"github.com/nopenet/nopenet/internal/backend"
	"github.com/nopenet/nopenet/internal/chat"
	"github.com/nopenet/nopenet/internal/handlers"
	"github.com/nopenet/nopenet/internal/llm"
	"github.com/nopenet/nopenet/internal/ratelimit"
	"github.com/nopenet/nopenet/internal/ws"
)

func newTestRouter(t *testing.T, backendURL string, fake *llm.Fake) http.Handler {
	t.Helper()
	logger := NewLogger(io.Discard, "error")
	limiter := ratelimit.New(map[string]int{"chat": 100, "predict": 100, "validate": 100, "sample": 100})
	client := backend.NewClient(backendURL, time.Second, logger)
	proxy := chat.NewProxy(fake, "gpt-3.5-turbo", logger)

	return NewRouter(Routes{
		Chat:          handlers.NewChatHandler(proxy, limiter, audit.Nop{}, logger),
		Detection:     handlers.NewDetectionHandler(client, limiter, audit.Nop{}, logger),
		Health:        handlers.NewHealthHandler(client),
		Socket:        ws.NewChatSocket(proxy, limiter, audit.Nop{}, "", logger),
		AllowedOrigin: "https://nopenet.example",
	})
}

func TestRouterPing(t *testing.T) {
	r := newTestRouter(t, "http://127.0.0.1:1", llm.NewFake())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "pong" {
		t.Fatalf("unexpected ping response %d %q", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://nopenet.example" {
		t.Fatalf("unexpected CORS origin %q", got)
	}
}

func TestRouterHealthzReportsBackend(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer up.Close()

	for _, tc := range []struct {
		url  string
		want string
	}{
		{up.URL, "up"},
		{"http://127.0.0.1:1", "down"},
	} {
		r := newTestRouter(t, tc.url, llm.NewFake())
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if body["status"] != "ok" || body["backend"] != tc.want {
			t.Fatalf("backend %s: unexpected body %v", tc.url, body)
		}
	}
}

func TestRouterPreflight(t *testing.T) {
	r := newTestRouter(t, "http://127.0.0.1:1", llm.NewFake())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/chat", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for preflight, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatalf("POST not allowed in preflight: %q", rr.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestRouterChatAndSample(t *testing.T) {
	r := newTestRouter(t, "http://127.0.0.1:1", llm.NewFake("answer"))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"messages":[{"role":"user","content":"hi"}]}`))
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "answer" {
		t.Fatalf("unexpected chat response %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sample", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "sample_data") {
		t.Fatalf("unexpected sample response %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET /api/chat, got %d", rr.Code)
	}
}

func TestRunWithRecoveryRestartsAfterPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		RunWithRecovery(ctx, NewLogger(io.Discard, "error"), "test", func(ctx context.Context) {
			if calls.Add(1) == 1 {
				panic("boom")
			}
			cancel()
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunWithRecovery did not return")
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected 2 calls, got %d", n)
	}
}

func TestRestartDelay(t *testing.T) {
	cases := map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 4: 8 * time.Second, 9: 256 * time.Second, 10: maxBackoff, 40: maxBackoff}
	for attempt, want := range cases {
		if got := restartDelay(attempt); got != want {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, want)
		}
	}
}
