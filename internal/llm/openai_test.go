package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nopenet/nopenet/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var sseFrames = []string{
	`data: {"id":"chatcmpl-1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}` + "\n\n",
	`data: {"id":"chatcmpl-1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"DOS attacks "}}]}` + "\n\n",
	`data: {"id":"chatcmpl-1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"flood a target."}}]}` + "\n\n",
	"data: [DONE]\n\n",
}

// drain collects a stream's chunks until io.EOF.
func drain(t *testing.T, stream Stream) []string {
	t.Helper()
	var chunks []string
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return chunks
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		chunks = append(chunks, string(chunk))
	}
}

func TestOpenAIStreamYieldsTextDeltas(t *testing.T) {
	var got openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range sseFrames {
			fmt.Fprint(w, f)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	p := NewOpenAI(srv.URL+"/v1/", "sk-test", testLogger())
	stream, err := p.Stream(context.Background(), &Request{
		Model:    "gpt-3.5-turbo",
		Messages: []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer stream.Close()

	chunks := drain(t, stream)
	if strings.Join(chunks, "|") != "DOS attacks |flood a target." {
		t.Fatalf("unexpected chunks %q", chunks)
	}
	if !got.Stream || got.Model != "gpt-3.5-turbo" || len(got.Messages) != 2 {
		t.Fatalf("unexpected upstream request %+v", got)
	}
	if stream.ContentType() != TextContentType {
		t.Fatalf("unexpected content type %q", stream.ContentType())
	}
}

func TestOpenAIStreamKeepsSplitCharactersWhole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		event := `data: {"choices":[{"delta":{"content":"café ☕"}}]}` + "\n\n"
		cut := strings.Index(event, "é") + 1
		for _, part := range []string{event[:cut], event[cut:], "data: [DONE]\n\n"} {
			fmt.Fprint(w, part)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	stream, err := NewOpenAI(srv.URL, "", testLogger()).Stream(context.Background(), &Request{Model: "m"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer stream.Close()

	if got := strings.Join(drain(t, stream), ""); got != "café ☕" {
		t.Fatalf("got %q, want %q", got, "café ☕")
	}
}

func TestOpenAIStreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseFrames[1])
		fmt.Fprint(w, `data: {"error":{"message":"overloaded"}}`+"\n\n")
	}))
	defer srv.Close()

	stream, err := NewOpenAI(srv.URL, "", testLogger()).Stream(context.Background(), &Request{Model: "m"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer stream.Close()

	if chunk, err := stream.Next(); err != nil || string(chunk) != "DOS attacks " {
		t.Fatalf("first chunk: %q %v", chunk, err)
	}
	if _, err := stream.Next(); err == nil || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected the stream error, got %v", err)
	}
}

func TestOpenAIErrorStatusFailsBeforeStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI(srv.URL, "bad", testLogger()).Stream(context.Background(), &Request{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Incorrect API key") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestOpenAICancelReleasesUpstream(t *testing.T) {
	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseFrames[1])
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(released)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewOpenAI(srv.URL, "", testLogger()).Stream(ctx, &Request{Model: "m"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if _, err := stream.Next(); err != nil {
		t.Fatalf("first chunk: %v", err)
	}

	cancel()
	stream.Close()

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream request was not released after cancel")
	}
}

func TestNewSelectsProvider(t *testing.T) {
	ctx := context.Background()
	for typ, want := range map[string]string{"openai": "openai", "": "openai", "Anthropic": "anthropic"} {
		p, err := New(ctx, config.LLMConfig{Provider: typ, APIKey: "k"}, testLogger())
		if err != nil {
			t.Fatalf("New(%q): %v", typ, err)
		}
		if p.Name() != want {
			t.Errorf("New(%q) = %s, want %s", typ, p.Name(), want)
		}
	}
	if _, err := New(ctx, config.LLMConfig{Provider: "mystery"}, testLogger()); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}
