package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/nopenet/nopenet/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readAll(t *testing.T, r *Reply) string {
	t.Helper()
	var b strings.Builder
	for {
		chunk, err := r.Next()
		if errors.Is(err, io.EOF) {
			return b.String()
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		b.Write(chunk)
	}
}

func TestOpenSendsSystemPlusConversation(t *testing.T) {
	fake := llm.NewFake("Hel", "lo!")
	p := NewProxy(fake, "gpt-3.5-turbo", testLogger())

	in := llm.Message{Role: "user", Content: "Hello"}
	reply, err := p.Open(context.Background(), []llm.Message{in}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reply.Close()

	reqs := fake.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected exactly one upstream request, got %d", len(reqs))
	}
	msgs := reqs[0].Messages
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("expected system message first, got %q", msgs[0].Role)
	}
	if msgs[1] != in {
		t.Errorf("expected %+v, got %+v", in, msgs[1])
	}
	if reqs[0].Model != "gpt-3.5-turbo" {
		t.Errorf("unexpected model %q", reqs[0].Model)
	}

	if got := readAll(t, reply); got != "Hello!" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestOpenRejectsEmptyConversation(t *testing.T) {
	fake := llm.NewFake("x")
	_, err := NewProxy(fake, "m", testLogger()).Open(context.Background(), nil, nil)
	if !errors.Is(err, ErrEmptyConversation) {
		t.Fatalf("expected ErrEmptyConversation, got %v", err)
	}
	if len(fake.Requests()) != 0 {
		t.Fatal("empty conversation must not reach the provider")
	}
}

func TestOpenSubmitFailure(t *testing.T) {
	fake := &llm.Fake{SubmitErr: errors.New("dial tcp: connection refused")}
	_, err := NewProxy(fake, "m", testLogger()).Open(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenFailsBeforeFirstChunk(t *testing.T) {
	fake := &llm.Fake{StreamErr: errors.New("upstream reset")}
	_, err := NewProxy(fake, "m", testLogger()).Open(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error before first chunk")
	}
	streams := fake.Streams()
	if len(streams) != 1 || !streams[0].Closed() {
		t.Fatal("failed stream must be closed")
	}
}

func TestReplyEmptyStream(t *testing.T) {
	fake := llm.NewFake()
	reply, err := NewProxy(fake, "m", testLogger()).Open(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reply.Close()
	if got := readAll(t, reply); got != "" {
		t.Fatalf("expected empty reply, got %q", got)
	}
}

func TestReplyErrorAfterFirstChunk(t *testing.T) {
	fake := &llm.Fake{Chunks: []string{"partial"}, StreamErr: errors.New("upstream reset")}
	reply, err := NewProxy(fake, "m", testLogger()).Open(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reply.Close()

	chunk, err := reply.Next()
	if err != nil || string(chunk) != "partial" {
		t.Fatalf("unexpected first chunk %q, %v", chunk, err)
	}
	if _, err := reply.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected stream error, got %v", err)
	}
	if _, err := reply.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after failure, got %v", err)
	}
}

func TestOpenIncludesDetectionSummary(t *testing.T) {
	fake := llm.NewFake("ok")
	d := dataWith("DOS", "normal")
	reply, err := NewProxy(fake, "m", testLogger()).Open(context.Background(), []llm.Message{{Role: "user", Content: "What did my scan find?"}}, d)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	reply.Close()

	sys := fake.Requests()[0].Messages[0].Content
	if !strings.Contains(sys, DetectionHeading) || !strings.Contains(sys, "  - DOS attacks: 1") {
		t.Fatalf("system prompt lacks detection summary:\n%s", sys)
	}
}
