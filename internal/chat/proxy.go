package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nopenet/nopenet/internal/detection"
	"github.com/nopenet/nopenet/internal/llm"
)

// ErrEmptyConversation is returned when a chat request carries no messages.
var ErrEmptyConversation = errors.New("chat: conversation is empty")

// Proxy forwards conversations, augmented with the system prompt, to an LLM
// provider. It keeps no state between calls.
type Proxy struct {
	provider llm.Provider
	model    string
	logger   *slog.Logger
}

// NewProxy creates a proxy that submits to provider using model.
func NewProxy(provider llm.Provider, model string, logger *slog.Logger) *Proxy {
	return &Proxy{provider: provider, model: model, logger: logger}
}

// Provider returns the name of the upstream provider.
func (p *Proxy) Provider() string { return p.provider.Name() }

// Open submits the conversation and waits for the first chunk of the reply.
// Any failure up to that point is returned as an error, so callers can still
// answer with a single error response. Cancelling ctx tears down the
// upstream call.
func (p *Proxy) Open(ctx context.Context, msgs []llm.Message, data *detection.Data) (*Reply, error) {
	if len(msgs) == 0 {
		return nil, ErrEmptyConversation
	}

	req := &llm.Request{Model: p.model, Messages: Augment(msgs, data)}
	p.logger.Debug("chat: submitting conversation",
		"provider", p.provider.Name(),
		"messages", len(req.Messages),
		"detection", data != nil,
	)

	stream, err := p.provider.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat: submit: %w", err)
	}

	first, err := stream.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		stream.Close()
		return nil, fmt.Errorf("chat: first chunk: %w", err)
	}

	return &Reply{stream: stream, first: first, done: errors.Is(err, io.EOF)}, nil
}

// Reply is an open assistant reply. It is single-pass; issue a new Open to
// regenerate.
type Reply struct {
	stream  llm.Stream
	first   []byte
	started bool
	done    bool
}

// Next returns the next chunk, or io.EOF after the last one.
func (r *Reply) Next() ([]byte, error) {
	if !r.started {
		r.started = true
		if len(r.first) > 0 {
			return r.first, nil
		}
	}
	if r.done {
		return nil, io.EOF
	}
	chunk, err := r.stream.Next()
	if err != nil {
		r.done = true
	}
	return chunk, err
}

// Close releases the upstream stream.
func (r *Reply) Close() error {
	return r.stream.Close()
}

// ContentType is the media type of the relayed chunks.
func (r *Reply) ContentType() string {
	return r.stream.ContentType()
}
