// Package llm abstracts the chat-completion provider behind two operations:
// submit a conversation and get a chunk stream, and pull the next chunk.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nopenet/nopenet/internal/config"
)

// Roles accepted in a conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNoProvider is returned by New for an unknown provider type.
var ErrNoProvider = errors.New("llm: unknown provider")

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a streamed chat-completion request.
type Request struct {
	Model    string
	Messages []Message
}

// Provider submits a conversation and returns its reply as a chunk stream.
// Errors returned here happen before any byte of the reply exists.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req *Request) (Stream, error)
}

// TextContentType is the framing of every Stream: chunks are consecutive
// pieces of the reply text, whatever the provider.
const TextContentType = "text/plain; charset=utf-8"

// Stream is a lazy, single-pass sequence of reply chunks. Next returns
// io.EOF after the last chunk. Close releases the upstream connection and
// must be called even after io.EOF.
type Stream interface {
	Next() ([]byte, error)
	Close() error
	// ContentType is the media type of the chunk framing, TextContentType
	// for all providers in this package.
	ContentType() string
}

// New builds the provider selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai", "":
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, logger), nil
	case "anthropic":
		return NewAnthropic(cfg.BaseURL, cfg.APIKey, cfg.MaxTokens, logger), nil
	case "bedrock":
		return NewBedrock(ctx, cfg.MaxTokens, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrNoProvider, cfg.Provider)
	}
}
