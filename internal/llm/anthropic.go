package llm

import (
	"context"
	"io"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const defaultMaxTokens = 1024

// anthropicProvider streams Claude replies through the Messages API, either
// directly or via AWS Bedrock. Chunks are plain text deltas.
type anthropicProvider struct {
	name      string
	client    anthropic.Client
	maxTokens int64
	logger    *slog.Logger
}

// NewAnthropic creates a provider for the Anthropic API.
func NewAnthropic(baseURL, apiKey string, maxTokens int, logger *slog.Logger) Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return newAnthropicProvider("anthropic", anthropic.NewClient(opts...), maxTokens, logger)
}

// NewBedrock creates an Anthropic provider that authenticates with the
// default AWS credential chain.
func NewBedrock(ctx context.Context, maxTokens int, logger *slog.Logger) Provider {
	return newAnthropicProvider("bedrock", anthropic.NewClient(bedrock.WithLoadDefaultConfig(ctx)), maxTokens, logger)
}

func newAnthropicProvider(name string, client anthropic.Client, maxTokens int, logger *slog.Logger) *anthropicProvider {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &anthropicProvider{name: name, client: client, maxTokens: int64(maxTokens), logger: logger}
}

func (p *anthropicProvider) Name() string { return p.name }

func (p *anthropicProvider) Stream(ctx context.Context, req *Request) (Stream, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: p.maxTokens,
	}
	// The Messages API takes system text out of band.
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, err
	}
	return &anthropicStream{stream: stream}, nil
}

type anthropicStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (s *anthropicStream) Next() ([]byte, error) {
	for s.stream.Next() {
		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if d, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
				return []byte(d.Text), nil
			}
		}
	}
	if err := s.stream.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *anthropicStream) Close() error {
	return s.stream.Close()
}

func (s *anthropicStream) ContentType() string { return TextContentType }
