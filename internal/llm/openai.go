package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	defaultOpenAIURL = "https://api.openai.com/v1"
	readBufSize      = 32 * 1024
	maxErrorBodyLen  = 1 << 20 // 1 MiB
)

// openAIProvider streams from any OpenAI-compatible /chat/completions
// endpoint.
type openAIProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewOpenAI creates a provider for an OpenAI-compatible API. The HTTP client
// has no overall timeout; the request context bounds the call.
func NewOpenAI(baseURL, apiKey string, logger *slog.Logger) Provider {
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DisableCompression = true
	return &openAIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Transport: tr},
		logger:  logger,
	}
}

type openAIChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *openAIProvider) Name() string { return "openai" }

func (p *openAIProvider) Stream(ctx context.Context, req *Request) (Stream, error) {
	body, err := json.Marshal(openAIChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: call: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		var errBody openAIErrorResponse
		if err := json.Unmarshal(data, &errBody); err == nil && errBody.Error.Message != "" {
			return nil, fmt.Errorf("openai: status %d: %s (type=%s)", resp.StatusCode, errBody.Error.Message, errBody.Error.Type)
		}
		return nil, fmt.Errorf("openai: status %d", resp.StatusCode)
	}

	return &openAIStream{body: resp.Body, r: bufio.NewReaderSize(resp.Body, readBufSize)}, nil
}

type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// openAIStream decodes the server-sent events of a streamed completion and
// hands out the text deltas, one event at a time.
type openAIStream struct {
	body io.ReadCloser
	r    *bufio.Reader
	err  error
}

func (s *openAIStream) Next() ([]byte, error) {
	for s.err == nil {
		data, err := s.readEvent()
		if err != nil {
			s.err = err
			break
		}
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			s.err = io.EOF
			break
		}

		var chunk openAIChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			s.err = fmt.Errorf("openai: decode event: %w", err)
			break
		}
		if chunk.Error != nil {
			s.err = fmt.Errorf("openai: stream error: %s", chunk.Error.Message)
			break
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return []byte(chunk.Choices[0].Delta.Content), nil
		}
	}
	return nil, s.err
}

// readEvent returns the joined data lines of the next event. A body that
// ends without [DONE] ends the stream with io.EOF.
func (s *openAIStream) readEvent() (string, error) {
	var lines []string
	for {
		line, err := s.r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, "data:") {
			lines = append(lines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		if line == "" && err == nil && len(lines) > 0 {
			return strings.Join(lines, "\n"), nil
		}
		if err != nil {
			if len(lines) > 0 && errors.Is(err, io.EOF) {
				return strings.Join(lines, "\n"), nil
			}
			return "", err
		}
	}
}

func (s *openAIStream) Close() error {
	return s.body.Close()
}

func (s *openAIStream) ContentType() string { return TextContentType }
