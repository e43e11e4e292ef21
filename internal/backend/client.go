// Package backend is a thin HTTP client for the detection backend, the
// external service that validates KDD records and classifies them.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nopenet/nopenet/internal/detection"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	httpTimeout    = 60 * time.Second
	maxResponseLen = 8 << 20 // 8 MiB
)

// Messages surfaced to end users. Internal detail never leaves the client.
const (
	MsgValidationUnavailable = "Error connecting to validation service"
	MsgPredictFailed         = "Failed to process data. Please try again later."
)

// ErrPredictFailed is returned by Predict for transport failures and
// unstructured error responses.
var ErrPredictFailed = errors.New(MsgPredictFailed)

// Client talks to the detection backend. It performs no retries and no
// caching; each call is independent.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Validation is the result of a validate call.
type Validation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

type inputRequest struct {
	InputData string `json:"input_data"`
}

type sampleResponse struct {
	SampleData string `json:"sample_data"`
}

// NewClient creates a client for the backend at baseURL. An empty baseURL
// means DefaultBaseURL, a non-positive timeout means 60s.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = httpTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Validate checks the structure of raw KDD text. It never returns an error:
// when the backend cannot be reached the result is invalid with a generic
// message.
func (c *Client) Validate(ctx context.Context, text string) Validation {
	data, status, err := c.post(ctx, "/validate", text)
	if err != nil {
		c.logger.Error("backend: validate request failed", "err", err)
		return Validation{Valid: false, Message: MsgValidationUnavailable}
	}
	if status < 200 || status >= 300 {
		c.logger.Error("backend: validate returned error status", "status", status)
		return Validation{Valid: false, Message: MsgValidationUnavailable}
	}

	var v Validation
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Error("backend: decode validate response", "err", err)
		return Validation{Valid: false, Message: MsgValidationUnavailable}
	}
	return v
}

// Predict submits raw KDD text for classification. The returned Data has
// InputText set to text. Structured backend failures are returned as
// *PredictError; everything else wraps ErrPredictFailed.
func (c *Client) Predict(ctx context.Context, text string) (*detection.Data, error) {
	data, status, err := c.post(ctx, "/predict", text)
	if err != nil {
		c.logger.Error("backend: predict request failed", "err", err)
		return nil, fmt.Errorf("backend: predict: %w", ErrPredictFailed)
	}

	if status < 200 || status >= 300 {
		c.logger.Warn("backend: predict returned error status", "status", status)
		return nil, decodePredictError(data, status)
	}

	var out detection.Data
	if err := json.Unmarshal(data, &out); err != nil {
		c.logger.Error("backend: decode predict response", "err", err)
		return nil, fmt.Errorf("backend: predict: %w", ErrPredictFailed)
	}
	out.InputText = text
	return &out, nil
}

// Sample fetches an example payload. Any failure yields
// detection.FormatExample.
func (c *Client) Sample(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sample", nil)
	if err != nil {
		c.logger.Error("backend: create sample request", "err", err)
		return detection.FormatExample
	}

	data, status, err := c.do(req)
	if err != nil || status < 200 || status >= 300 {
		c.logger.Error("backend: sample request failed", "err", err, "status", status)
		return detection.FormatExample
	}

	var s sampleResponse
	if err := json.Unmarshal(data, &s); err != nil || s.SampleData == "" {
		c.logger.Error("backend: decode sample response", "err", err)
		return detection.FormatExample
	}
	return s.SampleData
}

// Ping checks that the backend answers on its root path.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("backend: create ping request: %w", err)
	}
	_, status, err := c.do(req)
	if err != nil {
		return fmt.Errorf("backend: ping: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("backend: ping returned status %d", status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, text string) ([]byte, int, error) {
	body, err := json.Marshal(inputRequest{InputData: text})
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLen))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return data, resp.StatusCode, nil
}
