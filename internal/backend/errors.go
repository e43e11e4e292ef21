package backend

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PredictError is a structured rejection from the backend, typically a
// malformed KDD record. It carries enough for the UI to guide correction.
type PredictError struct {
	Message       string   `json:"message"`
	FormatExample string   `json:"formatExample,omitempty"`
	Columns       []string `json:"columns,omitempty"`
	StatusCode    int      `json:"statusCode"`
}

func (e *PredictError) Error() string {
	return e.Message
}

// errorEnvelope is the backend's error body: {"detail": ...} where detail is
// either an object or a plain string.
type errorEnvelope struct {
	Detail json.RawMessage `json:"detail"`
}

type errorDetail struct {
	Error         string   `json:"error"`
	FormatExample string   `json:"format_example"`
	Columns       []string `json:"columns"`
}

// decodePredictError maps an error response body to the error Predict
// returns: *PredictError for an object detail with an error field, a plain
// error for a string detail, ErrPredictFailed otherwise.
func decodePredictError(body []byte, status int) error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Detail) == 0 {
		return fmt.Errorf("backend: predict status %d: %w", status, ErrPredictFailed)
	}

	var detail errorDetail
	if err := json.Unmarshal(env.Detail, &detail); err == nil && detail.Error != "" {
		return &PredictError{
			Message:       detail.Error,
			FormatExample: detail.FormatExample,
			Columns:       detail.Columns,
			StatusCode:    status,
		}
	}

	var msg string
	if err := json.Unmarshal(env.Detail, &msg); err == nil && msg != "" {
		return errors.New(msg)
	}

	return fmt.Errorf("backend: predict status %d: %w", status, ErrPredictFailed)
}

// UserMessage returns the message safe to show an end user for err.
func UserMessage(err error) string {
	var pe *PredictError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return pe.Message
	case errors.Is(err, ErrPredictFailed):
		return MsgPredictFailed
	default:
		return err.Error()
	}
}
