// Package answer generates an answer from a question and retrieved context,
// with bounded retry around the model call and presentation post-processing.
package answer

import (
	"context"
	"errors"
)

// Taxonomy of answer-generation failures. ErrRateLimited and ErrTimeout are
// transient and retried; everything else surfaces immediately.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrTimeout     = errors.New("request timed out")
	ErrEmptyAnswer = errors.New("model returned an empty answer")
)

// Client is the underlying answer-generation model call.
type Client interface {
	// Complete returns the model's raw answer for the prompt.
	Complete(ctx context.Context, prompt string) (string, error)
	ModelName() string
}
