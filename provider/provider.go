// Package provider abstracts the external embedding and text-generation
// capabilities behind a small interface so the pipeline stays
// provider-agnostic.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client names a supported provider implementation.
type Client string

const (
	OpenAI Client = "openai"
)

// ErrEmbeddingUnavailable is returned once the embedding capability has
// failed after its own retry budget.
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// TransientError marks a generation failure worth retrying (rate limit,
// timeout, upstream 5xx).
type TransientError struct {
	Status int
	Msg    string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error (status %d): %s", e.Status, e.Msg)
}

// RejectedError marks a generation failure that retrying cannot fix
// (invalid request, content policy rejection).
type RejectedError struct {
	Status int
	Msg    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected request (status %d): %s", e.Status, e.Msg)
}

// Provider is the capability contract the pipeline depends on.
type Provider interface {
	// Embed converts texts into fixed-dimensionality vectors, one per
	// input, in input order. Fails with ErrEmbeddingUnavailable once its
	// internal retry budget is exhausted.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Complete generates text for the prompt. Failures are classified as
	// *TransientError or *RejectedError; retry policy is the caller's.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options carries provider construction parameters.
type Options struct {
	APIKey          string
	BaseURL         string
	CompletionModel string
	EmbeddingModel  string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
	EmbedRetries    int
}

// Validate checks the options a concrete client cannot default away.
func (o Options) Validate() error {
	if o.APIKey == "" {
		return errors.New("provider api key not set")
	}
	if o.CompletionModel == "" || o.EmbeddingModel == "" {
		return errors.New("provider completion and embedding models must be configured")
	}
	return nil
}
