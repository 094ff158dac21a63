// Package openai implements the provider contract against the OpenAI
// HTTP API (chat completions and embeddings).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docqa-io/docqa/provider"
)

const defaultBaseURL = "https://api.openai.com"

type client struct {
	apiKey          string
	baseURL         string
	completionModel string
	embeddingModel  string
	temperature     float64
	maxTokens       int
	embedRetries    int
	embedBackoff    time.Duration
	httpClient      *http.Client
}

// New creates an OpenAI-backed provider client.
func New(opts provider.Options) (provider.Provider, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.EmbedRetries <= 0 {
		opts.EmbedRetries = 3
	}
	return &client{
		apiKey:          opts.APIKey,
		baseURL:         opts.BaseURL,
		completionModel: opts.CompletionModel,
		embeddingModel:  opts.EmbeddingModel,
		temperature:     opts.Temperature,
		maxTokens:       opts.MaxTokens,
		embedRetries:    opts.EmbedRetries,
		embedBackoff:    300 * time.Millisecond,
		httpClient:      &http.Client{Timeout: opts.Timeout},
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Embed generates one vector per input text. Transient failures are
// retried with exponential backoff inside the client; exhaustion is
// reported as provider.ErrEmbeddingUnavailable.
func (c *client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := map[string]interface{}{
		"model": c.embeddingModel,
		"input": texts,
	}

	var lastErr error
	for attempt := 0; attempt < c.embedRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.embedBackoff * time.Duration(1<<(attempt-1))):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var resp struct {
			Data []struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			} `json:"data"`
		}
		err := c.postJSON(ctx, "/v1/embeddings", body, &resp)
		if err == nil {
			if len(resp.Data) != len(texts) {
				return nil, fmt.Errorf("%w: expected %d vectors, got %d",
					provider.ErrEmbeddingUnavailable, len(texts), len(resp.Data))
			}
			vecs := make([][]float32, len(resp.Data))
			for _, d := range resp.Data {
				if d.Index < 0 || d.Index >= len(vecs) {
					return nil, fmt.Errorf("%w: vector index %d out of range",
						provider.ErrEmbeddingUnavailable, d.Index)
				}
				vecs[d.Index] = d.Embedding
			}
			return vecs, nil
		}
		lastErr = err
		var rejected *provider.RejectedError
		if errors.As(err, &rejected) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", provider.ErrEmbeddingUnavailable, lastErr)
}

// Complete sends a single-turn chat completion. Failures are classified
// for the caller; no retries happen here.
func (c *client) Complete(ctx context.Context, prompt string) (string, error) {
	req := completionRequest{
		Model:       c.completionModel,
		Messages:    []message{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	var resp completionResponse
	if err := c.postJSON(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &provider.TransientError{Status: http.StatusOK, Msg: "no choices in response"}
	}
	return resp.Choices[0].Message.Content, nil
}

// postJSON performs one request and classifies HTTP failures.
func (c *client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &provider.TransientError{Msg: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus(resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// classifyStatus maps HTTP status codes onto the provider error taxonomy:
// 408/429 and 5xx are transient, everything else 4xx is a rejection.
func classifyStatus(code int, body string) error {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return &provider.TransientError{Status: code, Msg: body}
	default:
		return &provider.RejectedError{Status: code, Msg: body}
	}
}
