// Package generation builds the grounded prompt and drives the text
// generation capability with bounded retry.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/docqa-io/docqa/models"
	"github.com/docqa-io/docqa/provider"
)

// ErrUnavailable is returned once the retry budget for transient
// generation failures is exhausted.
var ErrUnavailable = errors.New("generation provider unavailable")

// Completer is the slice of the provider contract generation needs.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config bounds the retry loop.
type Config struct {
	// MaxRetries is the total number of attempts for transient failures.
	MaxRetries int
	// InitialBackoff doubles after each failed attempt.
	InitialBackoff time.Duration
}

// Orchestrator turns an assembled query context into a grounded answer.
type Orchestrator struct {
	completer Completer
	cfg       Config
	logger    *log.Logger
}

// New applies defaults: 3 attempts, 300ms initial backoff.
func New(completer Completer, cfg Config, logger *log.Logger) *Orchestrator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 300 * time.Millisecond
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[GENERATE] ", log.LstdFlags)
	}
	return &Orchestrator{completer: completer, cfg: cfg, logger: logger}
}

// Generate builds the prompt deterministically from the query context and
// invokes the completion capability. Transient failures are retried with
// exponential backoff; rejections fail immediately. The returned sources
// come only from the context actually sent.
func (o *Orchestrator) Generate(ctx context.Context, qc models.QueryContext) (models.Answer, error) {
	prompt := BuildPrompt(qc)

	var lastErr error
	for attempt := 0; attempt < o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(o.cfg.InitialBackoff * time.Duration(1<<(attempt-1))):
			case <-ctx.Done():
				return models.Answer{}, ctx.Err()
			}
		}

		text, err := o.completer.Complete(ctx, prompt)
		if err == nil {
			return models.Answer{Text: text, Sources: sources(qc)}, nil
		}
		lastErr = err

		var transient *provider.TransientError
		if !errors.As(err, &transient) {
			return models.Answer{}, fmt.Errorf("generation rejected: %w", err)
		}
		o.logger.Printf("warn: transient generation failure (attempt %d/%d): %v", attempt+1, o.cfg.MaxRetries, err)
	}
	return models.Answer{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// BuildPrompt renders the fixed template: instructions, attributed
// context passages, then the question.
func BuildPrompt(qc models.QueryContext) string {
	var b strings.Builder
	b.WriteString("You are a helpful AI assistant. Use the following pieces of context to answer the question at the end.\n")
	b.WriteString("If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n")
	b.WriteString("Context:\n")
	for _, cand := range qc.Candidates {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", cand.SourceLocator, cand.Text)
	}
	fmt.Fprintf(&b, "Question: %s\n\nAnswer:", qc.Question)
	return b.String()
}

func sources(qc models.QueryContext) []string {
	out := make([]string, 0, len(qc.Candidates))
	for _, cand := range qc.Candidates {
		out = append(out, cand.SourceLocator)
	}
	return out
}
