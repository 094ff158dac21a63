// Package chunker splits document text into overlapping, token-bounded
// segments with deterministic identifiers.
package chunker

import (
	"fmt"
	"strings"

	"github.com/docqa-io/docqa/models"
)

// Config bounds chunk size and overlap in whitespace tokens.
type Config struct {
	// MaxChunkTokens is the upper bound on tokens per chunk.
	MaxChunkTokens int
	// OverlapTokens is the exact overlap between consecutive chunks.
	OverlapTokens int
	// BoundaryLookback is how many tokens before a hard cut the chunker
	// searches for a sentence or paragraph boundary.
	BoundaryLookback int
}

// Validate rejects configurations that cannot make progress.
func (c Config) Validate() error {
	if c.MaxChunkTokens <= 0 {
		return fmt.Errorf("%w: max_chunk_tokens must be > 0", models.ErrInvalidInput)
	}
	if c.OverlapTokens < 0 {
		return fmt.Errorf("%w: overlap_tokens must be >= 0", models.ErrInvalidInput)
	}
	if c.OverlapTokens >= c.MaxChunkTokens {
		return fmt.Errorf("%w: overlap_tokens (%d) must be smaller than max_chunk_tokens (%d)",
			models.ErrInvalidInput, c.OverlapTokens, c.MaxChunkTokens)
	}
	return nil
}

// Chunker produces deterministic chunk sequences. It has no side effects;
// the same text and configuration always yield the same chunks.
type Chunker struct {
	cfg Config
}

// New builds a Chunker, applying the boundary lookback default.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BoundaryLookback <= 0 {
		cfg.BoundaryLookback = 16
	}
	if cfg.BoundaryLookback > cfg.MaxChunkTokens-cfg.OverlapTokens-1 {
		cfg.BoundaryLookback = cfg.MaxChunkTokens - cfg.OverlapTokens - 1
	}
	return &Chunker{cfg: cfg}, nil
}

// Split chunks text into segments of at most MaxChunkTokens tokens with
// exactly OverlapTokens of trailing overlap carried into the next chunk.
// Sequence indices are contiguous from 0. The final chunk may be shorter
// and carries no trailing overlap.
func (c *Chunker) Split(documentID, text string) ([]models.Chunk, error) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: document text is empty", models.ErrInvalidInput)
	}

	var chunks []models.Chunk
	start := 0
	for idx := 0; ; idx++ {
		end := start + c.cfg.MaxChunkTokens
		if end >= len(tokens) {
			end = len(tokens)
		} else {
			end = c.preferBoundary(tokens, start, end)
		}

		chunkTokens := tokens[start:end]
		chunks = append(chunks, models.Chunk{
			ID:            models.ChunkID(documentID, idx),
			DocumentID:    documentID,
			SequenceIndex: idx,
			Text:          strings.Join(chunkTokens, " "),
			TokenCount:    len(chunkTokens),
			SourceLocator: fmt.Sprintf("chunk %d (tokens %d-%d)", idx, start, end),
		})

		if end == len(tokens) {
			break
		}
		start = end - c.cfg.OverlapTokens
	}
	return chunks, nil
}

// preferBoundary moves a hard cut backwards to the nearest sentence
// boundary within the lookback window, when one exists. The cut position
// is the token index after the boundary token. The window never shrinks a
// chunk below the overlap, so every chunk still advances the sequence.
func (c *Chunker) preferBoundary(tokens []string, start, end int) int {
	lo := end - c.cfg.BoundaryLookback
	if lo <= start+c.cfg.OverlapTokens {
		lo = start + c.cfg.OverlapTokens + 1
	}
	for i := end - 1; i >= lo; i-- {
		if isBoundary(tokens[i]) {
			return i + 1
		}
	}
	return end
}

func isBoundary(token string) bool {
	if token == "" {
		return false
	}
	switch token[len(token)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
