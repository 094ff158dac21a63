// Package retrieval ranks stored chunks against a question embedding and
// packs the winners into a token-bounded context.
package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/docqa-io/docqa/internal/store"
	"github.com/docqa-io/docqa/models"
)

// Config tunes candidate selection.
type Config struct {
	// OverfetchFactor multiplies top_k on the index query to compensate
	// for post-filtering. Values below 2 are raised to 2.
	OverfetchFactor int
	// MaxChunksPerDocument caps candidates drawn from one document.
	MaxChunksPerDocument int
}

// Retriever queries the vector index and resolves hits against the
// metadata store, tolerating orphaned vectors.
type Retriever struct {
	index  store.VectorIndex
	meta   store.MetadataStore
	cfg    Config
	logger *log.Logger
}

// NewRetriever applies defaults: overfetch 3 (min 2), 3 chunks/document.
func NewRetriever(index store.VectorIndex, meta store.MetadataStore, cfg Config, logger *log.Logger) *Retriever {
	if cfg.OverfetchFactor < 2 {
		if cfg.OverfetchFactor <= 0 {
			cfg.OverfetchFactor = 3
		} else {
			cfg.OverfetchFactor = 2
		}
	}
	if cfg.MaxChunksPerDocument <= 0 {
		cfg.MaxChunksPerDocument = 3
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[RETRIEVE] ", log.LstdFlags)
	}
	return &Retriever{index: index, meta: meta, cfg: cfg, logger: logger}
}

// Retrieve returns up to topK candidates in non-increasing similarity
// order, ties broken by smaller chunk id. Vectors whose metadata is
// missing (orphans from partial ingestion) and chunks of FAILED documents
// are skipped. An empty index yields an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, questionVector []float32, topK int) ([]models.Candidate, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be > 0", models.ErrInvalidInput)
	}
	matches, err := r.index.QueryNearest(ctx, questionVector, topK*r.cfg.OverfetchFactor)
	if err != nil {
		return nil, err
	}
	// The index contract already orders results, but the tie-break by
	// chunk id is this component's guarantee, so enforce it here.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})

	perDocument := map[string]int{}
	candidates := make([]models.Candidate, 0, topK)
	for _, m := range matches {
		if len(candidates) == topK {
			break
		}
		rec, ok, err := r.meta.GetChunk(ctx, m.ChunkID)
		if err != nil {
			r.logger.Printf("warn: resolving chunk %s: %v", m.ChunkID, err)
			continue
		}
		if !ok {
			r.logger.Printf("warn: skipping orphaned vector %s (no metadata record)", m.ChunkID)
			continue
		}
		if rec.DocumentStatus == models.StatusFailed {
			continue
		}
		if perDocument[rec.DocumentID] >= r.cfg.MaxChunksPerDocument {
			continue
		}
		perDocument[rec.DocumentID]++
		candidates = append(candidates, models.Candidate{
			ChunkID:       rec.ID,
			DocumentID:    rec.DocumentID,
			Score:         m.Score,
			Text:          rec.Text,
			TokenCount:    rec.TokenCount,
			SourceLocator: rec.SourceLocator,
		})
	}
	return candidates, nil
}
