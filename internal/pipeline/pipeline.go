// Package pipeline composes the ingestion and query paths behind the
// three entry points the request layer calls: Ingest, Answer and
// ListDocuments.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/docqa-io/docqa/internal/generation"
	"github.com/docqa-io/docqa/internal/ingest"
	"github.com/docqa-io/docqa/internal/retrieval"
	"github.com/docqa-io/docqa/internal/store"
	"github.com/docqa-io/docqa/models"
	"github.com/docqa-io/docqa/provider"
)

// NoRelevantInformationAnswer is the deterministic reply when retrieval
// yields nothing; the generation capability is not called in that case.
const NoRelevantInformationAnswer = "No relevant information found for your question. Upload documents first or try a different question."

// Config carries the query-side knobs.
type Config struct {
	TopK int
}

// Pipeline wires retriever, assembler and orchestrator over the shared
// stores and provider.
type Pipeline struct {
	provider     provider.Provider
	coordinator  *ingest.Coordinator
	retriever    *retrieval.Retriever
	assembler    *retrieval.Assembler
	orchestrator *generation.Orchestrator
	meta         store.MetadataStore
	cfg          Config
	logger       *log.Logger
}

// New builds a Pipeline. TopK defaults to 4.
func New(
	p provider.Provider,
	coordinator *ingest.Coordinator,
	retriever *retrieval.Retriever,
	assembler *retrieval.Assembler,
	orchestrator *generation.Orchestrator,
	meta store.MetadataStore,
	cfg Config,
	logger *log.Logger,
) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[QUERY] ", log.LstdFlags)
	}
	return &Pipeline{
		provider:     p,
		coordinator:  coordinator,
		retriever:    retriever,
		assembler:    assembler,
		orchestrator: orchestrator,
		meta:         meta,
		cfg:          cfg,
		logger:       logger,
	}
}

// Ingest runs the full ingestion protocol for new document text.
func (p *Pipeline) Ingest(ctx context.Context, text, sourceName string) (models.Document, error) {
	return p.coordinator.Ingest(ctx, text, sourceName)
}

// Reingest re-runs ingestion for an existing document.
func (p *Pipeline) Reingest(ctx context.Context, documentID string) (models.Document, error) {
	return p.coordinator.Reingest(ctx, documentID)
}

// ListDocuments returns document metadata, optionally filtered by status.
func (p *Pipeline) ListDocuments(ctx context.Context, status models.DocumentStatus) ([]models.Document, error) {
	return p.meta.ListDocuments(ctx, status)
}

// Answer embeds the question, retrieves and assembles context, and asks
// the generation capability for a grounded answer. With zero candidates
// it short-circuits to the deterministic no-information answer without
// calling generation.
func (p *Pipeline) Answer(ctx context.Context, question string) (models.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return models.Answer{}, fmt.Errorf("%w: question is empty", models.ErrInvalidInput)
	}

	vecs, err := p.provider.Embed(ctx, []string{question})
	if err != nil {
		return models.Answer{}, fmt.Errorf("embedding question: %w", err)
	}
	if len(vecs) != 1 {
		return models.Answer{}, fmt.Errorf("%w: expected one question vector, got %d", provider.ErrEmbeddingUnavailable, len(vecs))
	}

	candidates, err := p.retriever.Retrieve(ctx, vecs[0], p.cfg.TopK)
	if err != nil {
		return models.Answer{}, fmt.Errorf("retrieving candidates: %w", err)
	}
	if len(candidates) == 0 {
		return models.Answer{Text: NoRelevantInformationAnswer}, nil
	}

	qc, err := p.assembler.Assemble(question, candidates)
	if err != nil {
		return models.Answer{}, err
	}

	answer, err := p.orchestrator.Generate(ctx, qc)
	if err != nil {
		return models.Answer{}, err
	}
	p.logger.Printf("answered question with %d context chunks (%d tokens)", len(qc.Candidates), qc.TokenCount)
	return answer, nil
}
