// Package ingest drives the document ingestion protocol: chunk, embed,
// then dual-write vectors and chunk metadata with a fixed per-chunk
// ordering (vector first, metadata second).
package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docqa-io/docqa/internal/chunker"
	"github.com/docqa-io/docqa/internal/store"
	"github.com/docqa-io/docqa/models"
)

// Embedder is the slice of the provider contract ingestion needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config tunes batching and write concurrency.
type Config struct {
	// EmbedBatchSize is how many chunk texts go to the embedding provider
	// per call.
	EmbedBatchSize int
	// MaxConcurrentWrites bounds in-flight dual writes. The vector-before-
	// metadata order is preserved per chunk; chunks are independent.
	MaxConcurrentWrites int
}

// Coordinator owns Document records and their status transitions.
type Coordinator struct {
	chunker  *chunker.Chunker
	embedder Embedder
	index    store.VectorIndex
	meta     store.MetadataStore
	cfg      Config
	logger   *log.Logger
}

// New builds a Coordinator. Defaults: batch size 32, 4 concurrent writes.
func New(ch *chunker.Chunker, embedder Embedder, index store.VectorIndex, meta store.MetadataStore, cfg Config, logger *log.Logger) *Coordinator {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 32
	}
	if cfg.MaxConcurrentWrites <= 0 {
		cfg.MaxConcurrentWrites = 4
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	return &Coordinator{chunker: ch, embedder: embedder, index: index, meta: meta, cfg: cfg, logger: logger}
}

// Ingest creates a new document from raw text and runs the ingestion
// protocol to completion. The returned document is INDEXED on success and
// FAILED on error; partial writes are left in place for inspection and
// idempotent re-ingestion.
func (c *Coordinator) Ingest(ctx context.Context, text, sourceName string) (models.Document, error) {
	if strings.TrimSpace(text) == "" {
		return models.Document{}, fmt.Errorf("%w: document text is empty", models.ErrInvalidInput)
	}
	doc := models.Document{
		ID:         uuid.NewString(),
		SourceName: sourceName,
		PageCount:  pageCount(text),
		Status:     models.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := c.meta.CreateDocument(ctx, doc, text); err != nil {
		return models.Document{}, fmt.Errorf("ingestion failed: %w", err)
	}
	return c.run(ctx, doc, text)
}

// Reingest re-runs ingestion for an existing document using its stored
// body. Deterministic chunk ids make this an in-place supersede rather
// than a duplication, so retrying a FAILED document is safe.
func (c *Coordinator) Reingest(ctx context.Context, documentID string) (models.Document, error) {
	doc, body, err := c.meta.GetDocument(ctx, documentID)
	if err != nil {
		return models.Document{}, err
	}
	if err := c.meta.UpdateDocumentStatus(ctx, doc.ID, models.StatusPending, -1); err != nil {
		return doc, fmt.Errorf("ingestion failed: %w", err)
	}
	doc.Status = models.StatusPending
	return c.run(ctx, doc, body)
}

func (c *Coordinator) run(ctx context.Context, doc models.Document, text string) (models.Document, error) {
	chunks, err := c.chunker.Split(doc.ID, text)
	if err != nil {
		return c.fail(ctx, doc, fmt.Errorf("chunking: %w", err))
	}
	for i := range chunks {
		chunks[i].SourceLocator = doc.SourceName + "#" + chunks[i].SourceLocator
	}

	vectors, err := c.embedAll(ctx, chunks)
	if err != nil {
		return c.fail(ctx, doc, err)
	}

	if err := c.meta.UpdateDocumentStatus(ctx, doc.ID, models.StatusChunked, len(chunks)); err != nil {
		return c.fail(ctx, doc, err)
	}
	doc.Status = models.StatusChunked
	doc.ChunkCount = len(chunks)

	if err := c.writeAll(ctx, chunks, vectors); err != nil {
		return c.fail(ctx, doc, err)
	}

	if err := c.meta.UpdateDocumentStatus(ctx, doc.ID, models.StatusIndexed, len(chunks)); err != nil {
		return c.fail(ctx, doc, err)
	}
	doc.Status = models.StatusIndexed
	c.logger.Printf("indexed document %s (%q, %d chunks)", doc.ID, doc.SourceName, len(chunks))
	return doc, nil
}

// embedAll converts chunk texts to vectors in provider-sized batches.
func (c *Coordinator) embedAll(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += c.cfg.EmbedBatchSize {
		end := start + c.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Text)
		}
		batch, err := c.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", start, end, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedding chunks %d-%d: expected %d vectors, got %d", start, end, len(texts), len(batch))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// writeAll performs the dual writes. Within one chunk the vector write
// strictly precedes the metadata write: a vector without metadata is a
// detectable orphan the retriever skips, while metadata without a vector
// would surface unsearchable chunks.
func (c *Coordinator) writeAll(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	sem := make(chan struct{}, c.cfg.MaxConcurrentWrites)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := range chunks {
		mu.Lock()
		stop := firstErr != nil
		mu.Unlock()
		if stop {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(chunk models.Chunk, vector []float32) {
			defer wg.Done()
			defer func() { <-sem }()

			err := c.index.UpsertEmbedding(ctx, chunk.ID, chunk.DocumentID, vector)
			if err == nil {
				err = c.meta.UpsertChunk(ctx, chunk)
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(chunks[i], vectors[i])
	}
	wg.Wait()
	return firstErr
}

// fail marks the document FAILED and propagates the cause. Already
// written chunks are deliberately left in place: a FAILED document is
// excluded from retrieval by its status, and re-ingestion overwrites
// chunks by deterministic id.
func (c *Coordinator) fail(ctx context.Context, doc models.Document, cause error) (models.Document, error) {
	if err := c.meta.UpdateDocumentStatus(ctx, doc.ID, models.StatusFailed, -1); err != nil {
		c.logger.Printf("warn: marking document %s failed: %v", doc.ID, err)
	}
	doc.Status = models.StatusFailed
	c.logger.Printf("ingestion of document %s failed: %v", doc.ID, cause)
	return doc, fmt.Errorf("ingestion failed: %w", cause)
}

// pageCount treats form feeds as page breaks; plain text without them is
// a single page.
func pageCount(text string) int {
	return 1 + strings.Count(text, "\f")
}
