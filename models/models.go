package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInput is returned for caller mistakes (empty text, malformed
// configuration). It is never retried.
var ErrInvalidInput = errors.New("invalid input")

// ErrDocumentNotFound is returned when a document id does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentStatus tracks a document through the ingestion state machine.
type DocumentStatus string

const (
	StatusPending DocumentStatus = "PENDING"
	StatusChunked DocumentStatus = "CHUNKED"
	StatusIndexed DocumentStatus = "INDEXED"
	StatusFailed  DocumentStatus = "FAILED"
)

// Document is the unit of ingestion. Owned by the ingestion coordinator;
// mutated only through status transitions, never deleted automatically.
type Document struct {
	ID         string         `json:"id"`
	SourceName string         `json:"source_name"`
	PageCount  int            `json:"page_count"`
	Status     DocumentStatus `json:"status"`
	ChunkCount int            `json:"chunk_count"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Chunk is a bounded, addressable segment of a document's text, the unit
// of embedding and retrieval. Its id is derived from the document id and
// sequence index, so re-ingesting the same document at the same chunking
// parameters supersedes chunks in place instead of duplicating them.
type Chunk struct {
	ID            string `json:"id"`
	DocumentID    string `json:"document_id"`
	SequenceIndex int    `json:"sequence_index"`
	Text          string `json:"text"`
	TokenCount    int    `json:"token_count"`
	SourceLocator string `json:"source_locator"`
}

// ChunkID derives the deterministic chunk identifier for a document and
// sequence index.
func ChunkID(documentID string, sequenceIndex int) string {
	return fmt.Sprintf("%s:%d", documentID, sequenceIndex)
}

// Candidate is an ephemeral retrieval hit. Never persisted.
type Candidate struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	Score         float64 `json:"score"`
	Text          string  `json:"text"`
	TokenCount    int     `json:"token_count"`
	SourceLocator string  `json:"source_locator"`
}

// QueryContext is the bounded, ordered selection of candidates passed to
// the generation provider together with the question. Lives only for the
// duration of one query.
type QueryContext struct {
	Question   string
	Candidates []Candidate
	TokenCount int
}

// Answer is a grounded generation result with source attribution.
type Answer struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
}
