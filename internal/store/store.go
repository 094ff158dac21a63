// Package store persists document and chunk metadata in Postgres and
// chunk vectors in a pgvector-backed table. The two tables are written
// independently; consistency between them is the ingestion coordinator's
// contract, not a database transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/docqa-io/docqa/models"
)

// ErrWrite wraps failed writes to either table.
var ErrWrite = errors.New("store write failed")

// ErrRead wraps failed reads from either table.
var ErrRead = errors.New("store read failed")

// Match is a nearest-neighbour hit from the vector index.
type Match struct {
	ChunkID    string
	DocumentID string
	// Score is cosine similarity; larger is closer.
	Score float64
}

// ChunkRecord is a chunk joined with its owning document's status, so
// retrieval can filter failed documents without a second lookup.
type ChunkRecord struct {
	models.Chunk
	DocumentStatus models.DocumentStatus
}

// VectorIndex is the capability contract for vector storage.
type VectorIndex interface {
	UpsertEmbedding(ctx context.Context, chunkID, documentID string, vector []float32) error
	QueryNearest(ctx context.Context, vector []float32, k int) ([]Match, error)
}

// MetadataStore is the capability contract for document/chunk records.
type MetadataStore interface {
	CreateDocument(ctx context.Context, doc models.Document, body string) error
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, chunkCount int) error
	GetDocument(ctx context.Context, id string) (models.Document, string, error)
	ListDocuments(ctx context.Context, status models.DocumentStatus) ([]models.Document, error)
	CountDocuments(ctx context.Context) (int, error)
	UpsertChunk(ctx context.Context, chunk models.Chunk) error
	GetChunk(ctx context.Context, chunkID string) (ChunkRecord, bool, error)
}

// Store implements both capability contracts on one Postgres database.
type Store struct {
	DB *sql.DB
}

var (
	_ VectorIndex   = (*Store)(nil)
	_ MetadataStore = (*Store)(nil)
)

// New connects using DATABASE_URL or discrete POSTGRES_* variables.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// Document operations

// CreateDocument inserts a document shell plus its raw body. The body is
// kept so re-ingestion can re-chunk without the original upload.
func (s *Store) CreateDocument(ctx context.Context, doc models.Document, body string) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO documents (id, source_name, body, page_count, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
`, doc.ID, doc.SourceName, body, doc.PageCount, string(doc.Status))
	if err != nil {
		return fmt.Errorf("%w: insert document %s: %v", ErrWrite, doc.ID, err)
	}
	return nil
}

// UpdateDocumentStatus advances the ingestion state machine. chunkCount
// is recorded alongside so listings can report it; pass -1 to keep the
// stored value.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, chunkCount int) error {
	var err error
	if chunkCount >= 0 {
		_, err = s.DB.ExecContext(ctx,
			`UPDATE documents SET status=$2, chunk_count=$3, updated_at=NOW() WHERE id=$1`,
			id, string(status), chunkCount)
	} else {
		_, err = s.DB.ExecContext(ctx,
			`UPDATE documents SET status=$2, updated_at=NOW() WHERE id=$1`,
			id, string(status))
	}
	if err != nil {
		return fmt.Errorf("%w: update document %s status: %v", ErrWrite, id, err)
	}
	return nil
}

// GetDocument returns the document record and its stored body.
func (s *Store) GetDocument(ctx context.Context, id string) (models.Document, string, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, source_name, body, page_count, status, chunk_count, created_at, updated_at
FROM documents WHERE id=$1
`, id)
	var doc models.Document
	var body, status string
	if err := row.Scan(&doc.ID, &doc.SourceName, &body, &doc.PageCount, &status, &doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Document{}, "", models.ErrDocumentNotFound
		}
		return models.Document{}, "", fmt.Errorf("%w: get document %s: %v", ErrRead, id, err)
	}
	doc.Status = models.DocumentStatus(status)
	return doc, body, nil
}

// ListDocuments returns documents newest-first, optionally filtered by
// status (empty filter lists all).
func (s *Store) ListDocuments(ctx context.Context, status models.DocumentStatus) ([]models.Document, error) {
	query := `
SELECT id, source_name, page_count, status, chunk_count, created_at, updated_at
FROM documents`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %v", ErrRead, err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		var st string
		if err := rows.Scan(&doc.ID, &doc.SourceName, &doc.PageCount, &st, &doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan document: %v", ErrRead, err)
		}
		doc.Status = models.DocumentStatus(st)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CountDocuments returns the total number of documents in the corpus.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count documents: %v", ErrRead, err)
	}
	return n, nil
}

// Chunk metadata operations

// UpsertChunk writes a chunk record, superseding any previous chunk with
// the same deterministic id.
func (s *Store) UpsertChunk(ctx context.Context, chunk models.Chunk) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO chunks (id, document_id, sequence_index, text, token_count, source_locator, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (id) DO UPDATE SET
  text = EXCLUDED.text,
  token_count = EXCLUDED.token_count,
  source_locator = EXCLUDED.source_locator,
  created_at = NOW();
`, chunk.ID, chunk.DocumentID, chunk.SequenceIndex, chunk.Text, chunk.TokenCount, chunk.SourceLocator)
	if err != nil {
		return fmt.Errorf("%w: upsert chunk %s: %v", ErrWrite, chunk.ID, err)
	}
	return nil
}

// GetChunk fetches a chunk together with its owning document's status.
// Absence is not an error: orphaned vectors resolve to (_, false, nil).
func (s *Store) GetChunk(ctx context.Context, chunkID string) (ChunkRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT c.id, c.document_id, c.sequence_index, c.text, c.token_count, c.source_locator, d.status
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.id=$1
`, chunkID)
	var rec ChunkRecord
	var status string
	if err := row.Scan(&rec.ID, &rec.DocumentID, &rec.SequenceIndex, &rec.Text, &rec.TokenCount, &rec.SourceLocator, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ChunkRecord{}, false, nil
		}
		return ChunkRecord{}, false, fmt.Errorf("%w: get chunk %s: %v", ErrRead, chunkID, err)
	}
	rec.DocumentStatus = models.DocumentStatus(status)
	return rec, true, nil
}

// Vector index operations

// UpsertEmbedding stores or replaces the vector for a chunk id.
func (s *Store) UpsertEmbedding(ctx context.Context, chunkID, documentID string, vector []float32) error {
	lit, err := encodeVectorLiteral(vector)
	if err != nil {
		return fmt.Errorf("%w: chunk %s: %v", ErrWrite, chunkID, err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO chunk_embeddings (chunk_id, document_id, embedding, created_at)
VALUES ($1,$2,$3::vector,NOW())
ON CONFLICT (chunk_id) DO UPDATE SET
  document_id = EXCLUDED.document_id,
  embedding = EXCLUDED.embedding,
  created_at = NOW();
`, chunkID, documentID, lit)
	if err != nil {
		return fmt.Errorf("%w: upsert embedding %s: %v", ErrWrite, chunkID, err)
	}
	return nil
}

// QueryNearest returns the k closest chunks by cosine distance, ties
// broken by smaller chunk id for deterministic ordering.
func (s *Store) QueryNearest(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	lit, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT chunk_id, document_id, 1 - (embedding <=> $1::vector) AS score
FROM chunk_embeddings
ORDER BY embedding <=> $1::vector ASC, chunk_id ASC
LIMIT $2
`, lit, k)
	if err != nil {
		return nil, fmt.Errorf("%w: query nearest: %v", ErrRead, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.Score); err != nil {
			return nil, fmt.Errorf("%w: scan match: %v", ErrRead, err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// User operations (API auth)

func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
