package retrieval

import (
	"context"
	"testing"

	"github.com/docqa-io/docqa/internal/store"
	"github.com/docqa-io/docqa/models"
)

type fakeIndex struct {
	matches []store.Match
}

func (f *fakeIndex) UpsertEmbedding(ctx context.Context, chunkID, documentID string, vector []float32) error {
	return nil
}

func (f *fakeIndex) QueryNearest(ctx context.Context, vector []float32, k int) ([]store.Match, error) {
	if k >= len(f.matches) {
		return f.matches, nil
	}
	return f.matches[:k], nil
}

type fakeMeta struct {
	chunks map[string]store.ChunkRecord
}

func (f *fakeMeta) CreateDocument(ctx context.Context, doc models.Document, body string) error {
	return nil
}
func (f *fakeMeta) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, chunkCount int) error {
	return nil
}
func (f *fakeMeta) GetDocument(ctx context.Context, id string) (models.Document, string, error) {
	return models.Document{}, "", models.ErrDocumentNotFound
}
func (f *fakeMeta) ListDocuments(ctx context.Context, status models.DocumentStatus) ([]models.Document, error) {
	return nil, nil
}
func (f *fakeMeta) CountDocuments(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeMeta) UpsertChunk(ctx context.Context, chunk models.Chunk) error {
	return nil
}
func (f *fakeMeta) GetChunk(ctx context.Context, chunkID string) (store.ChunkRecord, bool, error) {
	rec, ok := f.chunks[chunkID]
	return rec, ok, nil
}

func chunkRec(id, docID string, tokens int, status models.DocumentStatus) store.ChunkRecord {
	return store.ChunkRecord{
		Chunk: models.Chunk{
			ID:            id,
			DocumentID:    docID,
			Text:          "text of " + id,
			TokenCount:    tokens,
			SourceLocator: id + ".loc",
		},
		DocumentStatus: status,
	}
}

func TestRetrieveEmptyIndexYieldsEmptyResult(t *testing.T) {
	r := NewRetriever(&fakeIndex{}, &fakeMeta{chunks: map[string]store.ChunkRecord{}}, Config{}, nil)
	cands, err := r.Retrieve(context.Background(), []float32{1}, 4)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("expected no candidates, got %d", len(cands))
	}
}

func TestRetrieveSkipsOrphanedVectors(t *testing.T) {
	idx := &fakeIndex{matches: []store.Match{
		{ChunkID: "doc-1:0", DocumentID: "doc-1", Score: 0.9},
		{ChunkID: "ghost:0", DocumentID: "ghost", Score: 0.8}, // no metadata
		{ChunkID: "doc-2:0", DocumentID: "doc-2", Score: 0.7},
	}}
	meta := &fakeMeta{chunks: map[string]store.ChunkRecord{
		"doc-1:0": chunkRec("doc-1:0", "doc-1", 10, models.StatusIndexed),
		"doc-2:0": chunkRec("doc-2:0", "doc-2", 10, models.StatusIndexed),
	}}
	r := NewRetriever(idx, meta, Config{}, nil)

	cands, err := r.Retrieve(context.Background(), []float32{1}, 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(cands) != 2 || cands[0].ChunkID != "doc-1:0" || cands[1].ChunkID != "doc-2:0" {
		t.Fatalf("unexpected candidates: %+v", cands)
	}
}

func TestRetrieveExcludesFailedDocuments(t *testing.T) {
	idx := &fakeIndex{matches: []store.Match{
		{ChunkID: "bad:0", DocumentID: "bad", Score: 0.95},
		{ChunkID: "ok:0", DocumentID: "ok", Score: 0.5},
	}}
	meta := &fakeMeta{chunks: map[string]store.ChunkRecord{
		"bad:0": chunkRec("bad:0", "bad", 10, models.StatusFailed),
		"ok:0":  chunkRec("ok:0", "ok", 10, models.StatusIndexed),
	}}
	r := NewRetriever(idx, meta, Config{}, nil)

	cands, err := r.Retrieve(context.Background(), []float32{1}, 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(cands) != 1 || cands[0].ChunkID != "ok:0" {
		t.Fatalf("unexpected candidates: %+v", cands)
	}
}

func TestRetrieveCapsChunksPerDocument(t *testing.T) {
	idx := &fakeIndex{matches: []store.Match{
		{ChunkID: "doc-1:0", DocumentID: "doc-1", Score: 0.9},
		{ChunkID: "doc-1:1", DocumentID: "doc-1", Score: 0.85},
		{ChunkID: "doc-1:2", DocumentID: "doc-1", Score: 0.8},
		{ChunkID: "doc-2:0", DocumentID: "doc-2", Score: 0.75},
	}}
	meta := &fakeMeta{chunks: map[string]store.ChunkRecord{
		"doc-1:0": chunkRec("doc-1:0", "doc-1", 10, models.StatusIndexed),
		"doc-1:1": chunkRec("doc-1:1", "doc-1", 10, models.StatusIndexed),
		"doc-1:2": chunkRec("doc-1:2", "doc-1", 10, models.StatusIndexed),
		"doc-2:0": chunkRec("doc-2:0", "doc-2", 10, models.StatusIndexed),
	}}
	r := NewRetriever(idx, meta, Config{MaxChunksPerDocument: 2}, nil)

	cands, err := r.Retrieve(context.Background(), []float32{1}, 4)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	perDoc := map[string]int{}
	for _, c := range cands {
		perDoc[c.DocumentID]++
	}
	if perDoc["doc-1"] != 2 || perDoc["doc-2"] != 1 {
		t.Fatalf("unexpected per-document counts: %v", perDoc)
	}
	// Global rank order is preserved.
	if cands[0].ChunkID != "doc-1:0" || cands[1].ChunkID != "doc-1:1" || cands[2].ChunkID != "doc-2:0" {
		t.Fatalf("rank order broken: %+v", cands)
	}
}

func TestRetrieveBreaksScoreTiesByChunkID(t *testing.T) {
	idx := &fakeIndex{matches: []store.Match{
		{ChunkID: "doc-b:0", DocumentID: "doc-b", Score: 0.8},
		{ChunkID: "doc-a:0", DocumentID: "doc-a", Score: 0.8},
	}}
	meta := &fakeMeta{chunks: map[string]store.ChunkRecord{
		"doc-a:0": chunkRec("doc-a:0", "doc-a", 10, models.StatusIndexed),
		"doc-b:0": chunkRec("doc-b:0", "doc-b", 10, models.StatusIndexed),
	}}
	r := NewRetriever(idx, meta, Config{}, nil)

	cands, err := r.Retrieve(context.Background(), []float32{1}, 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if cands[0].ChunkID != "doc-a:0" {
		t.Fatalf("tie not broken by smaller chunk id: %+v", cands)
	}
}

func TestRetrieveScoresAreNonIncreasing(t *testing.T) {
	idx := &fakeIndex{matches: []store.Match{
		{ChunkID: "a:0", DocumentID: "a", Score: 0.9},
		{ChunkID: "b:0", DocumentID: "b", Score: 0.7},
		{ChunkID: "c:0", DocumentID: "c", Score: 0.8},
	}}
	meta := &fakeMeta{chunks: map[string]store.ChunkRecord{
		"a:0": chunkRec("a:0", "a", 10, models.StatusIndexed),
		"b:0": chunkRec("b:0", "b", 10, models.StatusIndexed),
		"c:0": chunkRec("c:0", "c", 10, models.StatusIndexed),
	}}
	r := NewRetriever(idx, meta, Config{}, nil)

	cands, err := r.Retrieve(context.Background(), []float32{1}, 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for i := 1; i < len(cands); i++ {
		if cands[i].Score > cands[i-1].Score {
			t.Fatalf("scores increase at %d: %+v", i, cands)
		}
	}
}
