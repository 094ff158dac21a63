package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docqa-io/docqa/provider"
)

func newTestClient(t *testing.T, h http.HandlerFunc) provider.Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := New(provider.Options{
		APIKey:          "test-key",
		BaseURL:         srv.URL,
		CompletionModel: "gpt-test",
		EmbeddingModel:  "embed-test",
		Timeout:         2 * time.Second,
		EmbedRetries:    3,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := p.(*client)
	c.embedBackoff = time.Millisecond
	return p
}

func TestEmbedReturnsVectorsInInputOrder(t *testing.T) {
	p := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		// Out-of-order response; client must reorder by index.
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 1, "embedding": []float32{0.3, 0.4}},
				{"index": 0, "embedding": []float32{0.1, 0.2}},
			},
		})
	})
	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 0.1 || vecs[1][0] != 0.3 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
}

func TestEmbedRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	p := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"index": 0, "embedding": []float32{1}}},
		})
	})
	if _, err := p.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("Embed after retries: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestEmbedExhaustedRetriesReportsUnavailable(t *testing.T) {
	p := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := p.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, provider.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestEmbedDoesNotRetryRejections(t *testing.T) {
	calls := 0
	p := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	})
	_, err := p.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, provider.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable wrap, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("rejection should not be retried, got %d calls", calls)
	}
}

func TestCompleteClassifiesFailures(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"upstream down", http.StatusBadGateway, true},
		{"policy rejection", http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			_, err := p.Complete(context.Background(), "hello")
			var transient *provider.TransientError
			var rejected *provider.RejectedError
			switch {
			case tc.transient && !errors.As(err, &transient):
				t.Fatalf("expected TransientError, got %v", err)
			case !tc.transient && !errors.As(err, &rejected):
				t.Fatalf("expected RejectedError, got %v", err)
			}
		})
	}
}

func TestCompleteReturnsFirstChoice(t *testing.T) {
	p := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "grounded answer"}},
			},
		})
	})
	text, err := p.Complete(context.Background(), "question")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "grounded answer" {
		t.Fatalf("unexpected completion %q", text)
	}
}
