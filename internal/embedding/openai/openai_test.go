package openai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"agentiq/internal/domain"
)

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func fakeEmbeddings(t *testing.T, calls *int32, failFirst int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if n <= failFirst {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"busy","type":"server_error"}}`))
			return
		}
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		// reversed order checks that vectors are placed by index
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Object: "embedding", Embedding: []float32{float32(len(req.Input[j])), 0, 0}, Index: j}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
}

func TestClient_MissingKeyIsNotConfigured(t *testing.T) {
	t.Setenv("AGENTIQ_TEST_MISSING_KEY", "")
	c := NewClient(Config{APIKeyEnv: "AGENTIQ_TEST_MISSING_KEY"})
	_, err := c.EmbedQuery(context.Background(), "hello")
	if !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestClient_EmbedDocumentsBatchesAndOrders(t *testing.T) {
	var calls int32
	srv := fakeEmbeddings(t, &calls, 0)
	defer srv.Close()
	t.Setenv("AGENTIQ_TEST_KEY", "sk-test")

	c := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "AGENTIQ_TEST_KEY", BatchSize: 2})
	vecs, err := c.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedDocuments failed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 batched calls, got %d", calls)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	for i, v := range vecs {
		if math.Abs(float64(v[0])-1) > 1e-6 {
			t.Fatalf("vector %d not normalized: %v", i, v)
		}
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := fakeEmbeddings(t, &calls, 1)
	defer srv.Close()
	t.Setenv("AGENTIQ_TEST_KEY", "sk-test")

	c := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "AGENTIQ_TEST_KEY", MaxRetries: 1})
	if _, err := c.EmbedQuery(context.Background(), "hello"); err != nil {
		t.Fatalf("EmbedQuery failed after retry: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestClient_ExhaustedRetriesWrapExternalService(t *testing.T) {
	var calls int32
	srv := fakeEmbeddings(t, &calls, 10)
	defer srv.Close()
	t.Setenv("AGENTIQ_TEST_KEY", "sk-test")

	c := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "AGENTIQ_TEST_KEY", MaxRetries: 0})
	_, err := c.EmbedQuery(context.Background(), "hello")
	if !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}
