package embedprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sourcequal/codequal/pkg/logger"
)

func TestNewHTTPProviderRequiresAllFields(t *testing.T) {
	cases := []struct {
		apiKey, baseURL, model string
	}{
		{"", "http://x", "m"},
		{"k", "", "m"},
		{"k", "http://x", ""},
	}
	for _, c := range cases {
		if _, err := NewHTTPProvider(c.apiKey, c.baseURL, c.model, time.Second, logger.NewNop()); err == nil {
			t.Fatalf("expected error for %+v", c)
		}
	}
}

func TestEmbedReturnsVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Fatalf("missing auth header: %s", r.Header.Get("Authorization"))
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Input != "hello world" {
			t.Fatalf("unexpected input %q", req.Input)
		}
		_ = json.NewEncoder(w).Encode(embeddingResponse{
			Data: []struct {
				Embedding []float32 `json:"embedding"`
			}{{Embedding: []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	p, err := NewHTTPProvider("test-key", srv.URL, "text-embedding-3-small", 5*time.Second, logger.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPProvider: %v", err)
	}

	vec, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3-dim vector, got %d", len(vec))
	}
}

func TestEmbedFailsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p, err := NewHTTPProvider("test-key", srv.URL, "m", 5*time.Second, logger.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPProvider: %v", err)
	}
	if _, err := p.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}
