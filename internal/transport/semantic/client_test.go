package semantic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/prodreg/reestr/internal/domain"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(Config{URL: url, Timeout: timeout, Logger: zap.NewNop()})
}

func TestEmbed_Success(t *testing.T) {
	var got requestPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"normalized": "молоко сухое",
			"embedding":  []float32{0.1, 0.2},
			"synonyms_applied": []map[string]string{
				{"source": "молоко", "variant": "сливки", "type": "expand"},
			},
			"synonym_expansions": []string{"сливки"},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	result, err := c.Embed(context.Background(), domain.EmbedRequest{
		Text:          "Молоко сухое",
		ApplySynonyms: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Text != "Молоко сухое" || got.Normalize || !got.ApplySynonyms {
		t.Errorf("unexpected upstream payload: %+v", got)
	}
	if result.Normalized != "молоко сухое" {
		t.Errorf("normalized = %q", result.Normalized)
	}
	if len(result.Embedding) != 2 {
		t.Errorf("unexpected vector: %v", result.Embedding)
	}
	if len(result.Synonyms) != 1 || result.Synonyms[0].Variant != "сливки" {
		t.Errorf("unexpected synonyms: %v", result.Synonyms)
	}
}

func TestEmbed_NormalizeModeDropsSynonymFlag(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	_, err := c.Embed(context.Background(), domain.EmbedRequest{
		Text:          "молоко",
		Normalize:     true,
		ApplySynonyms: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := body["apply_synonyms"]; ok {
		t.Error("apply_synonyms must be omitted in normalize mode")
	}
}

func TestEmbed_NormalizedDefaultsToInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	result, err := c.Embed(context.Background(), domain.EmbedRequest{Text: "молоко"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Normalized != "молоко" {
		t.Fatalf("normalized = %q, want input text", result.Normalized)
	}
}

func TestEmbed_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 20*time.Millisecond)
	_, err := c.Embed(context.Background(), domain.EmbedRequest{Text: "молоко"})
	if !errors.Is(err, domain.ErrEmbeddingTimeout) {
		t.Fatalf("expected ErrEmbeddingTimeout, got %v", err)
	}
}

func TestEmbed_Non200IsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	_, err := c.Embed(context.Background(), domain.EmbedRequest{Text: "молоко"})
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestEmbed_ConnectionRefusedIsUnavailable(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1", time.Second)
	_, err := c.Embed(context.Background(), domain.EmbedRequest{Text: "молоко"})
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestEmbed_MissingEmbeddingIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"normalized": "молоко"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	_, err := c.Embed(context.Background(), domain.EmbedRequest{Text: "молоко"})
	if !errors.Is(err, domain.ErrMalformedEmbedding) {
		t.Fatalf("expected ErrMalformedEmbedding, got %v", err)
	}
}

func TestEmbed_GarbageBodyIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	_, err := c.Embed(context.Background(), domain.EmbedRequest{Text: "молоко"})
	if !errors.Is(err, domain.ErrMalformedEmbedding) {
		t.Fatalf("expected ErrMalformedEmbedding, got %v", err)
	}
}
