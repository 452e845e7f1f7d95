// Package semantic is the HTTP client for the normalize-and-embed service.
// The upstream speaks a bespoke JSON contract: POST {text, debug, normalize,
// apply_synonyms} and returns the normalized text, the embedding vector and
// the synonym substitutions it applied.
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/prodreg/reestr/internal/domain"
	"github.com/prodreg/reestr/internal/metrics"
)

// Config holds the embedding service client settings.
type Config struct {
	URL     string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client calls the embedding service. Failures are surfaced as typed errors:
// deadline overruns as ErrEmbeddingTimeout, transport failures as
// ErrEmbeddingUnavailable, payloads missing the embedding field as
// ErrMalformedEmbedding. A zero vector is never substituted.
type Client struct {
	httpClient *http.Client
	url        string
	logger     *zap.Logger
}

// NewClient creates an embedding service client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        cfg.URL,
		logger:     cfg.Logger,
	}
}

type requestPayload struct {
	Text          string `json:"text"`
	Debug         bool   `json:"debug"`
	Normalize     bool   `json:"normalize"`
	ApplySynonyms bool   `json:"apply_synonyms,omitempty"`
}

type responsePayload struct {
	Normalized string               `json:"normalized"`
	Embedding  []float32            `json:"embedding"`
	Synonyms   []domain.SynonymPair `json:"synonyms_applied"`
	Expansions []string             `json:"synonym_expansions"`
	Augmented  []string             `json:"embedding_augmented"`
}

// Embed implements domain.Embedder.
func (c *Client) Embed(ctx context.Context, req domain.EmbedRequest) (domain.EmbeddingResult, error) {
	payload := requestPayload{
		Text:      req.Text,
		Debug:     req.Debug,
		Normalize: req.Normalize,
	}
	if !req.Normalize {
		payload.ApplySynonyms = req.ApplySynonyms
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("marshal embedding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("build embedding request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		if isTimeout(err) {
			metrics.EmbeddingRequestsTotal.WithLabelValues("semantic", "timeout").Inc()
			return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingTimeout, err)
		}
		metrics.EmbeddingRequestsTotal.WithLabelValues("semantic", "error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues("semantic", "error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf(
			"%w: status %d", domain.ErrEmbeddingUnavailable, resp.StatusCode)
	}

	var parsed responsePayload
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("semantic", "malformed").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("%w: decode: %w", domain.ErrMalformedEmbedding, err)
	}
	if len(parsed.Embedding) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues("semantic", "malformed").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("%w: embedding field missing", domain.ErrMalformedEmbedding)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues("semantic", "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues("semantic").Observe(duration.Seconds())

	normalized := parsed.Normalized
	if normalized == "" {
		normalized = req.Text
	}

	return domain.EmbeddingResult{
		Normalized: normalized,
		Embedding:  parsed.Embedding,
		Synonyms:   parsed.Synonyms,
		Expansions: parsed.Expansions,
		Augmented:  parsed.Augmented,
	}, nil
}

// HealthCheck probes the embedding service with a minimal request.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.Embed(ctx, domain.EmbedRequest{Text: "ping", Normalize: true})
	if err != nil {
		return fmt.Errorf("embedding health check: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
