// Package openai is an embedding provider for deployments that embed
// directly against an OpenAI-compatible API instead of the normalizer
// sidecar. It returns no synonym data: lexical scoring then runs on the
// original query tokens only.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/prodreg/reestr/internal/domain"
	"github.com/prodreg/reestr/internal/metrics"
)

// Embedder calls an OpenAI-compatible embeddings endpoint.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	logger     *zap.Logger
}

// Config holds the provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Logger     *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		logger:     cfg.Logger,
	}
}

// Embed implements domain.Embedder. The normalize and synonym flags are
// handled upstream by the semantic provider; here the text is embedded as-is.
func (e *Embedder) Embed(ctx context.Context, req domain.EmbedRequest) (domain.EmbeddingResult, error) {
	embReq := openai.EmbeddingRequest{
		Input:          []string{req.Text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		embReq.Dimensions = e.dimensions
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, embReq)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("openai", "error").Inc()
		return domain.EmbeddingResult{}, parseAPIError(err)
	}

	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues("openai", "malformed").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("%w: empty embedding response", domain.ErrMalformedEmbedding)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues("openai", "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues("openai").Observe(duration.Seconds())

	return domain.EmbeddingResult{
		Normalized: req.Text,
		Embedding:  resp.Data[0].Embedding,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError maps provider failures onto the embedding error taxonomy:
// deadline overruns are timeouts, everything else is unavailability.
func parseAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrEmbeddingTimeout, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("%w: api error %d: %s",
			domain.ErrEmbeddingUnavailable, reqErr.HTTPStatusCode, detail)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: api error %d: %s",
			domain.ErrEmbeddingUnavailable, apiErr.HTTPStatusCode, apiErr.Message)
	}

	return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

var _ domain.Embedder = (*Embedder)(nil)
