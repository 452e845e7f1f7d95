package search

import (
	"context"

	"github.com/prodreg/reestr/internal/domain"
	"github.com/prodreg/reestr/internal/domain/filterset"
	"github.com/prodreg/reestr/internal/domain/registry"
)

// RowStore defines the registry store contract for semantic search.
type RowStore interface {
	// SemanticSearch returns rows ordered by vector distance, restricted by
	// predicate clauses built with alias "r.".
	SemanticSearch(
		ctx context.Context, vec []float32, clauses []string, args []any, limit, offset int,
	) ([]*registry.Row, error)

	// LexicalFallback reruns the vector-ordered query with an extra
	// substring predicate on the product name.
	LexicalFallback(
		ctx context.Context, vec []float32, clauses []string, args []any, token string, limit int,
	) ([]*registry.Row, error)
}

// Embedder vectorizes the query text with synonym metadata.
type Embedder interface {
	Embed(ctx context.Context, req domain.EmbedRequest) (domain.EmbeddingResult, error)
}

// Request is one semantic search query.
type Request struct {
	Text    string
	Filters filterset.Set
	Limit   int
	Offset  int
	Debug   bool
}
