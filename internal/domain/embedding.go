package domain

import "context"

// SynonymPair records one synonym substitution reported by the embedding
// service: Source is the query token that triggered it, Variant is the term
// added to the search vocabulary. Type is "canonical" when the variant is the
// dictionary head word, "synonym" otherwise.
type SynonymPair struct {
	Source  string `json:"source"`
	Variant string `json:"variant"`
	Type    string `json:"type,omitempty"`
}

// EmbedRequest describes one normalize-and-embed call.
//
// Normalize=true is the strict mode: the service applies morphological
// normalization and deterministic synonym substitution per token.
// Normalize=false keeps the original text (preserving casing and word order
// for token matching) and, when ApplySynonyms is set, appends detected
// synonym expansions to the text before embedding.
type EmbedRequest struct {
	Text          string
	Normalize     bool
	ApplySynonyms bool
	Debug         bool
}

// EmbeddingResult is the embedding service response: the normalized (or
// original) text, the query vector, and the synonym data used later for
// lexical scoring. A cache hit must be structurally identical to a fresh
// computation.
type EmbeddingResult struct {
	Normalized string        `json:"normalized"`
	Embedding  []float32     `json:"embedding"`
	Synonyms   []SynonymPair `json:"synonyms_applied"`
	Expansions []string      `json:"synonym_expansions"`
	Augmented  []string      `json:"embedding_augmented,omitempty"`
}

// Embedder turns text into a vector with synonym metadata.
type Embedder interface {
	Embed(ctx context.Context, req EmbedRequest) (EmbeddingResult, error)
}

// HealthChecker is implemented by embedders that can verify upstream
// availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
