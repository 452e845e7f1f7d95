package search

import "github.com/prodreg/reestr/internal/domain"

// AttemptRecord is one entry of the attempt history: every attempt is
// recorded regardless of outcome, so an empty response still explains what
// was tried.
type AttemptRecord struct {
	Index          int      `json:"index"`
	Label          string   `json:"label"`
	TNVED          string   `json:"tnved,omitempty"`
	Code           string   `json:"code,omitempty"`
	Rows           int      `json:"rows"`
	LimitUsed      int      `json:"limit_used"`
	Elapsed        float64  `json:"elapsed"`
	RemovedFilters []string `json:"removed_filters,omitempty"`
}

// Diagnostics explains how the result set was produced: which attempt won,
// which tokens and synonyms scored, and which fallbacks fired.
//
// The two fallback flags are distinct: AttemptFallbackUsed means a relaxed
// attempt (not the original filters) produced the rows; LexicalFallbackUsed
// means per-token product-name queries contributed rows to the pool.
type Diagnostics struct {
	OriginalQuery          string               `json:"original_query"`
	NormalizedQuery        string               `json:"normalized_query"`
	Synonyms               []string             `json:"synonyms"`
	SynonymPairs           []domain.SynonymPair `json:"synonym_pairs"`
	Mode                   string               `json:"mode"`
	Tokens                 []string             `json:"tokens"`
	FilteredCount          *int                 `json:"filtered_count"`
	PrimaryToken           string               `json:"primary_token,omitempty"`
	FallbackAttempts       []AttemptRecord      `json:"fallback_attempts"`
	AttemptFallbackUsed    bool                 `json:"attempt_fallback_used"`
	LexicalFallbackUsed    bool                 `json:"lexical_fallback_used"`
	ActiveFilters          map[string]string    `json:"active_filters"`
	FallbackRemovedFilters []string             `json:"fallback_removed_filters,omitempty"`
}
