package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrEmbeddingTimeout signals that the embedding service exceeded its deadline.
	ErrEmbeddingTimeout = errors.New("embedding service timeout")
	// ErrEmbeddingUnavailable signals that the embedding service could not be reached.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	// ErrMalformedEmbedding signals an embedding payload missing required fields.
	ErrMalformedEmbedding = errors.New("malformed embedding response")
	// ErrStoreUnavailable signals a registry store connectivity failure.
	ErrStoreUnavailable = errors.New("registry store unavailable")
	// ErrNoFilters signals a plain search request without any filter.
	ErrNoFilters = errors.New("at least one filter parameter is required")
	// ErrInvalidQuery signals an invalid query parameter value.
	ErrInvalidQuery = errors.New("invalid query parameter")
)

// UnknownParamsError wraps ErrInvalidQuery with the offending and allowed
// query-parameter names.
type UnknownParamsError struct {
	Unknown []string
	Allowed []string
}

// NewUnknownParams builds an UnknownParamsError with both name lists sorted.
func NewUnknownParams(unknown, allowed []string) *UnknownParamsError {
	u := append([]string(nil), unknown...)
	a := append([]string(nil), allowed...)
	sort.Strings(u)
	sort.Strings(a)
	return &UnknownParamsError{Unknown: u, Allowed: a}
}

func (e *UnknownParamsError) Error() string {
	return fmt.Sprintf("unknown query parameter(s): %s", strings.Join(e.Unknown, ", "))
}

func (e *UnknownParamsError) Unwrap() error { return ErrInvalidQuery }
