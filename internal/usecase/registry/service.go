// Package registry implements plain filtered registry search: predicate-only
// queries without embeddings or ranking.
package registry

import (
	"context"
	"fmt"

	"github.com/prodreg/reestr/internal/domain"
	"github.com/prodreg/reestr/internal/domain/filterset"
	domreg "github.com/prodreg/reestr/internal/domain/registry"
	repo "github.com/prodreg/reestr/internal/repository/registry"
)

// RowStore defines the store contract for filtered search.
type RowStore interface {
	FilteredSearch(ctx context.Context, clauses []string, args []any, limit, offset int) ([]*domreg.Row, error)
}

// Service answers filtered registry lookups.
type Service struct {
	store RowStore
}

// New creates a filtered search service.
func New(store RowStore) *Service {
	return &Service{store: store}
}

// Request is one filtered lookup.
type Request struct {
	Filters filterset.Set
	Limit   int
	Offset  int
}

// Response carries the matching rows and the effective pagination.
type Response struct {
	Rows   []*domreg.Row
	Limit  int
	Offset int
}

// Search returns registry rows matching the filter set. At least one filter
// must be supplied: an unconstrained scan of the registry is rejected.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	if req.Filters.IsEmpty() {
		return Response{}, domain.ErrNoFilters
	}

	clauses, args := repo.BuildClauses(req.Filters, "")
	rows, err := s.store.FilteredSearch(ctx, clauses, args, req.Limit, req.Offset)
	if err != nil {
		return Response{}, fmt.Errorf("filtered search: %w", err)
	}

	return Response{Rows: rows, Limit: req.Limit, Offset: req.Offset}, nil
}
