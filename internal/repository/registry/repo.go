// Package registry implements the product registry row store on Postgres.
// Rows are joined with their precomputed embeddings and ordered by pgvector
// cosine distance to the query embedding.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/prodreg/reestr/internal/domain"
	domreg "github.com/prodreg/reestr/internal/domain/registry"
	"github.com/prodreg/reestr/internal/metrics"
)

// Config holds registry store settings.
type Config struct {
	DSN           string
	QueryTimeout  time.Duration
	IVFFlatProbes int
	ForceSeqScan  bool
	Logger        *zap.Logger
}

// Store executes filtered and vector-ordered queries against the registry.
// One pool is shared across requests; sessions needing planner settings take
// a dedicated connection.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
	probes  int
	seqScan bool
	logger  *zap.Logger
}

// Open connects to Postgres and verifies connectivity.
func Open(cfg Config) (*Store, error) {
	db, err := sqlx.Connect("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to registry: %w", err)
	}
	return &Store{
		db:      db,
		timeout: cfg.QueryTimeout,
		probes:  cfg.IVFFlatProbes,
		seqScan: cfg.ForceSeqScan,
		logger:  cfg.Logger,
	}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// WaitForReady polls Ping until the store responds or the timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for registry store: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close() //nolint:wrapcheck
}

const semanticQueryTemplate = `
WITH query_vec AS (
    SELECT ?::vector AS embedding
)
SELECT
    r.*,
    s.normalized_text,
    s.synonyms,
    (s.embedding <=> query_vec.embedding) AS distance
FROM registry.semantic_items AS s
JOIN registry.reestr AS r
  ON r.id = s.reestr_id
CROSS JOIN query_vec
%s
ORDER BY distance
LIMIT ? OFFSET ?`

// SemanticSearch returns up to limit rows ordered by vector distance to vec,
// restricted by the given predicate clauses (see BuildClauses, alias "r.").
func (s *Store) SemanticSearch(
	ctx context.Context, vec []float32, clauses []string, args []any, limit, offset int,
) ([]*domreg.Row, error) {
	return s.vectorQuery(ctx, "semantic", vec, clauses, args, limit, offset)
}

// LexicalFallback runs the same vector-ordered query with an extra
// case-insensitive substring predicate on the product name.
func (s *Store) LexicalFallback(
	ctx context.Context, vec []float32, clauses []string, args []any, token string, limit int,
) ([]*domreg.Row, error) {
	combined := make([]string, 0, len(clauses)+1)
	combined = append(combined, clauses...)
	combined = append(combined, "lower(r.productname) LIKE ?")

	combinedArgs := make([]any, 0, len(args)+1)
	combinedArgs = append(combinedArgs, args...)
	combinedArgs = append(combinedArgs, "%"+strings.ToLower(token)+"%")

	return s.vectorQuery(ctx, "lexical_fallback", vec, combined, combinedArgs, limit, 0)
}

func (s *Store) vectorQuery(
	ctx context.Context, kind string, vec []float32, clauses []string, args []any, limit, offset int,
) ([]*domreg.Row, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := sqlx.Rebind(sqlx.DOLLAR, fmt.Sprintf(semanticQueryTemplate, where))

	execArgs := make([]any, 0, len(args)+3)
	execArgs = append(execArgs, vectorLiteral(vec))
	execArgs = append(execArgs, args...)
	execArgs = append(execArgs, limit, offset)

	// Planner settings are per session, so take a dedicated connection.
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire connection: %w", domain.ErrStoreUnavailable, err)
	}
	defer conn.Close()

	if s.probes > 0 {
		// Best effort: absent on instances without the ivfflat extension.
		_, _ = conn.ExecContext(ctx, fmt.Sprintf("SET ivfflat.probes = %d", s.probes))
	}
	if s.seqScan {
		_, _ = conn.ExecContext(ctx, "SET enable_indexscan = off")
		_, _ = conn.ExecContext(ctx, "SET enable_bitmapscan = off")
	}

	start := time.Now()
	rows, err := conn.QueryxContext(ctx, query, execArgs...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s query: %w", domain.ErrStoreUnavailable, kind, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	metrics.StoreQueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s scan: %w", kind, err)
	}
	return out, nil
}

const filteredQueryTemplate = `SELECT * FROM registry.reestr %s ORDER BY inn LIMIT ? OFFSET ?`

// FilteredSearch returns registry rows matching the predicate clauses (see
// BuildClauses, alias ""), ordered by inn.
func (s *Store) FilteredSearch(
	ctx context.Context, clauses []string, args []any, limit, offset int,
) ([]*domreg.Row, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := sqlx.Rebind(sqlx.DOLLAR, fmt.Sprintf(filteredQueryTemplate, where))

	execArgs := make([]any, 0, len(args)+2)
	execArgs = append(execArgs, args...)
	execArgs = append(execArgs, limit, offset)

	start := time.Now()
	rows, err := s.db.QueryxContext(ctx, query, execArgs...)
	if err != nil {
		return nil, fmt.Errorf("%w: filtered query: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	metrics.StoreQueryDuration.WithLabelValues("filtered").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("filtered scan: %w", err)
	}
	return out, nil
}

func (s *Store) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// vectorLiteral renders a pgvector input literal: "[0.1, 0.2, ...]".
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
