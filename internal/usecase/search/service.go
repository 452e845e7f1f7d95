// Package search implements the semantic search pipeline: attempt ladder
// execution, vector + lexical ranking, and the lexical fallback loop.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/prodreg/reestr/internal/domain"
	"github.com/prodreg/reestr/internal/domain/attempt"
	"github.com/prodreg/reestr/internal/domain/lexical"
	"github.com/prodreg/reestr/internal/domain/registry"
	"github.com/prodreg/reestr/internal/logger"
	"github.com/prodreg/reestr/internal/metrics"
	repo "github.com/prodreg/reestr/internal/repository/registry"
)

const defaultFetchCap = 800

// Service executes semantic registry searches.
type Service struct {
	store    RowStore
	embed    Embedder
	fetchCap int
}

// New creates a search service.
func New(store RowStore, embed Embedder) *Service {
	return &Service{store: store, embed: embed, fetchCap: defaultFetchCap}
}

// WithFetchCap overrides the fetch-size doubling cap.
func (s *Service) WithFetchCap(n int) *Service {
	if n > 0 {
		s.fetchCap = n
	}
	return s
}

// Response is the ranked, deduplicated, size-bounded result set plus its
// diagnostics.
type Response struct {
	Rows        []*registry.Row
	Limit       int
	Offset      int
	Diagnostics Diagnostics
}

// Search runs the full pipeline for one query. Attempts execute
// sequentially, most specific first; the first one yielding rows wins and
// its rows are scored by token overlap before final ordering.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	log := logger.FromContext(ctx)

	emb, err := s.embed.Embed(ctx, domain.EmbedRequest{
		Text:          req.Text,
		Normalize:     false,
		ApplySynonyms: true,
		Debug:         req.Debug,
	})
	if err != nil {
		return Response{}, fmt.Errorf("embed query: %w", err)
	}

	attempts := attempt.Plan(req.Filters.TNVED, req.Filters.Code)
	fetchLimit := maxInt(2*req.Limit, req.Offset+req.Limit)

	outcome, history, err := s.runAttempts(ctx, log, emb.Embedding, req, attempts, fetchLimit)
	if err != nil {
		return Response{}, err
	}

	winner := attempts[outcome.winner]
	attemptFallback := outcome.state == stateSuccess && outcome.winner > 0
	if attemptFallback {
		metrics.SearchFallbackTotal.WithLabelValues("attempt").Inc()
	}

	tokens := lexical.Tokenize(req.Text)
	vocab := lexical.ExpandSynonyms(tokens, emb.Synonyms, emb.Expansions)

	pool := newRowPool(tokens, vocab)
	for _, row := range outcome.rows {
		pool.add(row)
	}

	candidates, filteredCount := pool.candidates()

	lexicalFallback := false
	if len(tokens.All) > 0 && len(candidates) < req.Limit {
		candidates, lexicalFallback = s.lexicalFallback(
			ctx, log, emb.Embedding, outcome, tokens, pool, candidates, fetchLimit, req.Limit,
		)
	}
	if lexicalFallback {
		metrics.SearchFallbackTotal.WithLabelValues("lexical").Inc()
	}

	sortCandidates(candidates)
	if len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}

	diag := Diagnostics{
		OriginalQuery:          req.Text,
		NormalizedQuery:        emb.Normalized,
		Synonyms:               emptyIfNil(emb.Expansions),
		SynonymPairs:           emptyPairsIfNil(emb.Synonyms),
		Mode:                   "raw",
		Tokens:                 emptyIfNil(tokens.All),
		FilteredCount:          filteredCount,
		PrimaryToken:           tokens.Primary,
		FallbackAttempts:       history,
		AttemptFallbackUsed:    attemptFallback,
		LexicalFallbackUsed:    lexicalFallback,
		ActiveFilters:          activeFilters(req, winner),
		FallbackRemovedFilters: winner.RemovedFilters,
	}

	return Response{
		Rows:        candidates,
		Limit:       req.Limit,
		Offset:      req.Offset,
		Diagnostics: diag,
	}, nil
}

// attemptState is the explicit outcome of the attempt ladder: no implicit
// loop-fallthrough decides whether anything succeeded.
type attemptState int

const (
	stateSuccess attemptState = iota
	stateExhaustedEmpty
)

// attemptOutcome carries the winning (or last) attempt's rows and clause set.
// The clause set is retained even when empty-handed so the lexical fallback
// can reuse it.
type attemptOutcome struct {
	state   attemptState
	winner  int
	rows    []*registry.Row
	clauses []string
	args    []any
}

func (s *Service) runAttempts(
	ctx context.Context,
	log *zap.Logger,
	vec []float32,
	req Request,
	attempts []attempt.Attempt,
	fetchLimit int,
) (attemptOutcome, []AttemptRecord, error) {
	outcome := attemptOutcome{state: stateExhaustedEmpty}
	history := make([]AttemptRecord, 0, len(attempts))

	for idx, a := range attempts {
		filters := req.Filters.WithTNVED(a.TNVED).WithCode(a.Code)
		clauses, args := repo.BuildClauses(filters, "r.")

		outcome.winner = idx
		outcome.clauses = clauses
		outcome.args = args

		rows, limitUsed, elapsed, err := s.fetchWithDoubling(ctx, vec, clauses, args, fetchLimit, req.Offset)
		if err != nil {
			return attemptOutcome{}, nil, fmt.Errorf("attempt %s: %w", a.Label, err)
		}

		log.Info("semantic attempt",
			zap.String("label", a.Label),
			zap.Int("limit", limitUsed),
			zap.Int("rows", len(rows)),
			zap.Duration("elapsed", elapsed),
		)

		record := AttemptRecord{
			Index:          idx,
			Label:          a.Label,
			TNVED:          a.TNVED,
			Code:           a.Code,
			Rows:           len(rows),
			LimitUsed:      limitUsed,
			Elapsed:        roundSeconds(elapsed),
			RemovedFilters: a.RemovedFilters,
		}
		history = append(history, record)

		if len(rows) > 0 {
			metrics.SearchAttemptsTotal.WithLabelValues(a.Label, "hit").Inc()
			outcome.state = stateSuccess
			outcome.rows = rows
			return outcome, history, nil
		}
		metrics.SearchAttemptsTotal.WithLabelValues(a.Label, "empty").Inc()
	}

	return outcome, history, nil
}

// fetchWithDoubling retries an empty result with doubled fetch size up to the
// cap. This is a retry on empty, not on error: store failures abort.
func (s *Service) fetchWithDoubling(
	ctx context.Context, vec []float32, clauses []string, args []any, fetchLimit, offset int,
) ([]*registry.Row, int, time.Duration, error) {
	current := fetchLimit
	for {
		start := time.Now()
		rows, err := s.store.SemanticSearch(ctx, vec, clauses, args, current, offset)
		elapsed := time.Since(start)
		if err != nil {
			return nil, current, elapsed, err //nolint:wrapcheck
		}
		if len(rows) > 0 || current >= s.fetchCap {
			return rows, current, elapsed, nil
		}
		current = minInt(current*2, s.fetchCap)
	}
}

// lexicalFallback widens a thin candidate pool with per-token product-name
// queries reusing the winning attempt's clauses. A failed token query is
// skipped, not fatal; merge order follows token order so truncation stays
// deterministic.
func (s *Service) lexicalFallback(
	ctx context.Context,
	log *zap.Logger,
	vec []float32,
	outcome attemptOutcome,
	tokens lexical.Tokens,
	pool *rowPool,
	candidates []*registry.Row,
	fetchLimit, limit int,
) ([]*registry.Row, bool) {
	target := maxInt(fetchLimit, 2*limit)
	used := false

	for _, tok := range tokens.Alphabetic() {
		rows, err := s.store.LexicalFallback(ctx, vec, outcome.clauses, outcome.args, tok, target)
		if err != nil {
			log.Warn("lexical fallback query failed", zap.String("token", tok), zap.Error(err))
			continue
		}
		if len(rows) == 0 {
			continue
		}
		used = true
		for _, row := range rows {
			if pool.contains(row) {
				continue
			}
			pool.add(row)
			candidates = append(candidates, row)
		}
		if len(candidates) >= target {
			break
		}
	}
	return candidates, used
}

// rowPool deduplicates rows by id and decorates them with lexical scores.
type rowPool struct {
	tokens  lexical.Tokens
	vocab   lexical.Vocabulary
	seen    map[int64]struct{}
	ordered []*registry.Row
}

func newRowPool(tokens lexical.Tokens, vocab lexical.Vocabulary) *rowPool {
	return &rowPool{tokens: tokens, vocab: vocab, seen: make(map[int64]struct{})}
}

func (p *rowPool) contains(row *registry.Row) bool {
	_, ok := p.seen[row.ID()]
	return ok
}

// add scores the row's product name and stores the counts as row columns, so
// they ride along into the serialized response.
func (p *rowPool) add(row *registry.Row) {
	if p.contains(row) {
		return
	}
	p.seen[row.ID()] = struct{}{}

	score := lexical.ScoreName(row.ProductName(), p.tokens, p.vocab)
	row.Set("token_matches", registry.Int(int64(score.Total())))
	row.Set("token_matches_original", registry.Int(int64(score.Original)))
	row.Set("token_matches_synonyms", registry.Int(int64(score.Synonyms)))
	row.Set("primary_match", registry.Int(boolToInt(score.Primary)))

	p.ordered = append(p.ordered, row)
}

// candidates returns rows with a positive lexical signal, or every row when
// none has one. filteredCount is non-nil only in the first case.
func (p *rowPool) candidates() ([]*registry.Row, *int) {
	var filtered []*registry.Row
	for _, row := range p.ordered {
		if tokenMatches(row) > 0 && primaryMatch(row) {
			filtered = append(filtered, row)
		}
	}
	if len(filtered) > 0 {
		n := len(filtered)
		return filtered, &n
	}
	return append([]*registry.Row(nil), p.ordered...), nil
}

// sortCandidates orders by descending token matches, then ascending vector
// distance. Rows without a distance sort last.
func sortCandidates(rows []*registry.Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		ti, tj := tokenMatches(rows[i]), tokenMatches(rows[j])
		if ti != tj {
			return ti > tj
		}
		return rows[i].Distance() < rows[j].Distance()
	})
}

func tokenMatches(row *registry.Row) int64 {
	v, ok := row.Get("token_matches")
	if !ok {
		return 0
	}
	return v.AsInt()
}

func primaryMatch(row *registry.Row) bool {
	v, ok := row.Get("primary_match")
	return ok && v.AsInt() > 0
}

func activeFilters(req Request, winner attempt.Attempt) map[string]string {
	return map[string]string{
		"inn":       req.Filters.INN.Raw(),
		"tnved":     winner.TNVED,
		"okpd2":     req.Filters.OKPD2.Raw(),
		"regnumber": req.Filters.RegNumber.Raw(),
		"code":      winner.Code,
	}
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyPairsIfNil(s []domain.SynonymPair) []domain.SynonymPair {
	if s == nil {
		return []domain.SynonymPair{}
	}
	return s
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
