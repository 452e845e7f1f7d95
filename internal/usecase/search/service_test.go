package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prodreg/reestr/internal/domain"
	"github.com/prodreg/reestr/internal/domain/filterset"
	"github.com/prodreg/reestr/internal/domain/registry"
)

type semanticCall struct {
	args   []any
	limit  int
	offset int
}

type mockStore struct {
	semanticFn    func(args []any, limit int) ([]*registry.Row, error)
	lexicalFn     func(token string, limit int) ([]*registry.Row, error)
	semanticCalls []semanticCall
	lexicalTokens []string
}

func (m *mockStore) SemanticSearch(
	_ context.Context, _ []float32, _ []string, args []any, limit, offset int,
) ([]*registry.Row, error) {
	m.semanticCalls = append(m.semanticCalls, semanticCall{args: args, limit: limit, offset: offset})
	return m.semanticFn(args, limit)
}

func (m *mockStore) LexicalFallback(
	_ context.Context, _ []float32, _ []string, _ []any, token string, limit int,
) ([]*registry.Row, error) {
	m.lexicalTokens = append(m.lexicalTokens, token)
	if m.lexicalFn == nil {
		return nil, nil
	}
	return m.lexicalFn(token, limit)
}

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
}

func (m *mockEmbedder) Embed(_ context.Context, _ domain.EmbedRequest) (domain.EmbeddingResult, error) {
	return m.result, m.err
}

func testRow(id int64, name string, distance float64) *registry.Row {
	row := registry.NewRow()
	row.Set("id", registry.Int(id))
	row.Set("productname", registry.String(name))
	row.Set("distance", registry.Float(distance))
	return row
}

func goodEmbedder() *mockEmbedder {
	return &mockEmbedder{result: domain.EmbeddingResult{
		Normalized: "молоко сухое цельное",
		Embedding:  []float32{0.1, 0.2},
	}}
}

func TestSearch_RankingTokenMatchesBeforeDistance(t *testing.T) {
	store := &mockStore{
		semanticFn: func(_ []any, _ int) ([]*registry.Row, error) {
			return []*registry.Row{
				testRow(1, "Молоко питьевое", 0.1),
				testRow(2, "Молоко сухое цельное 25кг", 0.5),
			}, nil
		},
	}
	svc := New(store, goodEmbedder())

	resp, err := svc.Search(context.Background(), Request{
		Text:  "молоко сухое цельное",
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(resp.Rows))
	}
	if resp.Rows[0].ID() != 2 {
		t.Errorf("row with more token matches must rank first despite larger distance, got id=%d", resp.Rows[0].ID())
	}
	if resp.Rows[1].ID() != 1 {
		t.Errorf("unexpected second row id=%d", resp.Rows[1].ID())
	}

	tm, _ := resp.Rows[0].Get("token_matches")
	if tm.AsInt() != 3 {
		t.Errorf("token_matches = %d, want 3", tm.AsInt())
	}
	pm, _ := resp.Rows[0].Get("primary_match")
	if pm.AsInt() != 1 {
		t.Error("expected primary_match = 1")
	}

	if resp.Diagnostics.FilteredCount == nil || *resp.Diagnostics.FilteredCount != 2 {
		t.Errorf("unexpected filtered_count: %v", resp.Diagnostics.FilteredCount)
	}
	if resp.Diagnostics.PrimaryToken != "молоко" {
		t.Errorf("primary_token = %q", resp.Diagnostics.PrimaryToken)
	}
	if resp.Diagnostics.AttemptFallbackUsed {
		t.Error("original attempt won, attempt_fallback_used must be false")
	}
}

func TestSearch_AttemptLadderPrefixWins(t *testing.T) {
	store := &mockStore{
		semanticFn: func(args []any, _ int) ([]*registry.Row, error) {
			for _, a := range args {
				if s, ok := a.(string); ok && s == "%847130%" {
					return []*registry.Row{testRow(7, "Молоко сухое", 0.3)}, nil
				}
			}
			return nil, nil
		},
	}
	svc := New(store, goodEmbedder()).WithFetchCap(20)

	resp, err := svc.Search(context.Background(), Request{
		Text:    "молоко сухое",
		Filters: filterset.New("", "8471300000", "", "", "", "", ""),
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	diag := resp.Diagnostics
	if !diag.AttemptFallbackUsed {
		t.Error("expected attempt_fallback_used")
	}
	if diag.LexicalFallbackUsed {
		t.Error("lexical fallback must be separate from attempt fallback")
	}
	if got := diag.ActiveFilters["tnved"]; got != "847130" {
		t.Errorf("active tnved filter = %q, want winning prefix", got)
	}

	if len(diag.FallbackAttempts) != 3 {
		t.Fatalf("expected 3 attempt records, got %d", len(diag.FallbackAttempts))
	}
	wantLabels := []string{"original", "tnved_prefix_8", "tnved_prefix_6"}
	for i, rec := range diag.FallbackAttempts {
		if rec.Label != wantLabels[i] {
			t.Errorf("attempt[%d].label = %q, want %q", i, rec.Label, wantLabels[i])
		}
	}
	if diag.FallbackAttempts[2].Rows != 1 {
		t.Errorf("winning attempt rows = %d", diag.FallbackAttempts[2].Rows)
	}
}

func TestSearch_FetchDoublingUpToCap(t *testing.T) {
	store := &mockStore{
		semanticFn: func(_ []any, limit int) ([]*registry.Row, error) {
			if limit < 16 {
				return nil, nil
			}
			return []*registry.Row{testRow(1, "Молоко", 0.2)}, nil
		},
	}
	svc := New(store, goodEmbedder()).WithFetchCap(16)

	resp, err := svc.Search(context.Background(), Request{Text: "молоко", Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// fetch = max(2*2, 0+2) = 4, doubled to 8 and 16 within one attempt
	wantLimits := []int{4, 8, 16}
	if len(store.semanticCalls) != len(wantLimits) {
		t.Fatalf("expected %d store calls, got %d", len(wantLimits), len(store.semanticCalls))
	}
	for i, call := range store.semanticCalls {
		if call.limit != wantLimits[i] {
			t.Errorf("call %d limit = %d, want %d", i, call.limit, wantLimits[i])
		}
	}

	if len(resp.Diagnostics.FallbackAttempts) != 1 {
		t.Fatalf("doubling must stay inside a single attempt record")
	}
	if got := resp.Diagnostics.FallbackAttempts[0].LimitUsed; got != 16 {
		t.Errorf("limit_used = %d, want 16", got)
	}
}

func TestSearch_LexicalFallbackWidensThinPool(t *testing.T) {
	store := &mockStore{
		semanticFn: func(_ []any, _ int) ([]*registry.Row, error) {
			return []*registry.Row{testRow(1, "Сыворотка", 0.1)}, nil
		},
		lexicalFn: func(token string, _ int) ([]*registry.Row, error) {
			if token == "молоко" {
				return []*registry.Row{
					testRow(1, "Сыворотка", 0.1), // duplicate, must be dropped
					testRow(2, "Молоко питьевое", 0.4),
				}, nil
			}
			return nil, nil
		},
	}
	svc := New(store, goodEmbedder())

	resp, err := svc.Search(context.Background(), Request{Text: "молоко", Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !resp.Diagnostics.LexicalFallbackUsed {
		t.Error("expected lexical_fallback_used")
	}
	if len(store.lexicalTokens) == 0 || store.lexicalTokens[0] != "молоко" {
		t.Fatalf("unexpected fallback tokens: %v", store.lexicalTokens)
	}

	if len(resp.Rows) != 2 {
		t.Fatalf("expected 2 rows after merge, got %d", len(resp.Rows))
	}
	if resp.Rows[0].ID() != 2 {
		t.Errorf("matching row must rank first, got id=%d", resp.Rows[0].ID())
	}
}

func TestSearch_LexicalFallbackTokenErrorSkipped(t *testing.T) {
	store := &mockStore{
		semanticFn: func(_ []any, _ int) ([]*registry.Row, error) { return nil, nil },
		lexicalFn: func(token string, _ int) ([]*registry.Row, error) {
			if token == "молоко" {
				return nil, errors.New("query canceled")
			}
			return []*registry.Row{testRow(3, "Сухое молоко", 0.6)}, nil
		},
	}
	svc := New(store, goodEmbedder()).WithFetchCap(20)

	resp, err := svc.Search(context.Background(), Request{Text: "молоко сухое", Limit: 10})
	if err != nil {
		t.Fatalf("one failed token query must not fail the search: %v", err)
	}
	if len(resp.Rows) != 1 || resp.Rows[0].ID() != 3 {
		t.Fatalf("expected row from the second token, got %v rows", len(resp.Rows))
	}
	if !resp.Diagnostics.LexicalFallbackUsed {
		t.Error("expected lexical_fallback_used")
	}
}

func TestSearch_TruncatesToLimit(t *testing.T) {
	store := &mockStore{
		semanticFn: func(_ []any, _ int) ([]*registry.Row, error) {
			rows := make([]*registry.Row, 0, 5)
			names := []string{"Молоко 1", "Молоко 2", "Молоко 3", "Молоко 4", "Молоко 5"}
			for i, name := range names {
				rows = append(rows, testRow(int64(i+1), name, float64(i)*0.1))
			}
			return rows, nil
		},
	}
	svc := New(store, goodEmbedder())

	resp, err := svc.Search(context.Background(), Request{Text: "молоко", Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(resp.Rows))
	}
	if resp.Rows[0].ID() != 1 || resp.Rows[1].ID() != 2 {
		t.Errorf("expected closest rows kept, got %d, %d", resp.Rows[0].ID(), resp.Rows[1].ID())
	}
}

func TestSearch_EmbedErrorPropagates(t *testing.T) {
	store := &mockStore{semanticFn: func(_ []any, _ int) ([]*registry.Row, error) { return nil, nil }}
	svc := New(store, &mockEmbedder{err: domain.ErrEmbeddingTimeout})

	_, err := svc.Search(context.Background(), Request{Text: "молоко", Limit: 10})
	if !errors.Is(err, domain.ErrEmbeddingTimeout) {
		t.Fatalf("expected ErrEmbeddingTimeout, got %v", err)
	}
	if len(store.semanticCalls) != 0 {
		t.Error("store must not be queried when embedding fails")
	}
}

func TestSearch_StoreErrorAborts(t *testing.T) {
	store := &mockStore{
		semanticFn: func(_ []any, _ int) ([]*registry.Row, error) {
			return nil, domain.ErrStoreUnavailable
		},
	}
	svc := New(store, goodEmbedder())

	_, err := svc.Search(context.Background(), Request{Text: "молоко", Limit: 10})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestSearch_SynonymScoring(t *testing.T) {
	embedder := &mockEmbedder{result: domain.EmbeddingResult{
		Normalized: "молоко",
		Embedding:  []float32{0.1},
		Synonyms:   []domain.SynonymPair{{Source: "молоко", Variant: "сливки", Type: "synonym"}},
		Expansions: []string{"сливки"},
	}}
	store := &mockStore{
		semanticFn: func(_ []any, _ int) ([]*registry.Row, error) {
			return []*registry.Row{testRow(1, "Сливки питьевые", 0.2)}, nil
		},
	}
	svc := New(store, embedder)

	resp, err := svc.Search(context.Background(), Request{Text: "молоко", Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := resp.Rows[0]
	syn, _ := row.Get("token_matches_synonyms")
	if syn.AsInt() != 1 {
		t.Errorf("token_matches_synonyms = %d, want 1", syn.AsInt())
	}
	pm, _ := row.Get("primary_match")
	if pm.AsInt() != 1 {
		t.Error("synonym of the primary token must count as a primary match")
	}
	if got := resp.Diagnostics.Synonyms; len(got) != 1 || got[0] != "сливки" {
		t.Errorf("unexpected diagnostics synonyms: %v", got)
	}
}

func TestSearch_DiagnosticsActiveFilters(t *testing.T) {
	store := &mockStore{
		semanticFn: func(_ []any, _ int) ([]*registry.Row, error) {
			return []*registry.Row{testRow(1, "Молоко", 0.1)}, nil
		},
	}
	svc := New(store, goodEmbedder())

	resp, err := svc.Search(context.Background(), Request{
		Text:    "молоко",
		Filters: filterset.New("7701234567", "", "10.51", `123/45/2024`, "", "", ""),
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	af := resp.Diagnostics.ActiveFilters
	if af["inn"] != "7701234567" {
		t.Errorf("active inn = %q", af["inn"])
	}
	if af["okpd2"] != "10.51" {
		t.Errorf("active okpd2 = %q", af["okpd2"])
	}
	if !strings.Contains(af["regnumber"], `\`) {
		t.Errorf("active regnumber must be normalized, got %q", af["regnumber"])
	}
	if resp.Diagnostics.Mode != "raw" {
		t.Errorf("mode = %q", resp.Diagnostics.Mode)
	}
}
