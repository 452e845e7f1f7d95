// Package chi wires the registry search services into an HTTP API.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/prodreg/reestr/internal/domain"
	"github.com/prodreg/reestr/internal/domain/filterset"
	domreg "github.com/prodreg/reestr/internal/domain/registry"
	"github.com/prodreg/reestr/internal/presenter"
	healthuc "github.com/prodreg/reestr/internal/usecase/health"
	registryuc "github.com/prodreg/reestr/internal/usecase/registry"
	searchuc "github.com/prodreg/reestr/internal/usecase/search"
)

// Limits holds the pagination bounds for the plain endpoint.
type Limits struct {
	MinLimit      int
	DefaultLimit  int
	MaxLimit      int
	DefaultOffset int
}

// Semantic endpoint bounds are fixed by the API contract.
const (
	semanticMinLimit     = 1
	semanticDefaultLimit = 10
	semanticMaxLimit     = 100
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server exposes the registry search API.
type Server struct {
	registry      *registryuc.Service
	search        *searchuc.Service
	health        *healthuc.Service
	limits        Limits
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	registry *registryuc.Service,
	search *searchuc.Service,
	health *healthuc.Service,
	limits Limits,
	logger *zap.Logger,
) *Server {
	s := &Server{
		registry: registry,
		search:   search,
		health:   health,
		limits:   limits,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		unknownParamsHandler,
		sentinelHandler(domain.ErrNoFilters, http.StatusBadRequest, "no_filters"),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, "invalid_query"),
		sentinelHandler(domain.ErrEmbeddingTimeout, http.StatusGatewayTimeout, "embedding_timeout"),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, "embedding_unavailable"),
		sentinelHandler(domain.ErrMalformedEmbedding, http.StatusInternalServerError, "embedding_malformed"),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusInternalServerError, "store_unavailable"),
	}
	return s
}

// Routes registers the API endpoints on a router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/reestr", s.FilteredSearch)
	r.Get("/reestr/semantic", s.SemanticSearch)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// filterParams is the filter vocabulary shared by both search endpoints.
var filterParams = []string{"inn", "tnved", "okpd2", "regnumber", "nameoforg", "code"}

var (
	plainAllowed    = append([]string{"productname", "limit", "offset"}, filterParams...)
	semanticAllowed = append([]string{"text", "limit", "offset", "debug"}, filterParams...)
)

// FilteredSearch handles GET /reestr.
func (s *Server) FilteredSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := checkAllowedParams(q, plainAllowed); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	limit, err := parseBoundedInt(q.Get("limit"),
		s.limits.MinLimit, s.limits.MaxLimit, s.limits.DefaultLimit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	offset, err := parseOffset(q.Get("offset"), s.limits.DefaultOffset)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp, err := s.registry.Search(r.Context(), registryuc.Request{
		Filters: filtersFromQuery(q, q.Get("productname")),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	cols := presenter.Present(resp.Rows)
	writeJSON(w, http.StatusOK, searchResponse{
		Rows:    rowsOrEmpty(resp.Rows),
		Columns: cols,
		Limit:   resp.Limit,
		Offset:  resp.Offset,
		Count:   len(resp.Rows),
	})
}

// SemanticSearch handles GET /reestr/semantic.
func (s *Server) SemanticSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := checkAllowedParams(q, semanticAllowed); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	text := strings.TrimSpace(q.Get("text"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "invalid_query", "text parameter is required")
		return
	}

	limit, err := parseBoundedInt(q.Get("limit"),
		semanticMinLimit, semanticMaxLimit, semanticDefaultLimit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	offset, err := parseOffset(q.Get("offset"), 0)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp, err := s.search.Search(r.Context(), searchuc.Request{
		Text:    text,
		Filters: filtersFromQuery(q, ""),
		Limit:   limit,
		Offset:  offset,
		Debug:   q.Get("debug") == "true" || q.Get("debug") == "1",
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	cols := presenter.Present(resp.Rows)
	writeJSON(w, http.StatusOK, semanticResponse{
		Rows:     rowsOrEmpty(resp.Rows),
		Columns:  cols,
		Limit:    resp.Limit,
		Offset:   resp.Offset,
		Count:    len(resp.Rows),
		Semantic: resp.Diagnostics,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

type searchResponse struct {
	Rows    []*domreg.Row      `json:"rows"`
	Columns []presenter.Column `json:"columns"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
	Count   int                `json:"count"`
}

type semanticResponse struct {
	Rows     []*domreg.Row        `json:"rows"`
	Columns  []presenter.Column   `json:"columns"`
	Limit    int                  `json:"limit"`
	Offset   int                  `json:"offset"`
	Count    int                  `json:"count"`
	Semantic searchuc.Diagnostics `json:"semantic"`
}

func filtersFromQuery(q map[string][]string, productName string) filterset.Set {
	get := func(name string) string {
		if vs := q[name]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}
	return filterset.New(
		get("inn"),
		get("tnved"),
		get("okpd2"),
		get("regnumber"),
		get("nameoforg"),
		productName,
		get("code"),
	)
}

// checkAllowedParams rejects any query parameter outside the allow-list.
func checkAllowedParams(q map[string][]string, allowed []string) error {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = struct{}{}
	}

	var unknown []string
	for name := range q {
		if _, ok := allowedSet[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return domain.NewUnknownParams(unknown, allowed)
	}
	return nil
}

func parseBoundedInt(raw string, lo, hi, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, domain.ErrInvalidQuery
	}
	return v, nil
}

func parseOffset(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, domain.ErrInvalidQuery
	}
	return v, nil
}

func rowsOrEmpty(rows []*domreg.Row) []*domreg.Row {
	if rows == nil {
		return []*domreg.Row{}
	}
	return rows
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNoFilters,
		domain.ErrInvalidQuery,
		domain.ErrEmbeddingTimeout,
		domain.ErrEmbeddingUnavailable,
		domain.ErrMalformedEmbedding,
		domain.ErrStoreUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err))
		return true
	}
}

// unknownParamsHandler handles UnknownParamsError with both name lists in the
// response body.
func unknownParamsHandler(w http.ResponseWriter, err error) bool {
	var upe *domain.UnknownParamsError
	if !errors.As(err, &upe) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"code":           "unknown_params",
		"message":        upe.Error(),
		"unknown_params": upe.Unknown,
		"allowed_params": upe.Allowed,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("domain error", zap.String("path", r.URL.Path), zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
