package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/prodreg/reestr/internal/config"
	dbRedis "github.com/prodreg/reestr/internal/db/redis"
	"github.com/prodreg/reestr/internal/domain"
	logpkg "github.com/prodreg/reestr/internal/logger"
	"github.com/prodreg/reestr/internal/metrics"
	"github.com/prodreg/reestr/internal/repository/embcache"
	registryrepo "github.com/prodreg/reestr/internal/repository/registry"
	chiTransport "github.com/prodreg/reestr/internal/transport/chi"
	openaiEmb "github.com/prodreg/reestr/internal/transport/openai"
	semanticEmb "github.com/prodreg/reestr/internal/transport/semantic"
	healthuc "github.com/prodreg/reestr/internal/usecase/health"
	registryuc "github.com/prodreg/reestr/internal/usecase/registry"
	searchuc "github.com/prodreg/reestr/internal/usecase/search"
	"github.com/prodreg/reestr/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting reestr API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	ctx := context.Background()

	// Registry store (Postgres + pgvector)
	store, err := registryrepo.Open(registryrepo.Config{
		DSN:           cfg.Postgres.DSN,
		QueryTimeout:  time.Duration(cfg.Postgres.QueryTimeoutSec) * time.Second,
		IVFFlatProbes: cfg.Postgres.IVFFlatProbes,
		ForceSeqScan:  cfg.Postgres.ForceSeqScan,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("Failed to open registry store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Postgres.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Registry store not ready", zap.Error(err))
	}
	logger.Info("Connected to registry store")

	// Embedding cache store (optional)
	var cache *dbRedis.Store
	if cfg.Cache.Enabled() {
		cache, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer cache.Close()

		if err := cache.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache store not ready", zap.Error(err))
		}
		logger.Info("Connected to embedding cache")
	}

	// Register domain metrics explicitly (no init())
	metrics.RegisterSemanticMetrics()

	embedder := buildEmbedder(cfg, cache, logger)

	// Use case services
	searchSvc := searchuc.New(store, embedder).WithFetchCap(cfg.Search.FetchCap)
	registrySvc := registryuc.New(store)

	var cachePinger healthuc.Pinger
	if cache != nil {
		cachePinger = cache
	}
	healthSvc := healthuc.New(store, cachePinger, newEmbeddingHealthChecker(embedder))

	server := chiTransport.NewServer(registrySvc, searchSvc, healthSvc, chiTransport.Limits{
		MinLimit:      cfg.Search.MinLimit,
		DefaultLimit:  cfg.Search.DefaultLimit,
		MaxLimit:      cfg.Search.MaxLimit,
		DefaultOffset: cfg.Search.DefaultOffset,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the embedder chain: provider -> cache decorator.
func buildEmbedder(cfg config.Config, cache *dbRedis.Store, logger *zap.Logger) domain.Embedder {
	var base domain.Embedder
	switch cfg.Embedding.Provider {
	case "openai":
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Logger:     logger,
		})
	default:
		base = semanticEmb.NewClient(semanticEmb.Config{
			URL:     cfg.Embedding.URL,
			Timeout: cfg.Embedding.Timeout(),
			Logger:  logger,
		})
	}

	if cache == nil {
		return base
	}
	return embcache.New(base, cache, embcache.Config{
		TTL:             cfg.Cache.TTL(),
		Model:           cfg.Embedding.Model,
		SynonymsVersion: cfg.Embedding.SynonymsVersion,
		CacheTotal:      metrics.EmbeddingCacheTotal,
		Logger:          logger,
	})
}

// embeddingHealthChecker adapts domain.Embedder to health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
