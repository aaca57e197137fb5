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
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leafwise/tomatodoc/internal/config"
	dbRedis "github.com/leafwise/tomatodoc/internal/db/redis"
	"github.com/leafwise/tomatodoc/internal/domain"
	"github.com/leafwise/tomatodoc/internal/index"
	logpkg "github.com/leafwise/tomatodoc/internal/logger"
	"github.com/leafwise/tomatodoc/internal/metrics"
	"github.com/leafwise/tomatodoc/internal/repository/embcache"
	chiTransport "github.com/leafwise/tomatodoc/internal/transport/chi"
	"github.com/leafwise/tomatodoc/internal/transport/classifier"
	openaiTransport "github.com/leafwise/tomatodoc/internal/transport/openai"
	chatuc "github.com/leafwise/tomatodoc/internal/usecase/chat"
	healthuc "github.com/leafwise/tomatodoc/internal/usecase/health"
	retrievaluc "github.com/leafwise/tomatodoc/internal/usecase/retrieval"
	"github.com/leafwise/tomatodoc/internal/version"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting tomatodoc API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_path", cfg.Index.Path),
	)

	// Register metrics explicitly (no init())
	metrics.Register()

	embedder := buildEmbedder(cfg, logger)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      logger,
	})

	// A missing or unreadable index degrades chat to 503 instead of
	// refusing to start; detect and health stay available.
	var retriever *retrievaluc.Service
	ix, err := index.Load(cfg.Index.Path, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	if err != nil {
		logger.Warn("Vector index unavailable, serving degraded",
			zap.String("path", cfg.Index.Path),
			zap.Error(err))
		retriever = retrievaluc.NewUnavailable(err)
	} else {
		logger.Info("Vector index loaded",
			zap.Int("chunks", ix.Size()),
			zap.Int("dimensions", ix.Dimensions()))
		retriever = retrievaluc.New(embedder, ix)
	}
	retriever = retriever.WithKRange(cfg.Index.DefaultTopK, cfg.Index.MinTopK, cfg.Index.MaxTopK)

	chatSvc := chatuc.New(chatuc.Params{
		Sessions:          chatuc.NewRegistry(),
		Retriever:         retriever,
		Generator:         generator,
		GenerationTimeout: time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		Strict:            cfg.Strict(),
	})

	var clsClient *classifier.Client
	var clsChecker healthuc.Checker
	if cfg.Classifier.URL != "" {
		clsClient = classifier.New(&classifier.Config{
			URL:           cfg.Classifier.URL,
			Timeout:       time.Duration(cfg.Classifier.TimeoutSec) * time.Second,
			MinConfidence: cfg.Classifier.ConfidenceThreshold * 100,
			Logger:        logger,
		})
		clsChecker = clsClient
	}

	healthSvc := healthuc.New(retriever,
		newEmbedderHealthChecker(embedder), generator, clsChecker)

	server := chiTransport.NewServer(chatSvc, healthSvc, clsClient, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// buildEmbedder assembles the embedder chain: OpenAI-compatible base,
// optionally wrapped in the Redis-backed cache.
func buildEmbedder(cfg config.Config, logger *zap.Logger) domain.Embedder {
	base := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})

	if len(cfg.Cache.Addrs) == 0 {
		return base
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Cache.Addrs,
		Password: cfg.Cache.Password,
	})
	if err != nil {
		logger.Warn("Embedding cache disabled, store creation failed", zap.Error(err))
		return base
	}

	readiness := time.Duration(cfg.Cache.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(context.Background(), readiness); err != nil {
		logger.Warn("Embedding cache disabled, store not ready", zap.Error(err))
		store.Close()
		return base
	}

	logger.Info("Embedding cache enabled",
		zap.Strings("addrs", cfg.Cache.Addrs),
		zap.Int("ttl_hours", cfg.Cache.TTLHours))
	ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
	return embcache.New(base, store, ttl, metrics.EmbeddingCacheTotal, logger)
}

// embedderHealthChecker probes the embedder when it supports health
// checks.
type embedderHealthChecker struct {
	embedder domain.Embedder
}

func newEmbedderHealthChecker(embedder domain.Embedder) *embedderHealthChecker {
	return &embedderHealthChecker{embedder: embedder}
}

func (h *embedderHealthChecker) HealthCheck(ctx context.Context) error {
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

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
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
