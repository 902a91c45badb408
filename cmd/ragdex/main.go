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

	"github.com/kailas-cloud/ragdex/internal/chunker"
	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/db"
	dbRedis "github.com/kailas-cloud/ragdex/internal/db/redis"
	"github.com/kailas-cloud/ragdex/internal/domain"
	indexRedis "github.com/kailas-cloud/ragdex/internal/index/redis"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	budgetrepo "github.com/kailas-cloud/ragdex/internal/repository/budget"
	"github.com/kailas-cloud/ragdex/internal/repository/catalog"
	"github.com/kailas-cloud/ragdex/internal/repository/embcache"
	sessionrepo "github.com/kailas-cloud/ragdex/internal/repository/session"
	"github.com/kailas-cloud/ragdex/internal/transport/httpapi"
	openaiTransport "github.com/kailas-cloud/ragdex/internal/transport/openai"
	answeruc "github.com/kailas-cloud/ragdex/internal/usecase/answer"
	askuc "github.com/kailas-cloud/ragdex/internal/usecase/ask"
	citeuc "github.com/kailas-cloud/ragdex/internal/usecase/cite"
	conversationuc "github.com/kailas-cloud/ragdex/internal/usecase/conversation"
	documentuc "github.com/kailas-cloud/ragdex/internal/usecase/document"
	embeddinguc "github.com/kailas-cloud/ragdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	retrieveuc "github.com/kailas-cloud/ragdex/internal/usecase/retrieve"
	usageuc "github.com/kailas-cloud/ragdex/internal/usecase/usage"
	"github.com/kailas-cloud/ragdex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragdex API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Create database store. Valkey speaks the same protocol; rueidis
	// serves both drivers.
	var store db.Store
	switch cfg.Database.Driver {
	case "valkey", "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()
	metrics.RegisterPipelineMetrics()

	// Token budget tracker, shared by both embedder chains. Counters are
	// persisted so a restart does not reset the budget mid-period.
	var budgetTracker *embeddinguc.BudgetTracker
	if cfg.Embedding.DailyTokenBudget > 0 || cfg.Embedding.MonthlyTokenBudget > 0 {
		budgetTracker = embeddinguc.NewBudgetTracker(
			"openai",
			cfg.Embedding.DailyTokenBudget,
			cfg.Embedding.MonthlyTokenBudget,
			embeddinguc.BudgetAction(cfg.Embedding.BudgetAction),
			logger,
		).WithStore(ctx, budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour))
		logger.Info("Embedding token budget enabled",
			zap.Int64("daily_limit", cfg.Embedding.DailyTokenBudget),
			zap.Int64("monthly_limit", cfg.Embedding.MonthlyTokenBudget),
			zap.String("action", cfg.Embedding.BudgetAction),
		)
	}

	// Build the embedder chains for documents and queries.
	docEmbedder := buildEmbedder(cfg.Embedding, cfg.Embedding.DocumentInstruction, store, budgetTracker, logger)
	queryEmbedder := buildEmbedder(cfg.Embedding, cfg.Embedding.QueryInstruction, store, budgetTracker, logger)
	logger.Info("Embedders created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Provider:    "openai",
		Logger:      logger,
	})

	// Embedding index: staged writes become visible on commit.
	embIndex := indexRedis.New(store, cfg.Embedding.Dimensions).WithHNSW(indexRedis.HNSWConfig{
		M:           cfg.Index.HNSWM,
		EFConstruct: cfg.Index.HNSWEFConstruct,
	})
	if err := embIndex.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure chunk index", zap.Error(err))
	}

	// Repositories
	catalogRepo := catalog.New(store)
	sessions := sessionrepo.New(store, time.Duration(cfg.Session.TTLSec)*time.Second)

	// Chunker
	splitter, err := chunker.New(cfg.Chunking.MaxSize, cfg.Chunking.OverlapFrac)
	if err != nil {
		logger.Fatal("Invalid chunking config", zap.Error(err))
	}

	// Use case services
	ingestSvc := ingestuc.New(catalogRepo, embIndex, splitter, docEmbedder)
	retrieveSvc := retrieveuc.New(embIndex, queryEmbedder, retrieveuc.Options{
		MaxPerDocument: cfg.Retrieval.MaxPerDocument,
		VersionBoost:   cfg.Retrieval.VersionBoost,
	})
	memorySvc := conversationuc.New(sessions, conversationuc.Options{
		Window:        cfg.Session.Window,
		HistoryBudget: cfg.Session.HistoryBudget,
		KeepRecent:    cfg.Session.KeepRecent,
		IdleTimeout:   time.Duration(cfg.Session.IdleTimeoutSec) * time.Second,
	})
	answerSvc := answeruc.New(generator, answeruc.Options{
		PromptBudget: cfg.Generation.PromptBudget,
		Retry: answeruc.RetryPolicy{
			MaxAttempts: cfg.Generation.MaxAttempts,
			BaseBackoff: time.Duration(cfg.Generation.BackoffMillis) * time.Millisecond,
		},
	})
	citeSvc := citeuc.New(catalogRepo)
	askSvc := askuc.New(memorySvc, retrieveSvc, answerSvc, citeSvc)
	documentSvc := documentuc.New(catalogRepo, embIndex)
	healthSvc := healthuc.New(store, newHealthChecker(docEmbedder), generator)

	var budgetReader usageuc.BudgetReader
	if budgetTracker != nil {
		budgetReader = budgetTracker
	}
	usageSvc := usageuc.New(budgetReader)

	// HTTP server
	server := httpapi.NewServer(ingestSvc, documentSvc, retrieveSvc, askSvc, usageSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(httpapi.BearerAuthMiddleware(cfg.Auth.APIKeys))
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

// healthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type healthChecker struct {
	embedder domain.Embedder
}

func newHealthChecker(embedder domain.Embedder) *healthChecker {
	return &healthChecker{embedder: embedder}
}

func (h *healthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// embedder is the full capability of the assembled chain: single and batch.
type embedder interface {
	domain.Embedder
	domain.BatchEmbedder
}

// buildEmbedder assembles the decorator chain: OpenAI -> Budget -> Cached -> Instruction
func buildEmbedder(
	cfg config.EmbeddingConfig,
	instruction string,
	store db.Store,
	budget *embeddinguc.BudgetTracker,
	logger *zap.Logger,
) embedder {
	// Base provider (with transport metrics built-in)
	base := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})

	// Budget enforcement sits under the cache so hits don't count against it.
	var chain embedder = base
	if budget != nil {
		chain = embeddinguc.NewInstrumentedEmbedder(base, "openai", cfg.Model, budget, logger)
	}

	// Cached
	if store != nil {
		chain = embcache.New(chain, store, metrics.EmbeddingCacheTotal, logger)
	}

	// Instruction prefix goes outermost so the cache key includes it.
	if instruction != "" {
		return domain.NewInstructionEmbedder(chain, instruction)
	}

	return chain
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

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// One canonical log line per request.
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
