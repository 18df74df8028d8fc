package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/legaldoc/engine/internal/api"
	"github.com/legaldoc/engine/internal/config"
	"github.com/legaldoc/engine/internal/core"
	"github.com/legaldoc/engine/internal/index"
	"github.com/legaldoc/engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Command line flag for rebuilding the vector index
	reindexFlag := flag.Bool("reindex", false, "Re-chunk and re-embed all stored documents, then exit")
	flag.Parse()

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	ctx := context.Background()
	backend, err := core.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.ChatModel, cfg.EmbeddingModel, int32(cfg.LLMMaxOutputTokens))
	if err != nil {
		logger.Fatal("failed to initialize LLM backend", zap.Error(err))
	}
	defer backend.Close()

	llm := core.NewLLMClient(backend, core.LLMConfig{
		RequestTimeout:    cfg.LLMRequestTimeout,
		MaxAttempts:       cfg.LLMMaxAttempts,
		BackoffBase:       cfg.LLMBackoffBase,
		RateLimitCooldown: cfg.LLMRateLimitCooldown,
		InputCharCap:      cfg.LLMInputCharCap,
		RequestsPerMinute: int(cfg.LLMRequestsPerMinute),
	}, logger)

	searchIndex := index.New(dbStore, logger)

	ingestService := core.NewIngestService(dbStore, searchIndex, llm, core.IngestConfig{
		ChunkWindow:  cfg.ChunkWindow,
		ChunkOverlap: cfg.ChunkOverlap,
		MinTextChars: cfg.MinTextChars,
	}, logger)

	if *reindexFlag {
		logger.Info("starting reindex")
		if err := ingestService.Reindex(ctx); err != nil {
			logger.Fatal("reindex failed", zap.Error(err))
		}
		logger.Info("reindex complete, exiting")
		os.Exit(0)
	}

	queryService := core.NewQueryService(llm, searchIndex, core.QueryConfig{
		TopK:              cfg.TopK,
		MinSimilarity:     float32(cfg.MinSimilarity),
		ContextCharBudget: cfg.ContextCharBudget,
	}, logger)

	analysisService := core.NewAnalysisService(dbStore, llm, core.AnalysisConfig{
		DocCharCap: cfg.LLMInputCharCap,
	}, logger)

	apiHandler := api.NewAPIHandler(ingestService, queryService, analysisService, cfg.MaxUploadBytes, cfg.LLMRateLimitCooldown, logger)
	router := api.NewRouter(apiHandler, logger)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited gracefully")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "DEBUG" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
