package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soulkindred/kindred/internal/chat"
	"github.com/soulkindred/kindred/internal/config"
	"github.com/soulkindred/kindred/internal/embedding"
	"github.com/soulkindred/kindred/internal/generation"
	"github.com/soulkindred/kindred/internal/httpapi"
	"github.com/soulkindred/kindred/internal/observability"
	"github.com/soulkindred/kindred/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()

	st, err := store.NewStore(ctx, cfg.DatabaseURL, cfg.EmbeddingDim)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Printf("store: in-memory (set DATABASE_URL for persistence)")
	} else {
		log.Printf("store: postgres")
	}

	embedder, err := embedding.NewProvider(embedding.Config{
		Mode:   cfg.EmbeddingProvider,
		URL:    cfg.EmbeddingURL,
		APIKey: cfg.EmbeddingAPIKey,
		Model:  cfg.EmbeddingModel,
		Dim:    cfg.EmbeddingDim,
	})
	if err != nil {
		log.Fatalf("embedding provider init failed: %v", err)
	}
	log.Printf("embedding provider: %s (dim=%d)", embedder.Model(), embedder.Dimensions())

	generator, err := generation.NewChainFromConfig(generation.Config{
		Mode:               cfg.GenerationMode,
		HTTPURL:            cfg.GenerationHTTPURL,
		AnthropicAPIKey:    cfg.AnthropicAPIKey,
		AnthropicModel:     cfg.AnthropicModel,
		AnthropicMaxTokens: cfg.AnthropicMaxTokens,
	})
	if err != nil {
		log.Fatalf("generation chain init failed: %v", err)
	}
	var names []string
	for _, strat := range generator.Strategies() {
		names = append(names, strat.Name())
	}
	log.Printf("generation strategies: %s", strings.Join(names, ", "))

	pipeline, err := chat.New(st, embedder, generator, metrics, chat.Options{
		RetrievalK:               cfg.RetrievalK,
		ContextPerMemoryChars:    cfg.ContextPerMemoryChars,
		DegradeOnRetrievalOutage: cfg.DegradeOnRetrievalOutage,
		DefaultPersonaID:         cfg.DefaultPersonaID,
	})
	if err != nil {
		log.Fatalf("pipeline init failed: %v", err)
	}

	api := httpapi.New(cfg, st, pipeline, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
