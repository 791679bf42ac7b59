// Command ragserve runs the conversational retrieval service.
//
// Retrieval backends, session persistence and the generation endpoint are
// all selected through RAGSERVE_* environment variables; see config.go. The
// defaults run everything in process memory against a local
// OpenAI-compatible server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kataras/golog"
	"github.com/redis/go-redis/v9"
	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"github.com/smallnest/ragserve/llm"
	"github.com/smallnest/ragserve/log"
	"github.com/smallnest/ragserve/rag"
	"github.com/smallnest/ragserve/rag/store"
	"github.com/smallnest/ragserve/rag/strategy"
	"github.com/smallnest/ragserve/server"
	"github.com/smallnest/ragserve/session"
)

func main() {
	cfg := loadConfig()
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := llm.NewOpenAIClient(llm.OpenAIOptions{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
	})

	unstructured, err := buildSearchStore(ctx, cfg)
	if err != nil {
		log.Error("failed to set up search backend: %v", err)
		os.Exit(1)
	}

	graph, err := buildGraphStore(cfg)
	if err != nil {
		log.Error("failed to set up graph backend: %v", err)
		os.Exit(1)
	}

	sessions, cleanup, err := buildSessionStore(ctx, cfg)
	if err != nil {
		log.Error("failed to set up session backend: %v", err)
		os.Exit(1)
	}
	defer cleanup()

	registry := strategy.NewRegistry(strategy.Deps{
		Unstructured: unstructured,
		Graph:        graph,
		LLM:          client,
		Config: strategy.Config{
			TopK:       cfg.TopK,
			GraphDepth: cfg.GraphDepth,
		},
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.New(registry, sessions).Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("ragserve listening on %s (search=%s graph=%s sessions=%s)",
		cfg.Addr, cfg.SearchBackend, graphBackendName(cfg), cfg.SessionBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped: %v", err)
		os.Exit(1)
	}
	log.Info("ragserve stopped")
}

func setupLogging(level string) {
	log.SetDefaultLogger(log.NewGologLogger(golog.Default))
	switch strings.ToLower(level) {
	case "debug":
		log.SetLogLevel(log.LogLevelDebug)
	case "warn":
		log.SetLogLevel(log.LogLevelWarn)
	case "error":
		log.SetLogLevel(log.LogLevelError)
	default:
		log.SetLogLevel(log.LogLevelInfo)
	}
}

func buildSearchStore(ctx context.Context, cfg config) (rag.UnstructuredStore, error) {
	switch cfg.SearchBackend {
	case "redisearch":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Protocol: 2})
		index := store.NewRediSearchIndex(client, buildEmbedder(cfg), store.RediSearchOptions{})
		if err := index.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		return index, nil
	default:
		return store.NewMemoryIndex(buildEmbedder(cfg)), nil
	}
}

// buildEmbedder returns a langchaingo-backed embedder when an embedding
// model is configured, otherwise nil. Without one, semantic search is
// unavailable and the memory index serves lexical queries only.
func buildEmbedder(cfg config) rag.Embedder {
	if cfg.EmbeddingModel == "" {
		return nil
	}
	model, err := lcopenai.New(
		lcopenai.WithBaseURL(cfg.LLMBaseURL),
		lcopenai.WithToken(orDefault(cfg.LLMAPIKey, "not-needed")),
		lcopenai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		log.Warn("failed to configure embedder, semantic search disabled: %v", err)
		return nil
	}
	embedder, err := embeddings.NewEmbedder(model)
	if err != nil {
		log.Warn("failed to configure embedder, semantic search disabled: %v", err)
		return nil
	}
	return store.NewLangChainEmbedder(embedder, 0)
}

func buildGraphStore(cfg config) (rag.GraphStore, error) {
	if cfg.GraphURL == "" {
		return store.NewMemoryGraph(store.GraphOptions{}), nil
	}
	return store.NewFalkorGraph(cfg.GraphURL, store.GraphOptions{})
}

func graphBackendName(cfg config) string {
	if cfg.GraphURL == "" {
		return "memory"
	}
	return "falkordb"
}

func buildSessionStore(ctx context.Context, cfg config) (session.Store, func(), error) {
	switch cfg.SessionBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		s := session.NewRedisStore(client, session.RedisStoreOptions{TTL: cfg.SessionTTL})
		return s, func() { client.Close() }, nil
	case "postgres":
		s, err := session.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "sqlite":
		s, err := session.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		s := session.NewMemoryStore(cfg.SessionTTL)
		return s, s.Close, nil
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
