package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"docqa/internal/catalog"
	"docqa/internal/chunker"
	completion "docqa/internal/completion/openai"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding/hashing"
	embedopenai "docqa/internal/embedding/openai"
	"docqa/internal/extract"
	"docqa/internal/service"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/qdrant"
)

// app is the assembled service plus the resources it owns.
type app struct {
	svc     *service.RAGServiceImpl
	catalog *catalog.Catalog
}

func (a *app) Close() error { return a.catalog.Close() }

// openApp assembles the components selected by cfg and restores the index.
func openApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*app, error) {
	emb, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	ch, err := buildChunker(cfg)
	if err != nil {
		return nil, err
	}
	st, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	sum, err := buildSummarizer(cfg)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}

	opts := service.Options{
		DefaultK:   cfg.Retriever.TopK,
		Overfetch:  cfg.Retriever.Overfetch,
		MaxBullets: cfg.Summarizer.MaxBullets,
	}
	if cfg.VectorStore.Type == "memory" {
		opts.SnapshotPath = cfg.VectorStore.Path
	}
	svc := service.NewRAGService(service.Deps{
		Extractor:  extract.New(),
		Chunker:    ch,
		Embedder:   emb,
		Store:      st,
		Completer:  buildCompleter(cfg, logger),
		Summarizer: sum,
		Catalog:    cat,
		Logger:     logger,
	}, opts)

	if err := svc.RestoreIndex(ctx); err != nil {
		_ = cat.Close()
		return nil, fmt.Errorf("restore index: %w", err)
	}
	return &app{svc: svc, catalog: cat}, nil
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing":
		return hashing.NewEmbedder(cfg.Embedder.Dimension), nil
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := embedopenai.NewClient(embedopenai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Dimension: cfg.Embedder.Dimension,
			Timeout:   config.Seconds(cfg.Embedder.OpenAI.TimeoutSecs),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	switch cfg.Chunker.Type {
	case "window":
		return chunker.NewWindowChunker(cfg.Chunker.WindowSize, cfg.Chunker.Overlap), nil
	case "sentence":
		return chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}
}

func buildStore(cfg *config.AppConfig) (vectorstore.Storage, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		return memory.NewStorage(cfg.Embedder.Dimension), nil
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		if q == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		var key string
		if q.APIKeyEnv != "" {
			key = os.Getenv(q.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     key,
			Collection: q.Collection,
			Dimension:  cfg.Embedder.Dimension,
			Timeout:    config.Seconds(q.TimeoutSecs),
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

// buildSummarizer returns nil for "llm" so the service summarizes through
// the completion model.
func buildSummarizer(cfg *config.AppConfig) (domain.Summarizer, error) {
	switch cfg.Summarizer.Type {
	case "llm":
		return nil, nil
	case "frequency":
		return summarizer.NewFrequencySummarizer(), nil
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}
}

// buildCompleter falls back to a completer that always fails when no API key
// is available, so ingest and listing keep working offline.
func buildCompleter(cfg *config.AppConfig, logger *slog.Logger) domain.Completer {
	client, err := completion.NewClient(completion.Config{
		BaseURL:   cfg.Completion.BaseURL,
		APIKeyEnv: cfg.Completion.APIKeyEnv,
		Model:     cfg.Completion.Model,
		Timeout:   config.Seconds(cfg.Completion.TimeoutSecs),
	})
	if err != nil {
		logger.Warn("completion model unavailable; answers and llm summaries will fail", "err", err)
		return unavailableCompleter{reason: err}
	}
	return client
}

type unavailableCompleter struct{ reason error }

func (u unavailableCompleter) Complete(context.Context, domain.CompletionRequest) (string, error) {
	return "", domain.WrapProvider("openai", "complete", u.reason)
}
